package session

import (
	"github.com/foxseedlab/rockhype/internal/live"
	"github.com/foxseedlab/rockhype/internal/transcript"
)

// event is the closed set of inputs the session loop reacts to.
type event interface {
	isEvent()
}

type outboundReady struct {
	block []float32
}

type transcriptionFragment struct {
	speaker transcript.Speaker
	text    string
}

type audioFragment struct {
	payload string
}

type interrupted struct{}

type clipEnded struct {
	id uint64
}

type streamClosed struct{}

type streamErrored struct {
	err error
}

func (outboundReady) isEvent()         {}
func (transcriptionFragment) isEvent() {}
func (audioFragment) isEvent()         {}
func (interrupted) isEvent()           {}
func (clipEnded) isEvent()             {}
func (streamClosed) isEvent()          {}
func (streamErrored) isEvent()         {}

// eventsFor splits one server message into loop events. Interruption goes first
// so it clears playback before any audio from the same message is scheduled.
func eventsFor(msg live.ServerMessage) []event {
	var evs []event
	if msg.Interrupted {
		evs = append(evs, interrupted{})
	}
	if msg.InputTranscription != "" {
		evs = append(evs, transcriptionFragment{speaker: transcript.SpeakerUser, text: msg.InputTranscription})
	}
	if msg.OutputTranscription != "" {
		evs = append(evs, transcriptionFragment{speaker: transcript.SpeakerHypeMan, text: msg.OutputTranscription})
	}
	for _, payload := range msg.Audio {
		evs = append(evs, audioFragment{payload: payload})
	}
	return evs
}
