package session

import (
	"fmt"
	"time"

	"github.com/foxseedlab/rockhype/internal/recording"
	"github.com/foxseedlab/rockhype/internal/transcript"
)

type State int

const (
	StateIdle State = iota
	StateConnecting
	StateListening
	StateStopping
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateStopping:
		return "stopping"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{StateIdle, StateConnecting, StateListening, StateStopping, StateErrored} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", b)
}

// Resting states accept a new Start.
func (s State) resting() bool {
	return s == StateIdle || s == StateErrored
}

type StopReason string

const (
	StopReasonManual       StopReason = "manual"
	StopReasonShutdown     StopReason = "shutdown"
	StopReasonRemoteClosed StopReason = "remote_closed"
	StopReasonStreamError  StopReason = "stream_error"
)

type Status struct {
	State        State  `json:"state"`
	Message      string `json:"message"`
	SessionID    string `json:"session_id,omitempty"`
	RecordingURL string `json:"recording_url,omitempty"`
}

// Result is what a finished session hands to the next stage. Transcript is a copy.
type Result struct {
	SessionID  string
	StartedAt  time.Time
	EndedAt    time.Time
	StopReason StopReason
	Transcript []transcript.Entry
	Recording  *recording.Artifact
	Err        error
}

type Observer interface {
	StatusChanged(status Status)
	TranscriptAppended(sessionID string, entry transcript.Entry)
}

// Handoff receives every session that ended without error. It must not block.
type Handoff interface {
	SessionFinished(result Result)
}
