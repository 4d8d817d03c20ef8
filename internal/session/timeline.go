package session

import (
	"github.com/foxseedlab/rockhype/internal/device"
)

// PlaybackTimeline hands out gapless start frames on the output clock.
type PlaybackTimeline struct {
	next int64
}

// Schedule returns the frame where a clip of n frames starts when it arrives at frame now.
func (t *PlaybackTimeline) Schedule(now, n int64) int64 {
	if t.next < now {
		t.next = now
	}
	start := t.next
	t.next += n
	return start
}

func (t *PlaybackTimeline) Reset() {
	t.next = 0
}

func (t *PlaybackTimeline) Cursor() int64 {
	return t.next
}

// Clip is an inbound audio fragment after scheduling.
type Clip struct {
	ID      uint64
	Start   int64
	Samples []int16
}

// ActiveClipSet tracks clips that are scheduled or playing.
type ActiveClipSet struct {
	voices map[uint64]device.Voice
}

func NewActiveClipSet() *ActiveClipSet {
	return &ActiveClipSet{voices: make(map[uint64]device.Voice)}
}

func (s *ActiveClipSet) Add(id uint64, v device.Voice) {
	s.voices[id] = v
}

func (s *ActiveClipSet) Remove(id uint64) {
	delete(s.voices, id)
}

// StopAll halts every clip and empties the set. It returns how many were stopped.
func (s *ActiveClipSet) StopAll() int {
	n := len(s.voices)
	for id, v := range s.voices {
		v.Stop()
		delete(s.voices, id)
	}
	return n
}

func (s *ActiveClipSet) Len() int {
	return len(s.voices)
}
