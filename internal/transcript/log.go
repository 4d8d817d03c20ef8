package transcript

import (
	"sync"
	"time"
)

type Speaker string

const (
	SpeakerUser    Speaker = "User"
	SpeakerHypeMan Speaker = "HypeMan"
)

type Entry struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Log is append-only. One session loop appends; readers get copies.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Append(e Entry) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Turns merges consecutive fragments from the same speaker. Live transcription
// arrives a few words at a time; a turn keeps the timestamp of its first fragment.
func Turns(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if n := len(out); n > 0 && out[n-1].Speaker == e.Speaker {
			out[n-1].Text = joinFragment(out[n-1].Text, e.Text)
			continue
		}
		out = append(out, e)
	}
	return out
}

func joinFragment(prev, next string) string {
	if prev == "" {
		return next
	}
	if next == "" {
		return prev
	}
	switch prev[len(prev)-1] {
	case ' ', '\n', '\t':
		return prev + next
	}
	switch next[0] {
	case ' ', '\n', '\t', ',', '.', '!', '?', ';', ':':
		return prev + next
	}
	return prev + " " + next
}
