package playback

import (
	"sync"

	"github.com/foxseedlab/rockhype/internal/audio"
	"github.com/foxseedlab/rockhype/internal/device"
)

// Engine renders scheduled mono PCM16 clips into output buffers.
// Its clock is a frame count advanced only by rendering, so Now is the device clock of whatever drives Render.
type Engine struct {
	tap func([]int16)

	mu     sync.Mutex
	frame  int64
	nextID uint64
	voices map[uint64]*voice
}

type voice struct {
	engine  *Engine
	id      uint64
	pcm     []int16
	start   int64
	pos     int
	onEnded func()
}

func NewEngine(tap func([]int16)) *Engine {
	return &Engine{
		tap:    tap,
		voices: make(map[uint64]*voice),
	}
}

func (e *Engine) Now() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame
}

func (e *Engine) Schedule(pcm []int16, at int64, onEnded func()) device.Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := at
	if start < e.frame {
		start = e.frame
	}
	e.nextID++
	v := &voice{
		engine:  e,
		id:      e.nextID,
		pcm:     pcm,
		start:   start,
		onEnded: onEnded,
	}
	e.voices[v.id] = v
	return v
}

func (v *voice) Stop() {
	v.engine.mu.Lock()
	delete(v.engine.voices, v.id)
	v.engine.mu.Unlock()
}

// Pending reports how many clips are scheduled or playing.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.voices)
}

// Render fills out with the mix of every voice overlapping the next len(out) frames
// and advances the clock. Completion callbacks run after the lock is released.
func (e *Engine) Render(out []int16) {
	clear(out)

	e.mu.Lock()
	start := e.frame
	end := start + int64(len(out))
	var ended []func()
	for id, v := range e.voices {
		if v.start >= end {
			continue
		}
		dst := 0
		if v.start > start {
			dst = int(v.start - start)
		}
		n := min(len(out)-dst, len(v.pcm)-v.pos)
		if n > 0 {
			audio.MixInto(out[dst:dst+n], v.pcm[v.pos:v.pos+n], 0)
			v.pos += n
		}
		if v.pos >= len(v.pcm) {
			delete(e.voices, id)
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
		}
	}
	e.frame = end
	e.mu.Unlock()

	if e.tap != nil {
		e.tap(out)
	}
	for _, fn := range ended {
		fn()
	}
}

// Reset drops every voice without firing callbacks.
func (e *Engine) Reset() {
	e.mu.Lock()
	clear(e.voices)
	e.mu.Unlock()
}
