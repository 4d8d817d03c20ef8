package device

import (
	"context"
	"errors"
)

var (
	ErrPermissionDenied  = errors.New("audio device access denied")
	ErrDeviceUnavailable = errors.New("audio device unavailable")
)

// Microphone acquires a capture stream delivering fixed-size blocks of normalized samples.
type Microphone interface {
	Open(ctx context.Context, sampleRate, framesPerBlock int) (Capture, error)
}

// Capture is an acquired input stream. Blocks are delivered on the driver's
// thread, so onBlock must not block and must copy the slice if it keeps it.
type Capture interface {
	Start(onBlock func(block []float32)) error
	Close() error
}

// Speaker opens an output stream. Every rendered buffer is also handed to tap.
type Speaker interface {
	Open(ctx context.Context, sampleRate int, tap func(rendered []int16)) (Output, error)
}

// Output schedules mono PCM16 clips against its own clock, counted in frames.
type Output interface {
	// Now is the number of frames rendered so far.
	Now() int64
	// Schedule plays pcm starting at frame at, or immediately when it has passed.
	// onEnded runs once when the clip finishes naturally; it does not run after Stop.
	Schedule(pcm []int16, at int64, onEnded func()) Voice
	Close() error
}

type Voice interface {
	Stop()
}

type Info struct {
	Index             int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}
