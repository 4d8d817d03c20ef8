package transcriber

import "context"

type StreamConfig struct {
	SessionID  string
	Language   string
	SampleRate int
}

// StreamWriter accepts mono PCM16 little-endian audio.
type StreamWriter interface {
	Write(pcm []byte) error
	Close() error
}

type ResultReceiver interface {
	OnResult(text string, isFinal bool)
	OnError(err error)
}

// Transcriber turns the user's microphone into text when the live voice service
// is not asked to transcribe input itself.
type Transcriber interface {
	StartStreaming(ctx context.Context, cfg StreamConfig, receiver ResultReceiver) (StreamWriter, error)
}
