package live

import (
	"context"
	"errors"
)

// ErrStreamProtocol covers handshake failures, abnormal closes and malformed frames.
var ErrStreamProtocol = errors.New("live stream protocol error")

type SessionConfig struct {
	Model               string
	Voice               string
	SystemInstruction   string
	OutputTranscription bool
	InputTranscription  bool
}

// Chunk is one outbound realtime input: base64 PCM plus its MIME type.
type Chunk struct {
	MIMEType string
	Data     string
}

type ServerMessage struct {
	Interrupted         bool
	OutputTranscription string
	InputTranscription  string
	// Audio holds base64 PCM16 payloads in arrival order.
	Audio        []string
	TurnComplete bool
	GoAway       bool
}

type Dialer interface {
	// Dial returns once the remote side has acknowledged the session setup.
	Dial(ctx context.Context, cfg SessionConfig) (Stream, error)
}

// Stream is a single bidirectional session. Send and Receive may run concurrently.
// Receive returns io.EOF when the remote side closes normally.
type Stream interface {
	Send(ctx context.Context, chunk Chunk) error
	Receive(ctx context.Context) (ServerMessage, error)
	Close() error
}
