package discord

import "context"

type FileMessage struct {
	Content     string
	Filename    string
	ContentType string
	FileBody    []byte
}

// Publisher posts session results and generated media to the configured channel.
type Publisher interface {
	SendMessage(ctx context.Context, content string) error
	SendFile(ctx context.Context, msg FileMessage) error
}
