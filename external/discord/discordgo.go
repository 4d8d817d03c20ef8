package discord

import (
	"bytes"
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/rockhype/internal/discord"
)

// messageLimit is Discord's maximum message length in characters.
const messageLimit = 2000

// Client posts through the REST API only; no gateway connection is opened.
type Client struct {
	session   *discordgo.Session
	channelID string
}

func NewClient(token, channelID string) (*Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return &Client{session: s, channelID: channelID}, nil
}

func (c *Client) SendMessage(ctx context.Context, content string) error {
	for _, part := range splitMessage(content, messageLimit) {
		if _, err := c.session.ChannelMessageSend(c.channelID, part, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("failed to send discord message: %w", err)
		}
	}
	return nil
}

func (c *Client) SendFile(ctx context.Context, msg discordpkg.FileMessage) error {
	contentType := msg.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := c.session.ChannelMessageSendComplex(c.channelID, &discordgo.MessageSend{
		Content: truncate(msg.Content, messageLimit),
		Files: []*discordgo.File{
			{Name: msg.Filename, ContentType: contentType, Reader: bytes.NewReader(msg.FileBody)},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send discord file %s: %w", msg.Filename, err)
	}
	return nil
}

// splitMessage cuts s into pieces of at most limit runes, preferring line breaks.
func splitMessage(s string, limit int) []string {
	runes := []rune(s)
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

// NopPublisher is used when no Discord channel is configured.
type NopPublisher struct{}

func (NopPublisher) SendMessage(context.Context, string) error { return nil }

func (NopPublisher) SendFile(context.Context, discordpkg.FileMessage) error { return nil }
