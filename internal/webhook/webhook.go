package webhook

import "context"

const TranscriptWebhookSchemaVersion = "2026-10-18"

type TranscriptWebhookEntry struct {
	Index   int    `json:"index"`
	Speaker string `json:"speaker"`
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
	Text    string `json:"text"`
}

type TranscriptWebhookPayload struct {
	SchemaVersion   string                   `json:"schema_version"`
	SessionID       string                   `json:"session_id"`
	StartAt         string                   `json:"start_at"`
	EndAt           string                   `json:"end_at"`
	Timezone        string                   `json:"timezone"`
	DurationSeconds int64                    `json:"duration_seconds"`
	StopReason      string                   `json:"stop_reason"`
	RecordingURL    string                   `json:"recording_url,omitempty"`
	EntryCount      int                      `json:"entry_count"`
	Entries         []TranscriptWebhookEntry `json:"entries"`
	Transcript      string                   `json:"transcript"`
}

type Sender interface {
	SendTranscript(ctx context.Context, payload TranscriptWebhookPayload) error
}
