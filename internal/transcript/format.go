package transcript

import (
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/rockhype/internal/webhook"
)

const timeLayout = "2006-01-02 15:04:05"

type Metadata struct {
	SessionID    string
	StartedAt    time.Time
	EndedAt      time.Time
	Timezone     string
	StopReason   string
	RecordingURL string
}

func BuildText(meta Metadata, loc *time.Location, entries []Entry) []byte {
	loc = safeLocation(loc)
	lines := []string{
		fmt.Sprintf("Session: %s", meta.SessionID),
		fmt.Sprintf("Period: %s ~ %s (%s)", meta.StartedAt.In(loc).Format(timeLayout), meta.EndedAt.In(loc).Format(timeLayout), meta.Timezone),
	}
	if meta.RecordingURL != "" {
		lines = append(lines, fmt.Sprintf("Recording: %s", meta.RecordingURL))
	}
	lines = append(lines, "")
	for _, turn := range Turns(entries) {
		lines = append(lines, fmt.Sprintf("%s %s: %s", formatElapsedHMS(elapsed(meta.StartedAt, turn.Timestamp)), turn.Speaker, strings.TrimSpace(turn.Text)))
	}
	return []byte(strings.Join(lines, "\n"))
}

func BuildWebhookPayload(meta Metadata, loc *time.Location, entries []Entry) webhook.TranscriptWebhookPayload {
	loc = safeLocation(loc)
	turns := Turns(entries)
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", turn.Speaker, strings.TrimSpace(turn.Text)))
	}

	durationSeconds := int64(meta.EndedAt.Sub(meta.StartedAt).Seconds())
	if durationSeconds < 0 {
		durationSeconds = 0
	}

	return webhook.TranscriptWebhookPayload{
		SchemaVersion:   webhook.TranscriptWebhookSchemaVersion,
		SessionID:       meta.SessionID,
		StartAt:         meta.StartedAt.In(loc).Format(time.RFC3339),
		EndAt:           meta.EndedAt.In(loc).Format(time.RFC3339),
		Timezone:        meta.Timezone,
		DurationSeconds: durationSeconds,
		StopReason:      meta.StopReason,
		RecordingURL:    meta.RecordingURL,
		EntryCount:      len(turns),
		Entries:         buildWebhookEntries(turns, meta.EndedAt, loc),
		Transcript:      strings.Join(lines, "\n"),
	}
}

func buildWebhookEntries(turns []Entry, sessionEndedAt time.Time, loc *time.Location) []webhook.TranscriptWebhookEntry {
	out := make([]webhook.TranscriptWebhookEntry, 0, len(turns))
	for i, turn := range turns {
		end := sessionEndedAt
		if i+1 < len(turns) {
			end = turns[i+1].Timestamp
		}
		if end.Before(turn.Timestamp) {
			end = turn.Timestamp
		}
		out = append(out, webhook.TranscriptWebhookEntry{
			Index:   i,
			Speaker: string(turn.Speaker),
			StartAt: turn.Timestamp.In(loc).Format(time.RFC3339),
			EndAt:   end.In(loc).Format(time.RFC3339),
			Text:    strings.TrimSpace(turn.Text),
		})
	}
	return out
}

func elapsed(start, at time.Time) time.Duration {
	d := at.Sub(start)
	if d < 0 {
		return 0
	}
	return d
}

func formatElapsedHMS(d time.Duration) string {
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func safeLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
