package server

import (
	"time"

	"github.com/foxseedlab/rockhype/internal/media"
	"github.com/foxseedlab/rockhype/internal/repository"
	"github.com/foxseedlab/rockhype/internal/session"
	"github.com/foxseedlab/rockhype/internal/transcript"
)

type errorResponse struct {
	Error string `json:"error"`
	State string `json:"state,omitempty"`
}

type startResponse struct {
	SessionID string         `json:"session_id"`
	Status    session.Status `json:"status"`
}

type stopResponse struct {
	Status session.Status  `json:"status"`
	Result *resultResponse `json:"result,omitempty"`
}

type resultResponse struct {
	SessionID    string             `json:"session_id"`
	StartedAt    time.Time          `json:"started_at"`
	EndedAt      time.Time          `json:"ended_at"`
	StopReason   string             `json:"stop_reason"`
	RecordingURL string             `json:"recording_url,omitempty"`
	Transcript   []transcript.Entry `json:"transcript"`
	Error        string             `json:"error,omitempty"`
}

func newResultResponse(res session.Result) *resultResponse {
	out := &resultResponse{
		SessionID:  res.SessionID,
		StartedAt:  res.StartedAt,
		EndedAt:    res.EndedAt,
		StopReason: string(res.StopReason),
		Transcript: res.Transcript,
	}
	if res.Recording != nil {
		out.RecordingURL = res.Recording.Locator
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

type transcriptResponse struct {
	SessionID string             `json:"session_id,omitempty"`
	Entries   []transcript.Entry `json:"entries"`
}

type albumCoverRequest struct {
	Size string `json:"size"`
}

type mediaResponse struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

func newMediaResponse(item media.Item) mediaResponse {
	return mediaResponse{URL: item.Locator, Name: item.Name, MIMEType: item.MIMEType, Size: item.Size}
}

type sessionResponse struct {
	ID              string    `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	StopReason      string    `json:"stop_reason"`
	Timezone        string    `json:"timezone"`
	DurationSeconds int64     `json:"duration_seconds"`
	EntryCount      int       `json:"entry_count"`
	RecordingURL    string    `json:"recording_url,omitempty"`
}

func newSessionResponse(s repository.Session) sessionResponse {
	return sessionResponse{
		ID:              s.ID,
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
		StopReason:      s.StopReason,
		Timezone:        s.Timezone,
		DurationSeconds: s.DurationSeconds,
		EntryCount:      s.EntryCount,
		RecordingURL:    s.RecordingURL,
	}
}

type entryResponse struct {
	Index    int       `json:"index"`
	Speaker  string    `json:"speaker"`
	Text     string    `json:"text"`
	SpokenAt time.Time `json:"spoken_at"`
}

type artifactResponse struct {
	Kind      string    `json:"kind"`
	Name      string    `json:"name"`
	MIMEType  string    `json:"mime_type"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionDetailResponse struct {
	sessionResponse
	Transcript string             `json:"transcript"`
	Entries    []entryResponse    `json:"entries"`
	Artifacts  []artifactResponse `json:"artifacts"`
}

func newSessionDetailResponse(s repository.Session, entries []repository.TranscriptEntry, artifacts []repository.Artifact) sessionDetailResponse {
	out := sessionDetailResponse{
		sessionResponse: newSessionResponse(s),
		Transcript:      s.TranscriptText,
		Entries:         make([]entryResponse, 0, len(entries)),
		Artifacts:       make([]artifactResponse, 0, len(artifacts)),
	}
	for _, e := range entries {
		out.Entries = append(out.Entries, entryResponse{Index: e.EntryIndex, Speaker: e.Speaker, Text: e.Text, SpokenAt: e.SpokenAt})
	}
	for _, a := range artifacts {
		out.Artifacts = append(out.Artifacts, artifactResponse{
			Kind:      string(a.Kind),
			Name:      a.Name,
			MIMEType:  a.MIMEType,
			URL:       a.URL,
			Size:      a.Size,
			Detail:    a.Detail,
			CreatedAt: a.CreatedAt,
		})
	}
	return out
}
