package repository

import (
	"context"
	"time"
)

type EntryInput struct {
	Speaker  string
	Text     string
	SpokenAt time.Time
}

// SaveSessionInput archives one finished session. Saving the same ID again replaces it.
type SaveSessionInput struct {
	SessionID       string
	StartedAt       time.Time
	EndedAt         time.Time
	StopReason      string
	Timezone        string
	DurationSeconds int64
	RecordingURL    string
	TranscriptText  string
	Entries         []EntryInput
}

type InsertArtifactInput struct {
	// SessionID is empty for artifacts made outside a session.
	SessionID string
	Kind      ArtifactKind
	Name      string
	MIMEType  string
	URL       string
	Size      int64
	// Detail carries kind-specific JSON, e.g. song analysis attributes.
	Detail string
}

type SessionRepository interface {
	SaveSession(ctx context.Context, input SaveSessionInput) error
	// GetSession returns nil without error when the session does not exist.
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context, limit int) ([]Session, error)
}

type TranscriptRepository interface {
	ListEntriesBySessionID(ctx context.Context, sessionID string) ([]TranscriptEntry, error)
}

type ArtifactRepository interface {
	InsertArtifact(ctx context.Context, input InsertArtifactInput) (*Artifact, error)
	ListArtifactsBySessionID(ctx context.Context, sessionID string) ([]Artifact, error)
	ListRecentArtifacts(ctx context.Context, limit int) ([]Artifact, error)
}

type Repository interface {
	SessionRepository
	TranscriptRepository
	ArtifactRepository
	Close() error
}
