package repository

import "time"

type ArtifactKind string

const (
	ArtifactKindRecording  ArtifactKind = "recording"
	ArtifactKindAlbumCover ArtifactKind = "album_cover"
	ArtifactKindImageEdit  ArtifactKind = "image_edit"
	ArtifactKindVideo      ArtifactKind = "video"
	ArtifactKindAnalysis   ArtifactKind = "analysis"
)

type Session struct {
	ID              string
	StartedAt       time.Time
	EndedAt         time.Time
	StopReason      string
	Timezone        string
	DurationSeconds int64
	EntryCount      int
	RecordingURL    string
	TranscriptText  string
	CreatedAt       time.Time
}

type TranscriptEntry struct {
	SessionID  string
	EntryIndex int
	Speaker    string
	Text       string
	SpokenAt   time.Time
}

type Artifact struct {
	ID        string
	SessionID string
	Kind      ArtifactKind
	Name      string
	MIMEType  string
	URL       string
	Size      int64
	Detail    string
	CreatedAt time.Time
}
