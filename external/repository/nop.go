package repository

import (
	"context"

	"github.com/foxseedlab/rockhype/internal/repository"
)

// NopRepository archives nothing. It backs ARCHIVE_DRIVER=none.
type NopRepository struct{}

func (NopRepository) SaveSession(context.Context, repository.SaveSessionInput) error { return nil }

func (NopRepository) GetSession(context.Context, string) (*repository.Session, error) {
	return nil, nil
}

func (NopRepository) ListSessions(context.Context, int) ([]repository.Session, error) {
	return nil, nil
}

func (NopRepository) ListEntriesBySessionID(context.Context, string) ([]repository.TranscriptEntry, error) {
	return nil, nil
}

func (NopRepository) InsertArtifact(_ context.Context, input repository.InsertArtifactInput) (*repository.Artifact, error) {
	return &repository.Artifact{
		SessionID: input.SessionID,
		Kind:      input.Kind,
		Name:      input.Name,
		MIMEType:  input.MIMEType,
		URL:       input.URL,
		Size:      input.Size,
		Detail:    input.Detail,
	}, nil
}

func (NopRepository) ListArtifactsBySessionID(context.Context, string) ([]repository.Artifact, error) {
	return nil, nil
}

func (NopRepository) ListRecentArtifacts(context.Context, int) ([]repository.Artifact, error) {
	return nil, nil
}

func (NopRepository) Close() error { return nil }
