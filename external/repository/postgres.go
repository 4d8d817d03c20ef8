package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/foxseedlab/rockhype/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) exec(ctx context.Context, stmt string) error {
	_, err := r.pool.Exec(ctx, stmt)
	return err
}

func (r *PostgresRepository) Migrate(ctx context.Context) error {
	return runMigration(ctx, r, postgresMigrationStatements)
}

func (r *PostgresRepository) SaveSession(ctx context.Context, input repository.SaveSessionInput) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO sessions (id, started_at, ended_at, stop_reason, timezone, duration_seconds, entry_count, recording_url, transcript_text)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (id) DO UPDATE SET
			   ended_at = EXCLUDED.ended_at,
			   stop_reason = EXCLUDED.stop_reason,
			   timezone = EXCLUDED.timezone,
			   duration_seconds = EXCLUDED.duration_seconds,
			   entry_count = EXCLUDED.entry_count,
			   recording_url = EXCLUDED.recording_url,
			   transcript_text = EXCLUDED.transcript_text`,
			input.SessionID, input.StartedAt, input.EndedAt, input.StopReason, input.Timezone,
			input.DurationSeconds, len(input.Entries), input.RecordingURL, input.TranscriptText)
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM transcript_entries WHERE session_id = $1`, input.SessionID); err != nil {
			return fmt.Errorf("clear transcript entries: %w", err)
		}
		if len(input.Entries) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i, e := range input.Entries {
			batch.Queue(
				`INSERT INTO transcript_entries (session_id, entry_index, speaker, text, spoken_at)
				 VALUES ($1, $2, $3, $4, $5)`,
				input.SessionID, i, e.Speaker, e.Text, e.SpokenAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert transcript entries: %w", err)
		}
		return nil
	})
}

const sessionColumns = `id, started_at, ended_at, stop_reason, timezone, duration_seconds, entry_count, recording_url, transcript_text, created_at`

func scanPostgresSession(row pgx.Row) (*repository.Session, error) {
	var s repository.Session
	err := row.Scan(&s.ID, &s.StartedAt, &s.EndedAt, &s.StopReason, &s.Timezone,
		&s.DurationSeconds, &s.EntryCount, &s.RecordingURL, &s.TranscriptText, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, sessionID string) (*repository.Session, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sessionID)
	s, err := scanPostgresSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) ListSessions(ctx context.Context, limit int) ([]repository.Session, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Session
	for rows.Next() {
		s, err := scanPostgresSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) ListEntriesBySessionID(ctx context.Context, sessionID string) ([]repository.TranscriptEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT session_id, entry_index, speaker, text, spoken_at
		 FROM transcript_entries WHERE session_id = $1 ORDER BY entry_index ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.TranscriptEntry
	for rows.Next() {
		var e repository.TranscriptEntry
		if err := rows.Scan(&e.SessionID, &e.EntryIndex, &e.Speaker, &e.Text, &e.SpokenAt); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) InsertArtifact(ctx context.Context, input repository.InsertArtifactInput) (*repository.Artifact, error) {
	a := repository.Artifact{
		ID:        uuid.NewString(),
		SessionID: input.SessionID,
		Kind:      input.Kind,
		Name:      input.Name,
		MIMEType:  input.MIMEType,
		URL:       input.URL,
		Size:      input.Size,
		Detail:    input.Detail,
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO artifacts (id, session_id, kind, name, mime_type, url, size, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		a.ID, a.SessionID, string(a.Kind), a.Name, a.MIMEType, a.URL, a.Size, a.Detail).Scan(&a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const artifactColumns = `id, session_id, kind, name, mime_type, url, size, detail, created_at`

func (r *PostgresRepository) ListArtifactsBySessionID(ctx context.Context, sessionID string) ([]repository.Artifact, error) {
	return r.queryArtifacts(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
}

func (r *PostgresRepository) ListRecentArtifacts(ctx context.Context, limit int) ([]repository.Artifact, error) {
	return r.queryArtifacts(ctx, `SELECT `+artifactColumns+` FROM artifacts ORDER BY created_at DESC LIMIT $1`, limit)
}

func (r *PostgresRepository) queryArtifacts(ctx context.Context, query string, args ...any) ([]repository.Artifact, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Artifact
	for rows.Next() {
		var a repository.Artifact
		var kind string
		var createdAt time.Time
		if err := rows.Scan(&a.ID, &a.SessionID, &kind, &a.Name, &a.MIMEType, &a.URL, &a.Size, &a.Detail, &createdAt); err != nil {
			return nil, err
		}
		a.Kind = repository.ArtifactKind(kind)
		a.CreatedAt = createdAt
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
