package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/foxseedlab/rockhype/internal/repository"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteRepository is the default single-machine archive.
type SQLiteRepository struct {
	db    *sql.DB
	clock func() time.Time
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteRepository, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	r := &SQLiteRepository{db: db, clock: time.Now}
	if err := runMigration(ctx, r, sqliteMigrationStatements); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRepository) exec(ctx context.Context, stmt string) error {
	_, err := r.db.ExecContext(ctx, stmt)
	return err
}

func (r *SQLiteRepository) SaveSession(ctx context.Context, input repository.SaveSessionInput) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, ended_at, stop_reason, timezone, duration_seconds, entry_count, recording_url, transcript_text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   ended_at = excluded.ended_at,
		   stop_reason = excluded.stop_reason,
		   timezone = excluded.timezone,
		   duration_seconds = excluded.duration_seconds,
		   entry_count = excluded.entry_count,
		   recording_url = excluded.recording_url,
		   transcript_text = excluded.transcript_text`,
		input.SessionID, input.StartedAt.UTC(), input.EndedAt.UTC(), input.StopReason, input.Timezone,
		input.DurationSeconds, len(input.Entries), input.RecordingURL, input.TranscriptText, r.clock().UTC())
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transcript_entries WHERE session_id = ?`, input.SessionID); err != nil {
		return fmt.Errorf("clear transcript entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transcript_entries (session_id, entry_index, speaker, text, spoken_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, e := range input.Entries {
		if _, err := stmt.ExecContext(ctx, input.SessionID, i, e.Speaker, e.Text, e.SpokenAt.UTC()); err != nil {
			return fmt.Errorf("insert transcript entry %d: %w", i, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSession(row rowScanner) (*repository.Session, error) {
	var s repository.Session
	err := row.Scan(&s.ID, &s.StartedAt, &s.EndedAt, &s.StopReason, &s.Timezone,
		&s.DurationSeconds, &s.EntryCount, &s.RecordingURL, &s.TranscriptText, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, sessionID string) (*repository.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	s, err := scanSQLiteSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *SQLiteRepository) ListSessions(ctx context.Context, limit int) ([]repository.Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Session
	for rows.Next() {
		s, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

func (r *SQLiteRepository) ListEntriesBySessionID(ctx context.Context, sessionID string) ([]repository.TranscriptEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_id, entry_index, speaker, text, spoken_at
		 FROM transcript_entries WHERE session_id = ? ORDER BY entry_index ASC`,
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

func (r *SQLiteRepository) InsertArtifact(ctx context.Context, input repository.InsertArtifactInput) (*repository.Artifact, error) {
	a := repository.Artifact{
		ID:        uuid.NewString(),
		SessionID: input.SessionID,
		Kind:      input.Kind,
		Name:      input.Name,
		MIMEType:  input.MIMEType,
		URL:       input.URL,
		Size:      input.Size,
		Detail:    input.Detail,
		CreatedAt: r.clock().UTC(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, session_id, kind, name, mime_type, url, size, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.SessionID, string(a.Kind), a.Name, a.MIMEType, a.URL, a.Size, a.Detail, a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *SQLiteRepository) ListArtifactsBySessionID(ctx context.Context, sessionID string) ([]repository.Artifact, error) {
	return r.queryArtifacts(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
}

func (r *SQLiteRepository) ListRecentArtifacts(ctx context.Context, limit int) ([]repository.Artifact, error) {
	return r.queryArtifacts(ctx, `SELECT `+artifactColumns+` FROM artifacts ORDER BY created_at DESC LIMIT ?`, limit)
}

func (r *SQLiteRepository) queryArtifacts(ctx context.Context, query string, args ...any) ([]repository.Artifact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []repository.Artifact
	for rows.Next() {
		var a repository.Artifact
		var kind string
		if err := rows.Scan(&a.ID, &a.SessionID, &kind, &a.Name, &a.MIMEType, &a.URL, &a.Size, &a.Detail, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Kind = repository.ArtifactKind(kind)
		list = append(list, a)
	}
	return list, rows.Err()
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
