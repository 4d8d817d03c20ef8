package repository

import (
	"context"
	"fmt"
	"strings"
)

var postgresMigrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ NOT NULL,
		stop_reason TEXT NOT NULL DEFAULT '',
		timezone TEXT NOT NULL DEFAULT 'UTC',
		duration_seconds BIGINT NOT NULL DEFAULT 0,
		entry_count INTEGER NOT NULL DEFAULT 0,
		recording_url TEXT NOT NULL DEFAULT '',
		transcript_text TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions (started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS transcript_entries (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		entry_index INTEGER NOT NULL,
		speaker TEXT NOT NULL,
		text TEXT NOT NULL,
		spoken_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (session_id, entry_index)
	)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		url TEXT NOT NULL,
		size BIGINT NOT NULL DEFAULT 0,
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_artifacts_session ON artifacts (session_id, created_at)`,
}

var sqliteMigrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP NOT NULL,
		stop_reason TEXT NOT NULL DEFAULT '',
		timezone TEXT NOT NULL DEFAULT 'UTC',
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		entry_count INTEGER NOT NULL DEFAULT 0,
		recording_url TEXT NOT NULL DEFAULT '',
		transcript_text TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions (started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS transcript_entries (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		entry_index INTEGER NOT NULL,
		speaker TEXT NOT NULL,
		text TEXT NOT NULL,
		spoken_at TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, entry_index)
	)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		url TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_artifacts_session ON artifacts (session_id, created_at)`,
}

type execer interface {
	exec(ctx context.Context, stmt string) error
}

func runMigration(ctx context.Context, db execer, statements []string) error {
	for i, s := range statements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if err := db.exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d: %w", i, err)
		}
	}
	return nil
}
