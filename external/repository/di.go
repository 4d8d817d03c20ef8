package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/rockhype/internal/config"
	"github.com/foxseedlab/rockhype/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/do/v2"
)

const databaseInitTimeout = 15 * time.Second

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (repository.Repository, error) {
		cfg := do.MustInvoke[*config.Config](i)
		ctx, cancel := context.WithTimeout(context.Background(), databaseInitTimeout)
		defer cancel()

		switch cfg.ArchiveDriver {
		case config.ArchiveDriverPostgres:
			return openPostgres(ctx, cfg.DatabaseURL)
		case config.ArchiveDriverNone:
			slog.Info("session archive disabled")
			return NopRepository{}, nil
		default:
			r, err := OpenSQLite(ctx, cfg.SQLitePath)
			if err != nil {
				return nil, fmt.Errorf("failed to open sqlite archive: %w", err)
			}
			return r, nil
		}
	})
}

func openPostgres(ctx context.Context, databaseURL string) (repository.Repository, error) {
	p, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	r := NewPostgresRepository(p)
	if err := r.Migrate(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to run migration: %w", err)
	}
	return r, nil
}
