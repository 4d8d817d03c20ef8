package studio

import (
	"github.com/foxseedlab/rockhype/internal/config"
	"github.com/foxseedlab/rockhype/internal/discord"
	"github.com/foxseedlab/rockhype/internal/generation"
	"github.com/foxseedlab/rockhype/internal/media"
	"github.com/foxseedlab/rockhype/internal/repository"
	"github.com/foxseedlab/rockhype/internal/session"
	"github.com/foxseedlab/rockhype/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Studio, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return New(
			Options{Timezone: cfg.TranscriptTimezone, Location: cfg.Location()},
			do.MustInvoke[repository.Repository](i),
			do.MustInvoke[webhook.Sender](i),
			do.MustInvoke[discord.Publisher](i),
			do.MustInvoke[*generation.Service](i),
			do.MustInvoke[media.Store](i),
		), nil
	})
	do.Provide(injector, func(i do.Injector) (session.Handoff, error) {
		return do.MustInvoke[*Studio](i), nil
	})
}
