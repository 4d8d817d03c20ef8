package server

import (
	"github.com/foxseedlab/rockhype/internal/config"
	"github.com/foxseedlab/rockhype/internal/media"
	"github.com/foxseedlab/rockhype/internal/repository"
	"github.com/foxseedlab/rockhype/internal/session"
	"github.com/foxseedlab/rockhype/internal/studio"
	"github.com/foxseedlab/rockhype/internal/telemetry"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Hub, error) {
		return NewHub(), nil
	})
	do.Provide(injector, func(i do.Injector) (*Server, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return New(
			cfg.HTTPAddr,
			do.MustInvoke[*session.Controller](i),
			do.MustInvoke[*studio.Studio](i),
			do.MustInvoke[repository.Repository](i),
			do.MustInvoke[media.Store](i),
			do.MustInvoke[*Hub](i),
			do.MustInvoke[*telemetry.Telemetry](i).Handler(),
		), nil
	})
}
