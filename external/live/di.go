package live

import (
	"github.com/foxseedlab/rockhype/internal/config"
	"github.com/foxseedlab/rockhype/internal/live"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (live.Dialer, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewGeminiDialer(cfg.LiveEndpoint, cfg.GeminiAPIKey), nil
	})
}
