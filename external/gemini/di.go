package gemini

import (
	"context"

	"github.com/foxseedlab/rockhype/internal/config"
	"github.com/foxseedlab/rockhype/internal/generation"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (generation.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewClient(context.Background(), cfg.GeminiAPIKey)
	})
}
