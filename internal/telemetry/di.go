package telemetry

import (
	"context"

	"github.com/foxseedlab/rockhype/internal/config"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Telemetry, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return Setup(context.Background(), cfg.Env)
	})
	do.Provide(injector, func(i do.Injector) (*SessionMetrics, error) {
		t := do.MustInvoke[*Telemetry](i)
		return NewSessionMetrics(t.Meter())
	})
	do.Provide(injector, func(i do.Injector) (*GenerationMetrics, error) {
		t := do.MustInvoke[*Telemetry](i)
		return NewGenerationMetrics(t.Meter())
	})
}
