package generation

import (
	"github.com/foxseedlab/rockhype/internal/config"
	"github.com/foxseedlab/rockhype/internal/media"
	"github.com/foxseedlab/rockhype/internal/telemetry"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Service, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewService(
			do.MustInvoke[Client](i),
			do.MustInvoke[media.Store](i),
			Models{
				Image:     cfg.ImageModel,
				ImageEdit: cfg.ImageEditModel,
				Analysis:  cfg.AnalysisModel,
				Video:     cfg.VideoModel,
			},
			do.MustInvoke[*telemetry.GenerationMetrics](i),
		), nil
	})
}
