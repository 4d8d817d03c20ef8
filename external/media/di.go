package media

import (
	"github.com/foxseedlab/rockhype/internal/config"
	"github.com/foxseedlab/rockhype/internal/media"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (media.Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewLocalStore(cfg.MediaDir)
	})
}
