package audio

import (
	"github.com/foxseedlab/rockhype/internal/config"
	"github.com/foxseedlab/rockhype/internal/device"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (device.Microphone, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewMicrophone(cfg.InputDevice), nil
	})
	do.Provide(injector, func(i do.Injector) (device.Speaker, error) {
		return NewSpeaker(), nil
	})
}
