package session

import (
	"github.com/foxseedlab/rockhype/internal/config"
	"github.com/foxseedlab/rockhype/internal/device"
	"github.com/foxseedlab/rockhype/internal/live"
	"github.com/foxseedlab/rockhype/internal/recording"
	"github.com/foxseedlab/rockhype/internal/telemetry"
	"github.com/foxseedlab/rockhype/internal/transcriber"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Controller, error) {
		cfg := do.MustInvoke[*config.Config](i)

		var stt transcriber.Transcriber
		if cfg.UserTranscription == config.UserTranscriptionCloudSpeech {
			stt = do.MustInvoke[transcriber.Transcriber](i)
		}

		return NewController(Options{
			Model:              cfg.LiveModel,
			Voice:              cfg.LiveVoice,
			InputTranscription: cfg.UserTranscription == config.UserTranscriptionLive,
			Language:           cfg.TranscribeLanguage,
		}, Dependencies{
			Microphone:  do.MustInvoke[device.Microphone](i),
			Speaker:     do.MustInvoke[device.Speaker](i),
			Dialer:      do.MustInvoke[live.Dialer](i),
			Recorders:   do.MustInvoke[recording.Factory](i),
			Transcriber: stt,
			Metrics:     do.MustInvoke[*telemetry.SessionMetrics](i),
			Handoff:     do.MustInvoke[Handoff](i),
		}), nil
	})
}
