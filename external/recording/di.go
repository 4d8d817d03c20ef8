package recording

import (
	"fmt"

	"github.com/foxseedlab/rockhype/internal/config"
	"github.com/foxseedlab/rockhype/internal/media"
	"github.com/foxseedlab/rockhype/internal/recording"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (recording.Factory, error) {
		cfg := do.MustInvoke[*config.Config](i)
		store := do.MustInvoke[media.Store](i)
		encoder, err := NewEncoder(cfg.RecordingFormat)
		if err != nil {
			return nil, err
		}
		return recording.NewMixdownFactory(encoder, store), nil
	})
}

func NewEncoder(format string) (recording.Encoder, error) {
	switch format {
	case config.RecordingFormatWAV, "":
		return WAVEncoder{}, nil
	case config.RecordingFormatOgg:
		enc, err := NewOggOpusEncoder()
		if err != nil {
			return nil, fmt.Errorf("failed to create recording encoder: %w", err)
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("unsupported recording format %q", format)
	}
}
