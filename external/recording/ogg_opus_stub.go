//go:build !opus

package recording

import (
	"errors"

	"github.com/foxseedlab/rockhype/internal/recording"
)

var errOpusUnavailable = errors.New("ogg recording requires a build with the opus tag")

func NewOggOpusEncoder() (recording.Encoder, error) {
	return nil, errOpusUnavailable
}
