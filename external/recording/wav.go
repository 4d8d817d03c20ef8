package recording

import (
	"bytes"
	"fmt"

	"github.com/youpy/go-wav"
)

const bitsPerSample = 16

// WAVEncoder writes mono 16-bit PCM WAV files.
type WAVEncoder struct{}

func (WAVEncoder) MIMEType() string {
	return "audio/wav"
}

func (WAVEncoder) Encode(pcm []int16, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	w := wav.NewWriter(&buf, uint32(len(pcm)), 1, uint32(sampleRate), bitsPerSample)
	samples := make([]wav.Sample, len(pcm))
	for i, s := range pcm {
		samples[i].Values[0] = int(s)
	}
	if err := w.WriteSamples(samples); err != nil {
		return nil, fmt.Errorf("failed to write wav samples: %w", err)
	}
	return buf.Bytes(), nil
}
