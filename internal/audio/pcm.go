package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000
	InputBlockFrames = 4096

	pcmScale = 32768
)

var ErrDecode = errors.New("malformed pcm payload")

func PCMMIMEType(sampleRate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", sampleRate)
}

// FloatToPCM16 scales normalized samples by 32768 and clamps to the int16 range.
// Full-scale positive input saturates at 32767 instead of wrapping.
func FloatToPCM16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := float64(s)
		if math.IsNaN(v) {
			continue
		}
		out[i] = clampFloat(v * pcmScale)
	}
	return out
}

func PCM16ToFloat(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / pcmScale
	}
	return out
}

func clampFloat(v float64) int16 {
	if v >= math.MaxInt16 {
		return math.MaxInt16
	}
	if v <= math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

func EncodePCM16LE(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func DecodePCM16LE(b []byte) ([]int16, error) {
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("%w: odd byte length %d", ErrDecode, len(b))
	}
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out, nil
}

// EncodeChunk turns one capture block into the transport text encoding.
func EncodeChunk(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodePCM16LE(FloatToPCM16(samples)))
}

func DecodeChunk(payload string) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return DecodePCM16LE(raw)
}

func Duration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
