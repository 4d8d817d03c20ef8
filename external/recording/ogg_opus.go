//go:build opus

package recording

import (
	"bytes"
	"fmt"

	"github.com/hraban/opus"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

const (
	frameDurationMs   = 20
	granuleRate       = 48000
	opusPayloadType   = 111
	maxOpusPacketSize = 4000
)

// OggOpusEncoder writes mono Ogg/Opus. Frames are carried as RTP packets so the
// Ogg pager can derive granule positions from their timestamps.
type OggOpusEncoder struct{}

func NewOggOpusEncoder() (*OggOpusEncoder, error) {
	return &OggOpusEncoder{}, nil
}

func (*OggOpusEncoder) MIMEType() string {
	return "audio/ogg"
}

func (*OggOpusEncoder) Encode(pcm []int16, sampleRate int) ([]byte, error) {
	enc, err := opus.NewEncoder(sampleRate, 1, opus.AppAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	var buf bytes.Buffer
	ogg, err := oggwriter.NewWith(&buf, uint32(sampleRate), 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create ogg writer: %w", err)
	}

	frameSize := sampleRate * frameDurationMs / 1000
	tsStep := uint32(granuleRate * frameDurationMs / 1000)
	frame := make([]int16, frameSize)
	packet := make([]byte, maxOpusPacketSize)
	var seq uint16
	var ts uint32
	for off := 0; off < len(pcm); off += frameSize {
		// the last frame is zero padded
		n := copy(frame, pcm[off:])
		clear(frame[n:])
		size, err := enc.Encode(frame, packet)
		if err != nil {
			return nil, fmt.Errorf("failed to encode opus frame: %w", err)
		}
		seq++
		ts += tsStep
		if err := ogg.WriteRTP(&rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    opusPayloadType,
				SequenceNumber: seq,
				Timestamp:      ts,
			},
			Payload: append([]byte(nil), packet[:size]...),
		}); err != nil {
			return nil, fmt.Errorf("failed to write ogg page: %w", err)
		}
	}
	if err := ogg.Close(); err != nil {
		return nil, fmt.Errorf("failed to close ogg writer: %w", err)
	}
	return buf.Bytes(), nil
}
