package recording

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/foxseedlab/rockhype/internal/audio"
	"github.com/foxseedlab/rockhype/internal/media"
)

type Artifact struct {
	media.Item
	Duration time.Duration
}

// Encoder turns a mono PCM16 track into a container format.
type Encoder interface {
	MIMEType() string
	Encode(pcm []int16, sampleRate int) ([]byte, error)
}

// Recorder receives both directions of a session and produces one mixed artifact.
// WriteMic and WriteModel may be called from different goroutines.
type Recorder interface {
	WriteMic(block []float32)
	WriteModel(rendered []int16)
	Finalize(ctx context.Context) (Artifact, error)
}

type Factory interface {
	New(sessionID string) Recorder
}

type MixdownFactory struct {
	encoder    Encoder
	store      media.Store
	inputRate  int
	outputRate int
}

func NewMixdownFactory(encoder Encoder, store media.Store) *MixdownFactory {
	return &MixdownFactory{
		encoder:    encoder,
		store:      store,
		inputRate:  audio.InputSampleRate,
		outputRate: audio.OutputSampleRate,
	}
}

func (f *MixdownFactory) New(sessionID string) Recorder {
	return &Mixdown{
		sessionID:  sessionID,
		encoder:    f.encoder,
		store:      f.store,
		inputRate:  f.inputRate,
		outputRate: f.outputRate,
	}
}

// Mixdown keeps the microphone (resampled to the output rate) and the rendered
// model audio as two tracks and sums them on Finalize.
type Mixdown struct {
	sessionID  string
	encoder    Encoder
	store      media.Store
	inputRate  int
	outputRate int

	once       sync.Once
	mu         sync.Mutex
	mic        []int16
	model      []int16
	micStarted bool
	finalized  bool
	artifact   Artifact
	err        error
}

func (m *Mixdown) WriteMic(block []float32) {
	pcm := audio.Resample(audio.FloatToPCM16(block), m.inputRate, m.outputRate)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized {
		return
	}
	if !m.micStarted {
		// output starts before capture; line the first block up with the model track
		m.mic = make([]int16, len(m.model), len(m.model)+len(pcm))
		m.micStarted = true
	}
	m.mic = append(m.mic, pcm...)
}

func (m *Mixdown) WriteModel(rendered []int16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized {
		return
	}
	m.model = append(m.model, rendered...)
}

// Finalize encodes and stores the mix once; later calls return the same result.
func (m *Mixdown) Finalize(ctx context.Context) (Artifact, error) {
	m.once.Do(func() {
		m.mu.Lock()
		m.finalized = true
		mixed := audio.Mix(m.mic, trimTrailingSilence(m.model))
		m.mic, m.model = nil, nil
		m.mu.Unlock()

		m.artifact, m.err = m.encodeAndSave(ctx, mixed)
	})
	return m.artifact, m.err
}

func (m *Mixdown) encodeAndSave(ctx context.Context, mixed []int16) (Artifact, error) {
	body, err := m.encoder.Encode(mixed, m.outputRate)
	if err != nil {
		return Artifact{}, fmt.Errorf("encode recording: %w", err)
	}
	name := fmt.Sprintf("recording-%s%s", m.sessionID, media.Extension(m.encoder.MIMEType()))
	item, err := m.store.Save(ctx, name, m.encoder.MIMEType(), body)
	if err != nil {
		return Artifact{}, fmt.Errorf("store recording: %w", err)
	}
	return Artifact{
		Item:     item,
		Duration: audio.Duration(len(mixed), m.outputRate),
	}, nil
}

// The speaker keeps rendering silence until the output closes.
func trimTrailingSilence(pcm []int16) []int16 {
	end := len(pcm)
	for end > 0 && pcm[end-1] == 0 {
		end--
	}
	return pcm[:end]
}
