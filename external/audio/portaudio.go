package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/rockhype/internal/device"
	"github.com/foxseedlab/rockhype/internal/playback"
	"github.com/gordonklaus/portaudio"
	"github.com/youpy/go-wav"
)

const (
	channels             = 1
	outputFramesPerBlock = 480
)

// Microphone captures mono float32 blocks from a PortAudio input device.
// A negative deviceIndex selects the host default.
type Microphone struct {
	deviceIndex int
}

func NewMicrophone(deviceIndex int) *Microphone {
	return &Microphone{deviceIndex: deviceIndex}
}

type capture struct {
	stream  *portaudio.Stream
	onBlock atomic.Pointer[func([]float32)]

	startOnce sync.Once
	closeOnce sync.Once
}

func (m *Microphone) Open(ctx context.Context, sampleRate, framesPerBlock int) (device.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize PortAudio: %w", device.ErrDeviceUnavailable, err)
	}
	info, err := m.inputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}
	slog.Info("using input device", "device_name", info.Name, "sample_rate", sampleRate, "frames_per_block", framesPerBlock)

	c := &capture{}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: framesPerBlock,
	}
	stream, err := portaudio.OpenStream(params, func(in []float32) {
		if fn := c.onBlock.Load(); fn != nil {
			(*fn)(in)
		}
	})
	if err != nil {
		_ = portaudio.Terminate()
		return nil, classifyOpenError("input", err)
	}
	c.stream = stream
	return c, nil
}

func (m *Microphone) inputDevice() (*portaudio.DeviceInfo, error) {
	if m.deviceIndex < 0 {
		info, err := portaudio.DefaultInputDevice()
		if err != nil || info == nil {
			return nil, fmt.Errorf("%w: no default input device", device.ErrDeviceUnavailable)
		}
		return info, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list devices: %w", device.ErrDeviceUnavailable, err)
	}
	return pickInputDevice(devices, m.deviceIndex)
}

// pickInputDevice selects by the same index ListDevices reports.
func pickInputDevice(devices []*portaudio.DeviceInfo, index int) (*portaudio.DeviceInfo, error) {
	if index >= len(devices) {
		return nil, fmt.Errorf("%w: input device %d does not exist", device.ErrDeviceUnavailable, index)
	}
	info := devices[index]
	if info.MaxInputChannels == 0 {
		return nil, fmt.Errorf("%w: device %d (%s) has no input channels", device.ErrDeviceUnavailable, index, info.Name)
	}
	return info, nil
}

func (c *capture) Start(onBlock func(block []float32)) error {
	var err error
	c.startOnce.Do(func() {
		c.onBlock.Store(&onBlock)
		if startErr := c.stream.Start(); startErr != nil {
			err = classifyOpenError("input", startErr)
		}
	})
	return err
}

func (c *capture) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.onBlock.Store(nil)
		_ = c.stream.Stop()
		err = c.stream.Close()
		_ = portaudio.Terminate()
	})
	return err
}

// Speaker plays mono PCM16 through the default output device. Scheduling is
// done by a playback.Engine that the output callback pulls from.
type Speaker struct{}

func NewSpeaker() *Speaker {
	return &Speaker{}
}

type output struct {
	*playback.Engine
	stream    *portaudio.Stream
	closeOnce sync.Once
}

func (s *Speaker) Open(ctx context.Context, sampleRate int, tap func(rendered []int16)) (device.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize PortAudio: %w", device.ErrDeviceUnavailable, err)
	}
	engine := playback.NewEngine(tap)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), outputFramesPerBlock, func(out []int16) {
		engine.Render(out)
	})
	if err != nil {
		_ = portaudio.Terminate()
		return nil, classifyOpenError("output", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, classifyOpenError("output", err)
	}
	return &output{Engine: engine, stream: stream}, nil
}

func (o *output) Close() error {
	var err error
	o.closeOnce.Do(func() {
		_ = o.stream.Stop()
		err = o.stream.Close()
		o.Engine.Reset()
		_ = portaudio.Terminate()
	})
	return err
}

func classifyOpenError(direction string, err error) error {
	if errors.Is(err, portaudio.InvalidDevice) || errors.Is(err, portaudio.DeviceUnavailable) {
		return fmt.Errorf("%w: %s stream: %w", device.ErrDeviceUnavailable, direction, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "denied") || strings.Contains(msg, "not authorized") {
		return fmt.Errorf("%w: %s stream: %w", device.ErrPermissionDenied, direction, err)
	}
	return fmt.Errorf("%w: failed to open %s stream: %w", device.ErrDeviceUnavailable, direction, err)
}

func ListDevices() ([]device.Info, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}
	out := make([]device.Info, 0, len(devices))
	for i, d := range devices {
		out = append(out, device.Info{
			Index:             i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		})
	}
	return out, nil
}

// PlayWAV plays a recording through the default output until it ends or ctx is done.
func PlayWAV(ctx context.Context, r io.Reader) error {
	reader := wav.NewReader(r)
	format, err := reader.Format()
	if err != nil {
		return fmt.Errorf("failed to read wav format: %w", err)
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	done := make(chan struct{})
	var finished sync.Once
	stream, err := portaudio.OpenDefaultStream(0, int(format.NumChannels), float64(format.SampleRate), outputFramesPerBlock, func(out []int16) {
		clear(out)
		frames := len(out) / int(format.NumChannels)
		samples, err := reader.ReadSamples(uint32(frames))
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Error("failed to read wav samples", "error", err)
			}
			finished.Do(func() { close(done) })
			return
		}
		for i, s := range samples {
			for ch := 0; ch < int(format.NumChannels); ch++ {
				idx := i*int(format.NumChannels) + ch
				if idx < len(out) {
					out[idx] = int16(reader.IntValue(s, uint(ch)))
				}
			}
		}
	})
	if err != nil {
		return fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	select {
	case <-done:
		// let the last buffer drain
		time.Sleep(100 * time.Millisecond)
	case <-ctx.Done():
	}
	return stream.Stop()
}
