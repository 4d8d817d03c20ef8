package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/rockhype/internal/audio"
	"github.com/foxseedlab/rockhype/internal/device"
	"github.com/foxseedlab/rockhype/internal/live"
	"github.com/foxseedlab/rockhype/internal/recording"
	"github.com/foxseedlab/rockhype/internal/telemetry"
	"github.com/foxseedlab/rockhype/internal/transcriber"
	"github.com/foxseedlab/rockhype/internal/transcript"
	"github.com/google/uuid"
)

const (
	eventQueueSize    = 256
	outboundQueueSize = 4 // about one second of microphone audio
	finalizeTimeout   = 30 * time.Second
)

var ErrSessionActive = errors.New("a live session is already active")

type Options struct {
	Model string
	Voice string
	// InputTranscription asks the live voice service to transcribe the user too.
	InputTranscription bool
	Language           string
}

type Dependencies struct {
	Microphone  device.Microphone
	Speaker     device.Speaker
	Dialer      live.Dialer
	Recorders   recording.Factory
	Transcriber transcriber.Transcriber
	Metrics     *telemetry.SessionMetrics
	Handoff     Handoff
}

// Controller owns at most one live session at a time and drives the
// Idle, Connecting, Listening, Stopping and Errored states.
type Controller struct {
	opts      Options
	mic       device.Microphone
	speaker   device.Speaker
	dialer    live.Dialer
	recorders recording.Factory
	stt       transcriber.Transcriber
	metrics   *telemetry.SessionMetrics
	handoff   Handoff
	now       func() time.Time
	newID     func() string

	obsMu     sync.RWMutex
	observers []Observer

	mu           sync.Mutex
	state        State
	message      string
	sessionID    string
	recordingURL string
	current      *liveSession
	cancelStart  context.CancelFunc
	startDone    chan struct{}
	// stopRequested is set by a Stop that found the controller Connecting.
	stopRequested bool
	last         *Result
}

func NewController(opts Options, deps Dependencies) *Controller {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = telemetry.NoopSessionMetrics()
	}
	return &Controller{
		opts:      opts,
		mic:       deps.Microphone,
		speaker:   deps.Speaker,
		dialer:    deps.Dialer,
		recorders: deps.Recorders,
		stt:       deps.Transcriber,
		metrics:   metrics,
		handoff:   deps.Handoff,
		now:       time.Now,
		newID:     uuid.NewString,
		state:     StateIdle,
		message:   messageReady,
	}
}

func (c *Controller) AddObserver(o Observer) {
	c.obsMu.Lock()
	c.observers = append(c.observers, o)
	c.obsMu.Unlock()
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	return Status{
		State:        c.state,
		Message:      c.message,
		SessionID:    c.sessionID,
		RecordingURL: c.recordingURL,
	}
}

// Transcript returns a copy of the running session's transcript, or of the last one.
func (c *Controller) Transcript() []transcript.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return c.current.log.Entries()
	}
	if c.last != nil {
		return append([]transcript.Entry(nil), c.last.Transcript...)
	}
	return nil
}

func (c *Controller) LastResult() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Result{}, false
	}
	return *c.last, true
}

// Start acquires the devices, opens the live stream and begins streaming.
// It returns the new session id once the controller is Listening.
// ctx bounds connecting only; the session outlives it.
func (c *Controller) Start(ctx context.Context) (string, error) {
	c.mu.Lock()
	if !c.state.resting() {
		c.mu.Unlock()
		return "", ErrSessionActive
	}
	startCtx, cancel := context.WithCancel(ctx)
	id := c.newID()
	c.cancelStart = cancel
	c.stopRequested = false
	c.startDone = make(chan struct{})
	c.sessionID = id
	c.recordingURL = ""
	c.setLocked(StateConnecting, messageConnecting)
	startDone := c.startDone
	c.mu.Unlock()
	c.publishStatus()

	defer close(startDone)
	defer cancel()

	slog.Info("starting live session", "session_id", id)
	ls, stage, err := c.connect(startCtx, context.WithoutCancel(ctx), id)

	c.mu.Lock()
	c.cancelStart = nil
	if err == nil && (c.stopRequested || startCtx.Err() != nil) {
		// Stop arrived after the last acquisition succeeded.
		err = startCtx.Err()
		if c.stopRequested || err == nil {
			err = context.Canceled
		}
		c.mu.Unlock()
		ls.recorder = nil
		ls.cancel()
		_ = ls.scope.release()
		stage = stageStream
		c.mu.Lock()
	}
	if err != nil {
		next, msg := startFailure(stage, err)
		if errors.Is(err, context.Canceled) {
			next, msg = StateIdle, messageStartCanceled
		}
		c.setLocked(next, msg)
		c.mu.Unlock()
		c.publishStatus()
		slog.Error("failed to start live session", "session_id", id, "error", err, "state", next)
		return "", err
	}

	c.current = ls
	c.setLocked(StateListening, messageListening)
	c.mu.Unlock()
	c.publishStatus()
	c.metrics.SessionStarted(ls.ctx)

	ls.scope.add("outbound sender", ls.stopSending)
	go ls.send()
	go ls.receive()
	go c.run(ls)
	slog.Info("live session listening", "session_id", id)
	return id, nil
}

// connect acquires microphone, speaker and stream in that order.
// On failure everything acquired so far is released before returning.
func (c *Controller) connect(startCtx, baseCtx context.Context, id string) (*liveSession, startStage, error) {
	sessionCtx, cancelSession := context.WithCancel(baseCtx)
	ls := newLiveSession(sessionCtx, cancelSession, id, c.now(), c.metrics, c.now)
	ls.onTranscript = func(e transcript.Entry) { c.publishTranscript(id, e) }

	fail := func(stage startStage, err error) (*liveSession, startStage, error) {
		cancelSession()
		_ = ls.scope.release()
		return nil, stage, err
	}
	// Registered first so it runs last, after both devices have stopped.
	ls.scope.add("recorder", ls.finalizeRecording)

	capture, err := c.mic.Open(startCtx, audio.InputSampleRate, audio.InputBlockFrames)
	if err != nil {
		return fail(stageMicrophone, fmt.Errorf("open microphone: %w", err))
	}
	ls.capture = capture
	ls.scope.add("microphone", capture.Close)

	rec := c.recorders.New(id)
	output, err := c.speaker.Open(startCtx, audio.OutputSampleRate, rec.WriteModel)
	if err != nil {
		return fail(stageSpeaker, fmt.Errorf("open speaker: %w", err))
	}
	ls.output = output
	ls.scope.add("speaker", output.Close)

	stream, err := c.dialer.Dial(startCtx, live.SessionConfig{
		Model:               c.opts.Model,
		Voice:               c.opts.Voice,
		SystemInstruction:   hypeManInstruction,
		OutputTranscription: true,
		InputTranscription:  c.opts.InputTranscription,
	})
	if err != nil {
		return fail(stageStream, fmt.Errorf("open live stream: %w", err))
	}
	ls.recorder = rec
	if c.stt != nil {
		writer, err := c.stt.StartStreaming(sessionCtx, transcriber.StreamConfig{
			SessionID:  id,
			Language:   c.opts.Language,
			SampleRate: audio.InputSampleRate,
		}, &userTranscriptReceiver{session: ls})
		if err != nil {
			slog.Warn("user transcription unavailable; continuing without it", "session_id", id, "error", err)
		} else {
			ls.userSTT = writer
			ls.scope.add("user transcriber", writer.Close)
		}
	}
	ls.stream = stream
	ls.scope.add("live stream", stream.Close)

	if err := capture.Start(ls.onCapture); err != nil {
		return fail(stageCapture, fmt.Errorf("start capture: %w", err))
	}
	return ls, 0, nil
}

// Stop ends the active session and waits for teardown. It is safe to call in any
// state and any number of times.
func (c *Controller) Stop(ctx context.Context) error {
	return c.stop(ctx, StopReasonManual)
}

// Shutdown is Stop for process exit.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.stop(ctx, StopReasonShutdown)
}

func (c *Controller) stop(ctx context.Context, reason StopReason) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.mu.Unlock()
		return nil
	case StateErrored:
		c.setLocked(StateIdle, messageReady)
		c.mu.Unlock()
		c.publishStatus()
		return nil
	case StateConnecting:
		c.stopRequested = true
		cancel, done := c.cancelStart, c.startDone
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return waitFor(ctx, done)
	}

	ls := c.current
	if c.state == StateListening {
		c.setLocked(StateStopping, messageStopping)
	}
	c.mu.Unlock()
	c.publishStatus()

	if ls == nil {
		return nil
	}
	ls.requestStop(reason)
	return waitFor(ctx, ls.done)
}

func waitFor(ctx context.Context, done <-chan struct{}) error {
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run owns the session until its loop exits, then tears it down.
func (c *Controller) run(ls *liveSession) {
	defer close(ls.done)

	reason, runErr := ls.loop()

	c.mu.Lock()
	changed := c.state == StateListening
	if changed {
		c.setLocked(StateStopping, messageStopping)
	}
	c.mu.Unlock()
	if changed {
		c.publishStatus()
	}

	ls.cancel()
	if err := ls.scope.release(); err != nil {
		slog.Warn("session teardown finished with errors", "session_id", ls.id, "error", err)
	}

	result := Result{
		SessionID:  ls.id,
		StartedAt:  ls.startedAt,
		EndedAt:    c.now(),
		StopReason: reason,
		Transcript: ls.log.Entries(),
		Recording:  ls.artifact,
		Err:        runErr,
	}

	next, msg := endMessage(reason, runErr)
	c.mu.Lock()
	c.current = nil
	c.last = &result
	if ls.artifact != nil {
		c.recordingURL = ls.artifact.Locator
	}
	c.setLocked(next, msg)
	c.mu.Unlock()
	c.publishStatus()

	outcome := string(reason)
	c.metrics.SessionEnded(context.Background(), outcome)
	slog.Info("live session ended",
		"session_id", ls.id,
		"reason", reason,
		"error", runErr,
		"transcript_entries", len(result.Transcript),
		"recording_url", c.Status().RecordingURL)

	if runErr == nil && c.handoff != nil {
		c.handoff.SessionFinished(result)
	}
}

func (c *Controller) setLocked(state State, message string) {
	c.state = state
	c.message = message
}

func (c *Controller) publishStatus() {
	status := c.Status()
	c.obsMu.RLock()
	defer c.obsMu.RUnlock()
	for _, o := range c.observers {
		o.StatusChanged(status)
	}
}

func (c *Controller) publishTranscript(sessionID string, e transcript.Entry) {
	c.obsMu.RLock()
	defer c.obsMu.RUnlock()
	for _, o := range c.observers {
		o.TranscriptAppended(sessionID, e)
	}
}
