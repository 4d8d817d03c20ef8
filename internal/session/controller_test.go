package session

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/foxseedlab/rockhype/internal/audio"
	"github.com/foxseedlab/rockhype/internal/device"
	"github.com/foxseedlab/rockhype/internal/live"
	"github.com/foxseedlab/rockhype/internal/media"
	"github.com/foxseedlab/rockhype/internal/recording"
	"github.com/foxseedlab/rockhype/internal/transcript"
)

type fakeMicrophone struct {
	mu      sync.Mutex
	openErr error
	opened  int
	capture *fakeCapture
}

func (m *fakeMicrophone) Open(_ context.Context, _, _ int) (device.Capture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.capture = &fakeCapture{}
	return m.capture, nil
}

func (m *fakeMicrophone) current() *fakeCapture {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capture
}

type fakeCapture struct {
	mu       sync.Mutex
	onBlock  func([]float32)
	startErr error
	closed   int
}

func (c *fakeCapture) Start(onBlock func([]float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.onBlock = onBlock
	return nil
}

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *fakeCapture) emit(block []float32) {
	c.mu.Lock()
	fn := c.onBlock
	c.mu.Unlock()
	fn(block)
}

func (c *fakeCapture) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeSpeaker struct {
	mu      sync.Mutex
	openErr error
	opened  int
	output  *fakeOutput
}

func (s *fakeSpeaker) Open(_ context.Context, _ int, _ func([]int16)) (device.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened++
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.output = &fakeOutput{}
	return s.output, nil
}

func (s *fakeSpeaker) current() *fakeOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

func (s *fakeSpeaker) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

type scheduledClip struct {
	samples int
	at      int64
	onEnded func()
	voice   *fakeVoice
}

type fakeOutput struct {
	mu        sync.Mutex
	now       int64
	scheduled []scheduledClip
	closed    int
}

func (o *fakeOutput) Now() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) setNow(frame int64) {
	o.mu.Lock()
	o.now = frame
	o.mu.Unlock()
}

func (o *fakeOutput) Schedule(pcm []int16, at int64, onEnded func()) device.Voice {
	o.mu.Lock()
	defer o.mu.Unlock()
	v := &fakeVoice{}
	o.scheduled = append(o.scheduled, scheduledClip{samples: len(pcm), at: at, onEnded: onEnded, voice: v})
	return v
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
	return nil
}

func (o *fakeOutput) clips() []scheduledClip {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]scheduledClip(nil), o.scheduled...)
}

func (o *fakeOutput) closeCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

type fakeVoice struct {
	mu      sync.Mutex
	stopped bool
}

func (v *fakeVoice) Stop() {
	v.mu.Lock()
	v.stopped = true
	v.mu.Unlock()
}

func (v *fakeVoice) isStopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}

type fakeDialer struct {
	mu      sync.Mutex
	err     error
	block   bool
	hold    chan struct{}
	entered chan struct{}
	dials   int
	cfg     live.SessionConfig
	stream  *fakeStream
}

func (d *fakeDialer) Dial(ctx context.Context, cfg live.SessionConfig) (live.Stream, error) {
	d.mu.Lock()
	d.dials++
	d.cfg = cfg
	block, hold, err, entered := d.block, d.hold, d.err, d.entered
	d.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if hold != nil {
		// ignores ctx: the dial completes even if the start was cancelled meanwhile
		<-hold
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	stream := newFakeStream()
	d.mu.Lock()
	d.stream = stream
	d.mu.Unlock()
	return stream, nil
}

func (d *fakeDialer) current() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type receiveItem struct {
	msg live.ServerMessage
	err error
}

type fakeStream struct {
	mu       sync.Mutex
	sendErr  error
	sendGate chan struct{}
	attempts int
	sent     []live.Chunk
	incoming chan receiveItem
	closed   chan struct{}
	once     sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{incoming: make(chan receiveItem, 16), closed: make(chan struct{})}
}

func (s *fakeStream) Send(ctx context.Context, chunk live.Chunk) error {
	s.mu.Lock()
	gate := s.sendGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, chunk)
	return nil
}

func (s *fakeStream) Receive(ctx context.Context) (live.ServerMessage, error) {
	select {
	case item := <-s.incoming:
		return item.msg, item.err
	case <-s.closed:
		return live.ServerMessage{}, errors.New("use of closed stream")
	case <-ctx.Done():
		return live.ServerMessage{}, ctx.Err()
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) push(msg live.ServerMessage) {
	s.incoming <- receiveItem{msg: msg}
}

func (s *fakeStream) fail(err error) {
	s.incoming <- receiveItem{err: err}
}

func (s *fakeStream) sentChunks() []live.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]live.Chunk(nil), s.sent...)
}

func (s *fakeStream) sendAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeRecorderFactory struct {
	mu        sync.Mutex
	recorders []*fakeRecorder
}

func (f *fakeRecorderFactory) New(sessionID string) recording.Recorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &fakeRecorder{sessionID: sessionID}
	f.recorders = append(f.recorders, r)
	return r
}

func (f *fakeRecorderFactory) last() *fakeRecorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recorders) == 0 {
		return nil
	}
	return f.recorders[len(f.recorders)-1]
}

type fakeRecorder struct {
	mu        sync.Mutex
	sessionID string
	micBlocks int
	finalized int
}

func (r *fakeRecorder) WriteMic(_ []float32) {
	r.mu.Lock()
	r.micBlocks++
	r.mu.Unlock()
}

func (r *fakeRecorder) WriteModel(_ []int16) {}

func (r *fakeRecorder) Finalize(_ context.Context) (recording.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized++
	name := "recording-" + r.sessionID + ".wav"
	return recording.Artifact{
		Item:     media.Item{Name: name, MIMEType: "audio/wav", Locator: media.Locator(name)},
		Duration: time.Second,
	}, nil
}

func (r *fakeRecorder) finalizeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

type fakeHandoff struct {
	mu      sync.Mutex
	results []Result
}

func (h *fakeHandoff) SessionFinished(result Result) {
	h.mu.Lock()
	h.results = append(h.results, result)
	h.mu.Unlock()
}

func (h *fakeHandoff) all() []Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Result(nil), h.results...)
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []Status
	entries  []transcript.Entry
}

func (o *recordingObserver) StatusChanged(status Status) {
	o.mu.Lock()
	o.statuses = append(o.statuses, status)
	o.mu.Unlock()
}

func (o *recordingObserver) TranscriptAppended(_ string, entry transcript.Entry) {
	o.mu.Lock()
	o.entries = append(o.entries, entry)
	o.mu.Unlock()
}

func (o *recordingObserver) entryCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}

func (o *recordingObserver) states() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]State, 0, len(o.statuses))
	for _, s := range o.statuses {
		out = append(out, s.State)
	}
	return out
}

type testRig struct {
	mic       *fakeMicrophone
	speaker   *fakeSpeaker
	dialer    *fakeDialer
	recorders *fakeRecorderFactory
	handoff   *fakeHandoff
	observer  *recordingObserver
	ctrl      *Controller
}

func newTestRig() *testRig {
	r := &testRig{
		mic:       &fakeMicrophone{},
		speaker:   &fakeSpeaker{},
		dialer:    &fakeDialer{},
		recorders: &fakeRecorderFactory{},
		handoff:   &fakeHandoff{},
		observer:  &recordingObserver{},
	}
	r.ctrl = NewController(Options{Model: "live-model", Voice: "Puck"}, Dependencies{
		Microphone: r.mic,
		Speaker:    r.speaker,
		Dialer:     r.dialer,
		Recorders:  r.recorders,
		Handoff:    r.handoff,
	})
	ids := 0
	r.ctrl.newID = func() string {
		ids++
		return "session-" + string(rune('0'+ids))
	}
	r.ctrl.AddObserver(r.observer)
	return r
}

func (r *testRig) start(t *testing.T) string {
	t.Helper()
	id, err := r.ctrl.Start(context.Background())
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if got := r.ctrl.Status().State; got != StateListening {
		t.Fatalf("expected listening after start, got %s", got)
	}
	return id
}

func (r *testRig) stop(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.ctrl.Stop(ctx); err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
}

func pcmPayload(samples int) string {
	return base64.StdEncoding.EncodeToString(audio.EncodePCM16LE(make([]int16, samples)))
}

func TestStart_SendsMicrophoneBlocksInCaptureOrder(t *testing.T) {
	r := newTestRig()
	r.start(t)

	first := []float32{0.5, -0.5, 0.25}
	second := []float32{1, -1}
	capture := r.mic.current()
	capture.emit(first)
	capture.emit(second)

	stream := r.dialer.current()
	waitUntil(t, time.Second, func() bool { return len(stream.sentChunks()) == 2 }, "expected two chunks sent")
	sent := stream.sentChunks()
	if sent[0].Data != audio.EncodeChunk(first) || sent[1].Data != audio.EncodeChunk(second) {
		t.Fatalf("chunks out of order or re-encoded: %+v", sent)
	}
	for _, c := range sent {
		if c.MIMEType != "audio/pcm;rate=16000" {
			t.Fatalf("unexpected mime type: %q", c.MIMEType)
		}
	}
	if got := r.recorders.last().micBlocks; got != 2 {
		t.Fatalf("expected recorder to receive two mic blocks, got %d", got)
	}
	r.stop(t)
}

func TestStart_DialsWithPersonaAndTranscription(t *testing.T) {
	r := newTestRig()
	r.start(t)
	defer r.stop(t)

	cfg := r.dialer.cfg
	if cfg.Model != "live-model" || cfg.Voice != "Puck" {
		t.Fatalf("unexpected dial config: %+v", cfg)
	}
	if !cfg.OutputTranscription {
		t.Fatal("expected output transcription to be requested")
	}
	if cfg.SystemInstruction != hypeManInstruction {
		t.Fatal("expected hype man instruction")
	}
}

func TestStart_RejectsWhileActive(t *testing.T) {
	r := newTestRig()
	r.start(t)
	defer r.stop(t)

	if _, err := r.ctrl.Start(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
	if r.mic.opened != 1 {
		t.Fatalf("expected microphone to be opened once, got %d", r.mic.opened)
	}
}

func TestAudio_SchedulesClipsBackToBack(t *testing.T) {
	r := newTestRig()
	r.start(t)
	defer r.stop(t)

	stream := r.dialer.current()
	output := r.speaker.current()
	stream.push(live.ServerMessage{Audio: []string{pcmPayload(2400), pcmPayload(4800)}})
	waitUntil(t, time.Second, func() bool { return len(output.clips()) == 2 }, "expected two clips scheduled")

	clips := output.clips()
	if clips[0].at != 0 || clips[1].at != 2400 {
		t.Fatalf("expected gapless starts at frames 0 and 2400, got %d and %d", clips[0].at, clips[1].at)
	}

	// the clock passed the queued audio; the next clip starts now
	output.setNow(24000)
	stream.push(live.ServerMessage{Audio: []string{pcmPayload(1001), pcmPayload(1001)}})
	waitUntil(t, time.Second, func() bool { return len(output.clips()) == 4 }, "expected two more clips scheduled")
	clips = output.clips()
	if clips[2].at != 24000 || clips[3].at != 25001 {
		t.Fatalf("expected starts at frames 24000 and 25001, got %d and %d", clips[2].at, clips[3].at)
	}
}

func TestAudio_SkipsUndecodablePayload(t *testing.T) {
	r := newTestRig()
	r.start(t)
	defer r.stop(t)

	stream := r.dialer.current()
	output := r.speaker.current()
	stream.push(live.ServerMessage{Audio: []string{"not base64!", pcmPayload(2400)}})
	waitUntil(t, time.Second, func() bool { return len(output.clips()) == 1 }, "expected valid clip scheduled")
	if got := output.clips()[0].at; got != 0 {
		t.Fatalf("bad payload must not advance the timeline, got start %d", got)
	}
	if got := r.ctrl.Status().State; got != StateListening {
		t.Fatalf("expected session to keep listening, got %s", got)
	}
}

func TestInterrupt_StopsActiveClipsAndRestartsTimeline(t *testing.T) {
	r := newTestRig()
	r.start(t)
	defer r.stop(t)

	stream := r.dialer.current()
	output := r.speaker.current()
	stream.push(live.ServerMessage{Audio: []string{pcmPayload(24000), pcmPayload(24000)}})
	waitUntil(t, time.Second, func() bool { return len(output.clips()) == 2 }, "expected two clips scheduled")

	output.setNow(1200)
	stream.push(live.ServerMessage{Interrupted: true, Audio: []string{pcmPayload(2400)}})
	waitUntil(t, time.Second, func() bool { return len(output.clips()) == 3 }, "expected clip after interruption")

	clips := output.clips()
	if !clips[0].voice.isStopped() || !clips[1].voice.isStopped() {
		t.Fatal("expected queued clips to be stopped")
	}
	if clips[2].voice.isStopped() {
		t.Fatal("clip from the interrupting message must keep playing")
	}
	if clips[2].at != 1200 {
		t.Fatalf("expected new clip at the current clock, got %d", clips[2].at)
	}
}

func TestInterrupt_EndedClipIsNotStoppedAgain(t *testing.T) {
	r := newTestRig()
	r.start(t)
	defer r.stop(t)

	stream := r.dialer.current()
	output := r.speaker.current()
	stream.push(live.ServerMessage{Audio: []string{pcmPayload(2400), pcmPayload(2400)}})
	waitUntil(t, time.Second, func() bool { return len(output.clips()) == 2 }, "expected two clips scheduled")

	output.clips()[0].onEnded()
	stream.push(live.ServerMessage{Interrupted: true})
	waitUntil(t, time.Second, func() bool { return output.clips()[1].voice.isStopped() }, "expected pending clip stopped")
	if output.clips()[0].voice.isStopped() {
		t.Fatal("finished clip should have left the active set")
	}
}

func TestTranscript_AppendsFragmentsAndNotifies(t *testing.T) {
	r := newTestRig()
	r.start(t)

	stream := r.dialer.current()
	stream.push(live.ServerMessage{InputTranscription: "check this out", OutputTranscription: "THAT RIFF!"})
	stream.push(live.ServerMessage{OutputTranscription: ""})
	waitUntil(t, time.Second, func() bool { return r.observer.entryCount() == 2 }, "expected two transcript notifications")

	entries := r.ctrl.Transcript()
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	if entries[0].Speaker != transcript.SpeakerUser || entries[1].Speaker != transcript.SpeakerHypeMan {
		t.Fatalf("unexpected speakers: %+v", entries)
	}
	if entries[1].Text != "THAT RIFF!" {
		t.Fatalf("unexpected text: %q", entries[1].Text)
	}

	r.stop(t)
	if got := len(r.ctrl.Transcript()); got != 2 {
		t.Fatalf("expected transcript to survive stop, got %d entries", got)
	}
}

func TestStop_ReleasesEverythingAndHandsOff(t *testing.T) {
	r := newTestRig()
	id := r.start(t)
	r.dialer.current().push(live.ServerMessage{OutputTranscription: "LEGENDARY"})
	waitUntil(t, time.Second, func() bool { return r.observer.entryCount() == 1 }, "expected transcript entry")

	r.stop(t)

	status := r.ctrl.Status()
	if status.State != StateIdle || status.Message != messageSessionEnded {
		t.Fatalf("unexpected status after stop: %+v", status)
	}
	if status.RecordingURL != "/media/recording-"+id+".wav" {
		t.Fatalf("unexpected recording url: %q", status.RecordingURL)
	}
	if !r.dialer.current().isClosed() {
		t.Fatal("expected stream closed")
	}
	if r.speaker.current().closeCount() != 1 || r.mic.current().closeCount() != 1 {
		t.Fatal("expected speaker and microphone closed once")
	}
	if got := r.recorders.last().finalizeCount(); got != 1 {
		t.Fatalf("expected one finalize, got %d", got)
	}

	results := r.handoff.all()
	if len(results) != 1 {
		t.Fatalf("expected one handoff, got %d", len(results))
	}
	res := results[0]
	if res.SessionID != id || res.StopReason != StopReasonManual || len(res.Transcript) != 1 || res.Recording == nil {
		t.Fatalf("unexpected handoff result: %+v", res)
	}
}

func TestStop_IsIdempotent(t *testing.T) {
	r := newTestRig()
	r.stop(t)
	r.start(t)
	r.stop(t)
	r.stop(t)

	if got := len(r.handoff.all()); got != 1 {
		t.Fatalf("expected one handoff, got %d", got)
	}
	if got := r.recorders.last().finalizeCount(); got != 1 {
		t.Fatalf("expected one finalize, got %d", got)
	}
	if r.speaker.current().closeCount() != 1 {
		t.Fatal("expected speaker closed once")
	}
}

func TestStop_StateSequence(t *testing.T) {
	r := newTestRig()
	r.start(t)
	r.stop(t)

	want := []State{StateConnecting, StateListening, StateStopping, StateIdle}
	got := r.observer.states()
	if len(got) != len(want) {
		t.Fatalf("unexpected state sequence: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected state sequence: %v", got)
		}
	}
}

func TestShutdown_RecordsReason(t *testing.T) {
	r := newTestRig()
	r.start(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.ctrl.Shutdown(ctx); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
	res, ok := r.ctrl.LastResult()
	if !ok || res.StopReason != StopReasonShutdown {
		t.Fatalf("unexpected last result: %+v", res)
	}
}

func TestRemoteClose_ReturnsToIdle(t *testing.T) {
	r := newTestRig()
	r.start(t)
	stream := r.dialer.current()
	stream.fail(io.EOF)

	waitUntil(t, time.Second, func() bool { return r.ctrl.Status().State == StateIdle }, "expected idle after remote close")
	if got := r.ctrl.Status().Message; got != messageRemoteClosed {
		t.Fatalf("unexpected message: %q", got)
	}
	waitUntil(t, time.Second, func() bool { return len(r.handoff.all()) == 1 }, "expected handoff after remote close")
	if got := r.handoff.all()[0].StopReason; got != StopReasonRemoteClosed {
		t.Fatalf("unexpected stop reason: %s", got)
	}
	if r.speaker.current().closeCount() != 1 || r.mic.current().closeCount() != 1 {
		t.Fatal("expected devices released after remote close")
	}
}

func TestStreamError_EntersErroredWithoutHandoff(t *testing.T) {
	r := newTestRig()
	r.start(t)
	r.dialer.current().fail(errors.New("connection reset"))

	waitUntil(t, time.Second, func() bool { return r.ctrl.Status().State == StateErrored }, "expected errored after stream error")
	if got := r.ctrl.Status().Message; got != messageStreamLost {
		t.Fatalf("unexpected message: %q", got)
	}
	if got := len(r.handoff.all()); got != 0 {
		t.Fatalf("expected no handoff, got %d", got)
	}
	if r.speaker.current().closeCount() != 1 {
		t.Fatal("expected speaker released")
	}

	// Errored is a resting state
	r.start(t)
	r.stop(t)
}

func TestSendFailure_DropsChunkWithoutRetry(t *testing.T) {
	r := newTestRig()
	r.start(t)
	defer r.stop(t)

	stream := r.dialer.current()
	stream.mu.Lock()
	stream.sendErr = errors.New("write: broken pipe")
	stream.mu.Unlock()

	r.mic.current().emit([]float32{0.1})
	waitUntil(t, time.Second, func() bool { return stream.sendAttempts() == 1 }, "expected one send attempt")
	time.Sleep(30 * time.Millisecond)
	if got := stream.sendAttempts(); got != 1 {
		t.Fatalf("expected no retry, got %d attempts", got)
	}
	if got := r.ctrl.Status().State; got != StateListening {
		t.Fatalf("send failure must not end the session, got %s", got)
	}
}

func TestInterrupt_NotHeldUpBySlowSend(t *testing.T) {
	r := newTestRig()
	r.start(t)
	defer r.stop(t)

	stream := r.dialer.current()
	output := r.speaker.current()
	gate := make(chan struct{})
	stream.mu.Lock()
	stream.sendGate = gate
	stream.mu.Unlock()
	defer close(gate)

	stream.push(live.ServerMessage{Audio: []string{pcmPayload(2400)}})
	waitUntil(t, time.Second, func() bool { return len(output.clips()) == 1 }, "expected clip scheduled")

	capture := r.mic.current()
	for i := 0; i < 2*outboundQueueSize; i++ {
		capture.emit([]float32{0.1})
	}
	stream.push(live.ServerMessage{Interrupted: true})
	waitUntil(t, time.Second, func() bool { return output.clips()[0].voice.isStopped() }, "interruption waited behind a stalled send")
	if got := len(stream.sentChunks()); got != 0 {
		t.Fatalf("expected nothing delivered while the socket is stalled, got %d", got)
	}
	rec := r.recorders.last()
	rec.mu.Lock()
	recorded := rec.micBlocks
	rec.mu.Unlock()
	if recorded != 2*outboundQueueSize {
		t.Fatalf("expected every block recorded, got %d", recorded)
	}
}

func TestStartFailure_MicrophoneDenied(t *testing.T) {
	r := newTestRig()
	r.mic.openErr = device.ErrPermissionDenied

	if _, err := r.ctrl.Start(context.Background()); !errors.Is(err, device.ErrPermissionDenied) {
		t.Fatalf("expected permission error, got %v", err)
	}
	status := r.ctrl.Status()
	if status.State != StateIdle || status.Message != messageMicDenied {
		t.Fatalf("unexpected status: %+v", status)
	}
	if r.speaker.openCount() != 0 || r.dialer.dialCount() != 0 {
		t.Fatal("nothing after the microphone should be acquired")
	}
}

func TestStartFailure_MicrophoneMissing(t *testing.T) {
	r := newTestRig()
	r.mic.openErr = device.ErrDeviceUnavailable

	if _, err := r.ctrl.Start(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if got := r.ctrl.Status().Message; got != messageMicMissing {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestStartFailure_SpeakerReleasesMicrophone(t *testing.T) {
	r := newTestRig()
	r.speaker.openErr = device.ErrDeviceUnavailable

	if _, err := r.ctrl.Start(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	status := r.ctrl.Status()
	if status.State != StateErrored || status.Message != messageSpeakerMissing {
		t.Fatalf("unexpected status: %+v", status)
	}
	if r.mic.current().closeCount() != 1 {
		t.Fatal("expected microphone released")
	}
	if r.dialer.dialCount() != 0 {
		t.Fatal("stream must not be opened without a speaker")
	}

	r.stop(t)
	if got := r.ctrl.Status().State; got != StateIdle {
		t.Fatalf("expected stop to clear errored state, got %s", got)
	}
}

func TestStartFailure_DialReleasesDevices(t *testing.T) {
	r := newTestRig()
	r.dialer.err = errors.New("handshake failed")

	if _, err := r.ctrl.Start(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	status := r.ctrl.Status()
	if status.State != StateErrored || status.Message != messageStreamFailed {
		t.Fatalf("unexpected status: %+v", status)
	}
	if r.mic.current().closeCount() != 1 || r.speaker.current().closeCount() != 1 {
		t.Fatal("expected both devices released")
	}
	if got := r.recorders.last().finalizeCount(); got != 0 {
		t.Fatalf("no recording should be saved for a failed start, got %d finalizes", got)
	}
	if got := len(r.handoff.all()); got != 0 {
		t.Fatalf("expected no handoff, got %d", got)
	}
}

func TestStop_CancelsConnectingSession(t *testing.T) {
	r := newTestRig()
	r.dialer.block = true
	r.dialer.entered = make(chan struct{})

	errCh := make(chan error, 1)
	go func() {
		_, err := r.ctrl.Start(context.Background())
		errCh <- err
	}()
	<-r.dialer.entered
	if got := r.ctrl.Status().State; got != StateConnecting {
		t.Fatalf("expected connecting, got %s", got)
	}

	r.stop(t)
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled start, got %v", err)
	}
	status := r.ctrl.Status()
	if status.State != StateIdle || status.Message != messageStartCanceled {
		t.Fatalf("unexpected status: %+v", status)
	}
	if r.mic.current().closeCount() != 1 || r.speaker.current().closeCount() != 1 {
		t.Fatal("expected devices released after cancel")
	}
}

func TestStop_WhileDialCompletesLeavesNothingRunning(t *testing.T) {
	r := newTestRig()
	r.dialer.hold = make(chan struct{})
	r.dialer.entered = make(chan struct{})

	startErr := make(chan error, 1)
	go func() {
		_, err := r.ctrl.Start(context.Background())
		startErr <- err
	}()
	<-r.dialer.entered

	stopErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		stopErr <- r.ctrl.Stop(ctx)
	}()
	waitUntil(t, time.Second, func() bool {
		r.ctrl.mu.Lock()
		defer r.ctrl.mu.Unlock()
		return r.ctrl.stopRequested
	}, "stop never reached the connecting session")
	close(r.dialer.hold)

	if err := <-stopErr; err != nil {
		t.Fatalf("unexpected stop error: %v", err)
	}
	if err := <-startErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled start, got %v", err)
	}
	if got := r.ctrl.Status().State; got != StateIdle {
		t.Fatalf("expected idle after stop, got %s", got)
	}
	if r.mic.current().closeCount() != 1 || r.speaker.current().closeCount() != 1 {
		t.Fatal("expected devices released")
	}
	if !r.dialer.current().isClosed() {
		t.Fatal("expected dialed stream to be closed")
	}
	if r.recorders.last().finalizeCount() != 0 {
		t.Fatal("expected no recording for a cancelled start")
	}
	if len(r.handoff.all()) != 0 {
		t.Fatal("expected no handoff for a cancelled start")
	}

	r.start(t)
	r.stop(t)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(message)
}
