package session

import (
	"context"
	"errors"
	"io"
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
)

var errRemoteClosed = errors.New("live stream closed by remote")

// liveSession is one run of the loop. Every field below events is touched only
// by the loop goroutine once Start has returned.
type liveSession struct {
	id        string
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	metrics   *telemetry.SessionMetrics
	now       func() time.Time

	scope    releaseScope
	events   chan event
	outbound chan live.Chunk
	sendDone chan struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
	reason   StopReason
	done     chan struct{}

	capture  device.Capture
	output   device.Output
	stream   live.Stream
	recorder recording.Recorder
	userSTT  transcriber.StreamWriter
	artifact *recording.Artifact

	log          *transcript.Log
	onTranscript func(transcript.Entry)

	timeline PlaybackTimeline
	clips    *ActiveClipSet
	nextClip uint64
}

func newLiveSession(ctx context.Context, cancel context.CancelFunc, id string, startedAt time.Time, metrics *telemetry.SessionMetrics, now func() time.Time) *liveSession {
	return &liveSession{
		id:        id,
		startedAt: startedAt,
		ctx:       ctx,
		cancel:    cancel,
		metrics:   metrics,
		now:       now,
		events:    make(chan event, eventQueueSize),
		outbound:  make(chan live.Chunk, outboundQueueSize),
		sendDone:  make(chan struct{}),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		log:       transcript.NewLog(),
		clips:     NewActiveClipSet(),
	}
}

func (s *liveSession) requestStop(reason StopReason) {
	s.stopOnce.Do(func() {
		s.reason = reason
		close(s.stopCh)
	})
}

// loop handles events in arrival order until a stop is requested or the stream ends.
func (s *liveSession) loop() (StopReason, error) {
	for {
		select {
		case <-s.stopCh:
			return s.reason, nil
		case ev := <-s.events:
			err := s.handle(ev)
			if errors.Is(err, errRemoteClosed) {
				slog.Info("live stream closed by remote", "session_id", s.id)
				return StopReasonRemoteClosed, nil
			}
			if err != nil {
				slog.Error("live stream failed", "session_id", s.id, "error", err)
				return StopReasonStreamError, err
			}
		}
	}
}

func (s *liveSession) handle(ev event) error {
	switch ev := ev.(type) {
	case outboundReady:
		s.sendBlock(ev.block)
	case transcriptionFragment:
		s.appendTranscript(ev.speaker, ev.text)
	case audioFragment:
		s.scheduleAudio(ev.payload)
	case clipEnded:
		s.clips.Remove(ev.id)
	case interrupted:
		stopped := s.clips.StopAll()
		s.timeline.Reset()
		s.metrics.Interrupted(s.ctx)
		slog.Debug("playback interrupted", "session_id", s.id, "stopped_clips", stopped)
	case streamClosed:
		return errRemoteClosed
	case streamErrored:
		return ev.err
	}
	return nil
}

// sendBlock records the block and queues it for the sender. A full queue drops the chunk.
func (s *liveSession) sendBlock(block []float32) {
	s.recorder.WriteMic(block)
	if s.userSTT != nil {
		if err := s.userSTT.Write(audio.EncodePCM16LE(audio.FloatToPCM16(block))); err != nil {
			slog.Debug("failed to forward audio to user transcriber", "session_id", s.id, "error", err)
		}
	}
	chunk := live.Chunk{
		MIMEType: audio.PCMMIMEType(audio.InputSampleRate),
		Data:     audio.EncodeChunk(block),
	}
	select {
	case s.outbound <- chunk:
	default:
		s.metrics.ChunkDropped(s.ctx, "outbound_full")
		slog.Debug("dropped microphone chunk, live stream is not keeping up", "session_id", s.id)
	}
}

// send writes queued chunks in order, each once. A failed send drops the chunk.
func (s *liveSession) send() {
	defer close(s.sendDone)
	for {
		select {
		case <-s.ctx.Done():
			return
		case chunk := <-s.outbound:
			if err := s.stream.Send(s.ctx, chunk); err != nil {
				s.metrics.ChunkDropped(s.ctx, "send_failed")
				slog.Debug("dropped microphone chunk", "session_id", s.id, "error", err)
				continue
			}
			s.metrics.ChunkSent(s.ctx)
		}
	}
}

// stopSending waits for send to return; the session context must already be cancelled.
func (s *liveSession) stopSending() error {
	<-s.sendDone
	return nil
}

func (s *liveSession) appendTranscript(speaker transcript.Speaker, text string) {
	if text == "" {
		return
	}
	entry := transcript.Entry{Speaker: speaker, Text: text, Timestamp: s.now()}
	s.log.Append(entry)
	s.metrics.TranscriptAppended(s.ctx, string(speaker))
	if s.onTranscript != nil {
		s.onTranscript(entry)
	}
}

func (s *liveSession) scheduleAudio(payload string) {
	pcm, err := audio.DecodeChunk(payload)
	if err != nil {
		s.metrics.DecodeFailed(s.ctx)
		slog.Debug("skipped undecodable audio fragment", "session_id", s.id, "error", err)
		return
	}
	if len(pcm) == 0 {
		return
	}
	s.nextClip++
	clip := Clip{
		ID:      s.nextClip,
		Samples: pcm,
	}
	clip.Start = s.timeline.Schedule(s.output.Now(), int64(len(pcm)))
	id := clip.ID
	voice := s.output.Schedule(clip.Samples, clip.Start, func() { s.post(clipEnded{id: id}) })
	s.clips.Add(id, voice)
	s.metrics.ClipScheduled(s.ctx)
}

// post is used from device callbacks and must never block them.
func (s *liveSession) post(ev event) {
	select {
	case s.events <- ev:
	default:
		go func() {
			select {
			case s.events <- ev:
			case <-s.ctx.Done():
			}
		}()
	}
}

// onCapture runs on the capture callback. A full queue drops the block.
func (s *liveSession) onCapture(block []float32) {
	if s.ctx.Err() != nil {
		return
	}
	buf := make([]float32, len(block))
	copy(buf, block)
	select {
	case s.events <- outboundReady{block: buf}:
	default:
		s.metrics.ChunkDropped(s.ctx, "queue_full")
	}
}

// receive turns server messages into events until the stream ends or the session is cancelled.
func (s *liveSession) receive() {
	for {
		msg, err := s.stream.Receive(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				s.deliver(streamClosed{})
			} else {
				s.deliver(streamErrored{err: err})
			}
			return
		}
		for _, ev := range eventsFor(msg) {
			if !s.deliver(ev) {
				return
			}
		}
	}
}

func (s *liveSession) deliver(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// finalizeRecording runs last in teardown. Nothing is saved for a session that never connected.
func (s *liveSession) finalizeRecording() error {
	if s.recorder == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), finalizeTimeout)
	defer cancel()
	artifact, err := s.recorder.Finalize(ctx)
	if err != nil {
		return err
	}
	s.artifact = &artifact
	slog.Info("session recording saved", "session_id", s.id, "name", artifact.Name, "duration", artifact.Duration)
	return nil
}

// userTranscriptReceiver feeds final results from the speech backend into the loop.
type userTranscriptReceiver struct {
	session *liveSession
}

func (r *userTranscriptReceiver) OnResult(text string, isFinal bool) {
	if !isFinal {
		return
	}
	r.session.post(transcriptionFragment{speaker: transcript.SpeakerUser, text: text})
}

func (r *userTranscriptReceiver) OnError(err error) {
	slog.Warn("user transcription stopped", "session_id", r.session.id, "error", err)
}
