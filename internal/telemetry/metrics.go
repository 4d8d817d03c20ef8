package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type SessionMetrics struct {
	sessions       metric.Int64Counter
	active         metric.Int64UpDownCounter
	chunksSent     metric.Int64Counter
	chunksDropped  metric.Int64Counter
	clipsScheduled metric.Int64Counter
	interruptions  metric.Int64Counter
	decodeErrors   metric.Int64Counter
	transcript     metric.Int64Counter
}

func NewSessionMetrics(meter metric.Meter) (*SessionMetrics, error) {
	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}
	active, err := meter.Int64UpDownCounter("rockhype.session.active", metric.WithDescription("Live sessions currently listening"))
	errs = append(errs, err)

	m := &SessionMetrics{
		sessions:       counter("rockhype.session.ended", "Live sessions that ended, by outcome"),
		active:         active,
		chunksSent:     counter("rockhype.audio.chunks_sent", "Microphone chunks sent to the live voice service"),
		chunksDropped:  counter("rockhype.audio.chunks_dropped", "Microphone chunks dropped before or during send"),
		clipsScheduled: counter("rockhype.audio.clips_scheduled", "Inbound clips scheduled for playback"),
		interruptions:  counter("rockhype.audio.interruptions", "Barge-in interruptions applied"),
		decodeErrors:   counter("rockhype.audio.decode_errors", "Inbound audio payloads that failed to decode"),
		transcript:     counter("rockhype.transcript.entries", "Transcript entries appended, by speaker"),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func NoopSessionMetrics() *SessionMetrics {
	m, _ := NewSessionMetrics(noop.NewMeterProvider().Meter(ServiceName))
	return m
}

func (m *SessionMetrics) SessionStarted(ctx context.Context) {
	m.active.Add(ctx, 1)
}

func (m *SessionMetrics) SessionEnded(ctx context.Context, outcome string) {
	m.active.Add(ctx, -1)
	m.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *SessionMetrics) ChunkSent(ctx context.Context) {
	m.chunksSent.Add(ctx, 1)
}

func (m *SessionMetrics) ChunkDropped(ctx context.Context, reason string) {
	m.chunksDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *SessionMetrics) ClipScheduled(ctx context.Context) {
	m.clipsScheduled.Add(ctx, 1)
}

func (m *SessionMetrics) Interrupted(ctx context.Context) {
	m.interruptions.Add(ctx, 1)
}

func (m *SessionMetrics) DecodeFailed(ctx context.Context) {
	m.decodeErrors.Add(ctx, 1)
}

func (m *SessionMetrics) TranscriptAppended(ctx context.Context, speaker string) {
	m.transcript.Add(ctx, 1, metric.WithAttributes(attribute.String("speaker", speaker)))
}

type GenerationMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

func NewGenerationMetrics(meter metric.Meter) (*GenerationMetrics, error) {
	requests, err := meter.Int64Counter("rockhype.generation.requests", metric.WithDescription("Generation requests, by kind and outcome"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("rockhype.generation.duration", metric.WithDescription("Generation request latency"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &GenerationMetrics{requests: requests, latency: latency}, nil
}

func NoopGenerationMetrics() *GenerationMetrics {
	m, _ := NewGenerationMetrics(noop.NewMeterProvider().Meter(ServiceName))
	return m
}

func (m *GenerationMetrics) Observe(ctx context.Context, kind string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind), attribute.String("outcome", outcome))
	m.requests.Add(ctx, 1, attrs)
	m.latency.Record(ctx, time.Since(started).Seconds(), attrs)
}
