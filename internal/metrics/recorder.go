package metrics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder publishes gateway metrics through the OpenTelemetry meter
// registered by the telemetry bootstrap.
type Recorder struct {
	logger *slog.Logger

	requests    metric.Int64Counter
	errors      metric.Int64Counter
	jobOutcomes metric.Int64Counter
	audioChunks metric.Int64Counter
	audioBytes  metric.Int64Counter
	firstChunk  metric.Float64Histogram

	active atomic.Int64
}

func NewRecorder(logger *slog.Logger) (*Recorder, error) {
	meter := otel.Meter("github.com/profai/voice-gateway/gateway")
	r := &Recorder{logger: logger.With(slog.String("component", "metrics"))}

	var err error
	if r.requests, err = meter.Int64Counter("voicegw.requests.total",
		metric.WithDescription("Client requests by kind")); err != nil {
		return nil, err
	}
	if r.errors, err = meter.Int64Counter("voicegw.errors.total",
		metric.WithDescription("Request failures by kind")); err != nil {
		return nil, err
	}
	if r.jobOutcomes, err = meter.Int64Counter("voicegw.audio.jobs.total",
		metric.WithDescription("Audio stream jobs by terminal outcome")); err != nil {
		return nil, err
	}
	if r.audioChunks, err = meter.Int64Counter("voicegw.audio.chunks.total",
		metric.WithDescription("Audio chunks delivered to clients")); err != nil {
		return nil, err
	}
	if r.audioBytes, err = meter.Int64Counter("voicegw.audio.bytes.total",
		metric.WithDescription("Audio bytes delivered to clients")); err != nil {
		return nil, err
	}
	if r.firstChunk, err = meter.Float64Histogram("voicegw.audio.first_chunk_latency_ms",
		metric.WithDescription("Latency from request to first audio chunk")); err != nil {
		return nil, err
	}

	sessions, err := meter.Int64ObservableGauge("voicegw.sessions.active",
		metric.WithDescription("Currently connected sessions"))
	if err != nil {
		return nil, err
	}
	if _, err := meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		obs.ObserveInt64(sessions, r.active.Load())
		return nil
	}, sessions); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) SessionOpened() { r.active.Add(1) }
func (r *Recorder) SessionClosed() { r.active.Add(-1) }

// ActiveSessions reports the current connection count.
func (r *Recorder) ActiveSessions() int64 { return r.active.Load() }

func (r *Recorder) RecordRequest(ctx context.Context, kind string) {
	r.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (r *Recorder) RecordError(ctx context.Context, kind string) {
	r.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (r *Recorder) RecordFirstChunk(ctx context.Context, latency time.Duration) {
	r.firstChunk.Record(ctx, float64(latency.Milliseconds()))
}

func (r *Recorder) RecordAudio(ctx context.Context, chunks, bytes int64) {
	r.audioChunks.Add(ctx, chunks)
	r.audioBytes.Add(ctx, bytes)
}

func (r *Recorder) RecordJobOutcome(ctx context.Context, outcome string) {
	r.jobOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
