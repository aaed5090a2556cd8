// Package observe provides application-wide observability primitives for
// Ioanna: OpenTelemetry metrics, tracing, trace-aware logging and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// through the Prometheus bridge set up by [InitProvider], so they can be
// scraped from /metrics. A package-level [DefaultMetrics] is available for
// convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Ioanna metrics.
const meterName = "github.com/MrWong99/ioanna"

// Pipeline stage names used as the "stage" attribute and by [Metrics.Stage].
const (
	StageSTT       = "stt"
	StageLLM       = "llm"
	StageTTS       = "tts"
	StageVision    = "vision"
	StageTone      = "tone"
	StageSentiment = "sentiment"
	StageTurn      = "turn"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// StageDuration tracks per-stage latency. Use with attribute
	// "stage" (see the Stage* constants).
	StageDuration metric.Float64Histogram

	// ImportanceScore records every computed sentence importance.
	ImportanceScore metric.Float64Histogram

	// ProviderRequests counts provider calls by provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider failures by provider and kind.
	ProviderErrors metric.Int64Counter

	// Retries counts retry attempts by operation.
	Retries metric.Int64Counter

	// Turns counts completed dialogue turns by outcome.
	Turns metric.Int64Counter

	// MemoriesPersisted counts memory entries written to the store.
	MemoriesPersisted metric.Int64Counter

	// EmotionSamples counts successful facial-emotion classifications.
	EmotionSamples metric.Int64Counter

	// EventsDropped counts outbound events discarded because a consumer
	// buffer was full. Use with attribute "sink".
	EventsDropped metric.Int64Counter

	// ActiveSessions tracks the number of running dialogue sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time by method and
	// route pattern.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram bucket boundaries in seconds. The upper end
// covers whole recordings, which may last up to 30 s.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// importanceBuckets straddle the default 0.6 threshold. Scores above 1 are
// possible because facial intensity is not clamped.
var importanceBuckets = []float64{
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0, 1.25,
}

// NewMetrics creates a fully initialised [Metrics] using mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.StageDuration, err = m.Float64Histogram("ioanna.stage.duration",
		metric.WithDescription("Latency of a pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ImportanceScore, err = m.Float64Histogram("ioanna.memory.importance",
		metric.WithDescription("Fused importance score per sentence."),
		metric.WithExplicitBucketBoundaries(importanceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("ioanna.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("ioanna.provider.requests",
		metric.WithDescription("Total provider requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("ioanna.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.Retries, err = m.Int64Counter("ioanna.retries",
		metric.WithDescription("Total retry attempts by operation."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("ioanna.turns",
		metric.WithDescription("Total dialogue turns by outcome."),
	); err != nil {
		return nil, err
	}
	if met.MemoriesPersisted, err = m.Int64Counter("ioanna.memories.persisted",
		metric.WithDescription("Total memory entries persisted."),
	); err != nil {
		return nil, err
	}
	if met.EmotionSamples, err = m.Int64Counter("ioanna.emotion.samples",
		metric.WithDescription("Total successful facial-emotion samples."),
	); err != nil {
		return nil, err
	}
	if met.EventsDropped, err = m.Int64Counter("ioanna.events.dropped",
		metric.WithDescription("Outbound events dropped because a buffer was full."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ActiveSessions, err = m.Int64UpDownCounter("ioanna.active_sessions",
		metric.WithDescription("Number of running dialogue sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// ObserveStage records the time elapsed since start for stage.
func (m *Metrics) ObserveStage(ctx context.Context, stage string, start time.Time) {
	m.StageDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordProviderRequest records one provider call with its outcome.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordRetry records one retry of operation.
func (m *Metrics) RecordRetry(ctx context.Context, operation string) {
	m.Retries.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordImportance records a sentence score and whether it was kept.
func (m *Metrics) RecordImportance(ctx context.Context, score float64, kept bool) {
	m.ImportanceScore.Record(ctx, score, metric.WithAttributes(attribute.Bool("kept", kept)))
}

// RecordTurn records a finished turn. Outcome is "ok", "empty" or "error".
func (m *Metrics) RecordTurn(ctx context.Context, outcome string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordEventDropped records an event discarded by sink.
func (m *Metrics) RecordEventDropped(ctx context.Context, sink string) {
	m.EventsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("sink", sink)))
}
