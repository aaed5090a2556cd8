package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the int64 sum data point whose attribute key
// equals value, and whether it was found.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) (int64, bool) {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not an int64 sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value, true
		}
	}
	return 0, false
}

func TestObserveStage(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	stages := []string{StageSTT, StageLLM, StageTTS, StageVision, StageTone, StageSentiment, StageTurn}
	for _, s := range stages {
		m.ObserveStage(ctx, s, time.Now().Add(-50*time.Millisecond))
	}

	rm := collect(t, reader)
	met := findMetric(rm, "ioanna.stage.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != len(stages) {
		t.Fatalf("data points = %d, want %d", len(hist.DataPoints), len(stages))
	}
	for _, dp := range hist.DataPoints {
		if dp.Count != 1 {
			t.Errorf("count = %d, want 1", dp.Count)
		}
		if dp.Sum < 0.05 {
			t.Errorf("sum = %f, want >= 0.05", dp.Sum)
		}
	}
}

func TestRecordProviderRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderRequest(ctx, "openai", "llm", "ok")
	m.RecordProviderRequest(ctx, "openai", "llm", "ok")
	m.RecordProviderRequest(ctx, "openai", "llm", "error")

	rm := collect(t, reader)
	got, found := sumFor(t, rm, "ioanna.provider.requests", "status", "ok")
	if !found {
		t.Fatal("data point with status=ok not found")
	}
	if got != 2 {
		t.Errorf("counter value = %d, want 2", got)
	}
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderError(ctx, "gcpvision", "vision")
	m.RecordRetry(ctx, "vision.classify")
	m.RecordRetry(ctx, "vision.classify")
	m.RecordTurn(ctx, "ok")
	m.RecordEventDropped(ctx, "hub")

	rm := collect(t, reader)

	tests := []struct {
		name, key, value string
		want             int64
	}{
		{"ioanna.provider.errors", "provider", "gcpvision", 1},
		{"ioanna.retries", "operation", "vision.classify", 2},
		{"ioanna.turns", "outcome", "ok", 1},
		{"ioanna.events.dropped", "sink", "hub", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, found := sumFor(t, rm, tc.name, tc.key, tc.value)
			if !found {
				t.Fatalf("data point %s=%s not found", tc.key, tc.value)
			}
			if got != tc.want {
				t.Errorf("value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRecordImportance(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordImportance(ctx, 1.05, true)
	m.RecordImportance(ctx, 0.05, false)

	rm := collect(t, reader)
	met := findMetric(rm, "ioanna.memory.importance")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 2 {
		t.Fatalf("data points = %d, want 2 (kept and dropped)", len(hist.DataPoints))
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)
	m.MemoriesPersisted.Add(ctx, 3)
	m.EmotionSamples.Add(ctx, 7)

	rm := collect(t, reader)

	gauges := []struct {
		name string
		want int64
	}{
		{"ioanna.active_sessions", 1},
		{"ioanna.memories.persisted", 3},
		{"ioanna.emotion.samples", 7},
	}
	for _, tc := range gauges {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", tc.name)
			}
			if len(sum.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
