package observe

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

// restoreGlobals puts the global OTel providers back after a test installs
// its own.
func restoreGlobals(t *testing.T) {
	t.Helper()
	mp, tp, prop := otel.GetMeterProvider(), otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestInitProvider_ExportsToRegistry(t *testing.T) {
	restoreGlobals(t)
	reg := prometheus.NewRegistry()

	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		ServiceVersion: "test",
		Registerer:     reg,
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	m.RecordTurn(context.Background(), "persisted")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found bool
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "ioanna_turns") {
			found = true
		}
	}
	if !found {
		t.Errorf("turn counter not exported to the registry")
	}

	ctx, span := StartSpan(context.Background(), "probe")
	defer span.End()
	if CorrelationID(ctx) == "" {
		t.Error("global tracer provider does not produce trace IDs")
	}
}

func TestInitProvider_RejectsSampleRatio(t *testing.T) {
	for _, ratio := range []float64{-0.1, 1.5} {
		if _, err := InitProvider(context.Background(), ProviderConfig{SampleRatio: ratio}); err == nil {
			t.Errorf("SampleRatio %v: expected error", ratio)
		}
	}
}

func TestInitProvider_SampledShutdown(t *testing.T) {
	restoreGlobals(t)

	shutdown, err := InitProvider(context.Background(), ProviderConfig{
		SampleRatio: 0.5,
		Registerer:  prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
