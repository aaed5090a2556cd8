package capture

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/ioanna/internal/observe"
	"github.com/MrWong99/ioanna/internal/resilience"
	"github.com/MrWong99/ioanna/pkg/provider/vision"
	visionmock "github.com/MrWong99/ioanna/pkg/provider/vision/mock"
	"github.com/MrWong99/ioanna/pkg/types"
)

// testClock is a manually advanced clock safe for concurrent use.
type testClock struct {
	base   time.Time
	offset atomic.Int64
}

func newTestClock() *testClock {
	return &testClock{base: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	return c.base.Add(time.Duration(c.offset.Load()))
}

func (c *testClock) Advance(d time.Duration) {
	c.offset.Add(int64(d))
}

func bufferWithFrame() *FrameBuffer {
	buf := &FrameBuffer{}
	buf.Store(vision.Frame{Image: []byte("jpeg"), ContentType: "image/jpeg", CapturedAt: time.Now()})
	return buf
}

func newTestSampler(buf *FrameBuffer, c vision.EmotionClassifier, clock *testClock) *Sampler {
	return NewSampler(buf, c,
		WithPollInterval(time.Millisecond),
		WithClock(clock.Now),
		WithRetryPolicy(resilience.RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}),
	)
}

func runFor(s *Sampler, d time.Duration) []types.EmotionSample {
	var active atomic.Bool
	active.Store(true)
	time.AfterFunc(d, func() { active.Store(false) })
	return s.Run(context.Background(), &active)
}

func TestSampler_ThrottlesAfterSuccess(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	c := &visionmock.Classifier{Result: types.Likelihoods{Joy: 4}}
	s := newTestSampler(bufferWithFrame(), c, clock)

	samples := runFor(s, 30*time.Millisecond)

	if got := c.Calls(); got != 1 {
		t.Errorf("classify calls = %d, want 1 while the clock is frozen", got)
	}
	if len(samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(samples))
	}
	if samples[0].Likelihoods.Joy != 4 {
		t.Errorf("joy = %d, want 4", samples[0].Likelihoods.Joy)
	}
	if !samples[0].At.Equal(clock.Now()) {
		t.Errorf("At = %v, want %v", samples[0].At, clock.Now())
	}
}

func TestSampler_QueriesAgainAfterInterval(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	var active atomic.Bool
	active.Store(true)
	c := &visionmock.Classifier{Fn: func(call int) (types.Likelihoods, error) {
		clock.Advance(DefaultMinQueryInterval)
		if call == 2 {
			active.Store(false)
		}
		return types.Likelihoods{Anger: types.Likelihood(call + 1)}, nil
	}}
	s := newTestSampler(bufferWithFrame(), c, clock)

	samples := s.Run(context.Background(), &active)
	if len(samples) != 3 {
		t.Fatalf("samples = %d, want 3", len(samples))
	}
	for i := 1; i < len(samples); i++ {
		if !samples[i].At.After(samples[i-1].At) {
			t.Errorf("sample %d not after sample %d", i, i-1)
		}
		if d := samples[i].At.Sub(samples[i-1].At); d < DefaultMinQueryInterval {
			t.Errorf("gap between samples = %v, want >= %v", d, DefaultMinQueryInterval)
		}
	}
}

func TestSampler_NoFaceDoesNotResetThrottle(t *testing.T) {
	t.Parallel()

	clock := newTestClock()
	var active atomic.Bool
	active.Store(true)
	c := &visionmock.Classifier{Fn: func(call int) (types.Likelihoods, error) {
		if call == 4 {
			active.Store(false)
		}
		return types.Likelihoods{}, vision.ErrNoFace
	}}
	s := newTestSampler(bufferWithFrame(), c, clock)

	samples := s.Run(context.Background(), &active)
	if len(samples) != 0 {
		t.Errorf("samples = %d, want 0", len(samples))
	}
	// The clock never moved, so repeated queries prove no-face is not a success.
	if got := c.Calls(); got != 5 {
		t.Errorf("classify calls = %d, want 5", got)
	}
}

func TestSampler_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	transient := fmt.Errorf("503: %w", vision.ErrTransient)
	c := &visionmock.Classifier{
		Errs:   []error{transient, transient, nil},
		Result: types.Likelihoods{Sorrow: 2},
	}
	s := newTestSampler(bufferWithFrame(), c, newTestClock())

	samples := runFor(s, 30*time.Millisecond)
	if got := c.Calls(); got != 3 {
		t.Errorf("classify calls = %d, want 3", got)
	}
	if len(samples) != 1 || samples[0].Likelihoods.Sorrow != 2 {
		t.Errorf("samples = %+v, want one sample with sorrow 2", samples)
	}
}

// counterValue sums the int64 counter name over points matching key=value.
// An empty key sums every point.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name, key, value string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not an int64 sum", name)
			}
			for _, dp := range sum.DataPoints {
				want := attribute.NewSet(attribute.String(key, value))
				if key == "" || dp.Attributes.Equivalent() == want.Equivalent() {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestSampler_RetryHookAndMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	met, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	var hookCalls atomic.Int32
	transient := fmt.Errorf("503: %w", vision.ErrTransient)
	c := &visionmock.Classifier{
		Errs:   []error{transient, transient, nil},
		Result: types.Likelihoods{Joy: 3},
	}
	s := NewSampler(bufferWithFrame(), c,
		WithPollInterval(time.Millisecond),
		WithClock(newTestClock().Now),
		WithSamplerMetrics(met),
		WithRetryPolicy(resilience.RetryPolicy{
			MaxAttempts: 3,
			Backoff:     time.Millisecond,
			OnRetry:     func(int, error) { hookCalls.Add(1) },
		}),
	)

	samples := runFor(s, 30*time.Millisecond)
	if len(samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(samples))
	}
	if got := hookCalls.Load(); got != 2 {
		t.Errorf("caller OnRetry calls = %d, want 2", got)
	}
	if got := counterValue(t, reader, "ioanna.retries", "operation", RetryOperation); got != 2 {
		t.Errorf("retries{operation=%s} = %d, want 2", RetryOperation, got)
	}
	if got := counterValue(t, reader, "ioanna.emotion.samples", "", ""); got != 1 {
		t.Errorf("emotion samples = %d, want 1", got)
	}
}

func TestSampler_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var active atomic.Bool
	active.Store(true)
	c := &visionmock.Classifier{Fn: func(call int) (types.Likelihoods, error) {
		if call == 2 {
			active.Store(false)
		}
		return types.Likelihoods{}, vision.ErrTransient
	}}
	s := newTestSampler(bufferWithFrame(), c, newTestClock())

	if samples := s.Run(context.Background(), &active); len(samples) != 0 {
		t.Errorf("samples = %d, want 0", len(samples))
	}
	if got := c.Calls(); got != 3 {
		t.Errorf("classify calls = %d, want 3", got)
	}
}

func TestSampler_DoesNotRetryPermanentFailures(t *testing.T) {
	t.Parallel()

	var active atomic.Bool
	active.Store(true)
	c := &visionmock.Classifier{Fn: func(int) (types.Likelihoods, error) {
		active.Store(false)
		return types.Likelihoods{}, errors.New("invalid api key")
	}}
	s := newTestSampler(bufferWithFrame(), c, newTestClock())

	s.Run(context.Background(), &active)
	if got := c.Calls(); got != 1 {
		t.Errorf("classify calls = %d, want 1", got)
	}
}

func TestSampler_InactiveReturnsImmediately(t *testing.T) {
	t.Parallel()

	c := &visionmock.Classifier{}
	s := newTestSampler(bufferWithFrame(), c, newTestClock())

	var active atomic.Bool
	if samples := s.Run(context.Background(), &active); len(samples) != 0 {
		t.Errorf("samples = %d, want 0", len(samples))
	}
	if c.Calls() != 0 {
		t.Errorf("classify calls = %d, want 0", c.Calls())
	}
}

func TestSampler_NoFrameNoQuery(t *testing.T) {
	t.Parallel()

	c := &visionmock.Classifier{}
	s := newTestSampler(&FrameBuffer{}, c, newTestClock())

	runFor(s, 20*time.Millisecond)
	if c.Calls() != 0 {
		t.Errorf("classify calls = %d, want 0 without a frame", c.Calls())
	}
}

func TestSampler_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var active atomic.Bool
	active.Store(true)
	s := newTestSampler(bufferWithFrame(), &visionmock.Classifier{}, newTestClock())

	done := make(chan struct{})
	go func() {
		s.Run(ctx, &active)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSampler_RunResetsSamples(t *testing.T) {
	t.Parallel()

	s := newTestSampler(bufferWithFrame(), &visionmock.Classifier{}, newTestClock())

	if n := len(runFor(s, 10*time.Millisecond)); n != 1 {
		t.Fatalf("first run samples = %d, want 1", n)
	}
	if n := len(runFor(s, 10*time.Millisecond)); n != 1 {
		t.Errorf("second run samples = %d, want 1 (fresh run)", n)
	}
	if n := len(s.Samples()); n != 1 {
		t.Errorf("Samples() = %d, want 1", n)
	}
}
