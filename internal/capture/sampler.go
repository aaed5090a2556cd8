package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/ioanna/internal/observe"
	"github.com/MrWong99/ioanna/internal/resilience"
	"github.com/MrWong99/ioanna/pkg/provider/vision"
	"github.com/MrWong99/ioanna/pkg/types"
)

// Default sampler timing.
const (
	DefaultPollInterval     = 100 * time.Millisecond
	DefaultMinQueryInterval = 500 * time.Millisecond
)

// RetryOperation labels classifier retries in the retries counter.
const RetryOperation = "emotion_classify"

// SamplerOption configures a [Sampler].
type SamplerOption func(*Sampler)

// WithPollInterval sets how often the sampler wakes up to check the throttle.
func WithPollInterval(d time.Duration) SamplerOption {
	return func(s *Sampler) { s.poll = d }
}

// WithMinQueryInterval sets the minimum time between the last successful
// classification and the next query.
func WithMinQueryInterval(d time.Duration) SamplerOption {
	return func(s *Sampler) { s.minQuery = d }
}

// WithRetryPolicy overrides the retry policy for transient classifier
// failures. Retryable is always forced to [vision.IsTransient]. A non-nil
// OnRetry runs after the sampler has logged and counted the retry.
func WithRetryPolicy(p resilience.RetryPolicy) SamplerOption {
	return func(s *Sampler) { s.retry = p }
}

// WithSamplerMetrics records stage latency, samples and retries on m.
func WithSamplerMetrics(m *observe.Metrics) SamplerOption {
	return func(s *Sampler) { s.metrics = m }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SamplerOption {
	return func(s *Sampler) { s.now = now }
}

// Sampler collects facial-emotion samples while a recording is in progress.
//
// Run polls the [FrameBuffer] every poll interval. A classification request is
// only sent when at least the minimum query interval has passed since the
// last successful one; a frame without a face does not count as success.
// Transient classifier failures are retried, anything else drops the cycle.
type Sampler struct {
	frames     *FrameBuffer
	classifier vision.EmotionClassifier

	poll     time.Duration
	minQuery time.Duration
	retry    resilience.RetryPolicy
	metrics  *observe.Metrics
	now      func() time.Time

	mu      sync.Mutex
	samples []types.EmotionSample
}

// NewSampler returns a sampler reading frames from frames and classifying
// them with classifier.
func NewSampler(frames *FrameBuffer, classifier vision.EmotionClassifier, opts ...SamplerOption) *Sampler {
	s := &Sampler{
		frames:     frames,
		classifier: classifier,
		poll:       DefaultPollInterval,
		minQuery:   DefaultMinQueryInterval,
		retry:      resilience.DefaultRetryPolicy,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.retry.Retryable = vision.IsTransient
	return s
}

// Run samples until active is cleared or ctx is done and returns the samples
// of this run in timestamp order. Samples from a previous run are discarded
// when Run starts. If active is already false Run returns immediately.
func (s *Sampler) Run(ctx context.Context, active *atomic.Bool) []types.EmotionSample {
	s.mu.Lock()
	s.samples = nil
	s.mu.Unlock()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	var lastSuccess time.Time
	for active.Load() && ctx.Err() == nil {
		if lastSuccess.IsZero() || s.now().Sub(lastSuccess) >= s.minQuery {
			if at, ok := s.sample(ctx); ok {
				lastSuccess = at
			}
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
	return s.Samples()
}

// Samples returns a snapshot of the samples collected by the current run.
func (s *Sampler) Samples() []types.EmotionSample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.EmotionSample(nil), s.samples...)
}

// sample runs one classification cycle and reports the success time.
func (s *Sampler) sample(ctx context.Context) (time.Time, bool) {
	frame, ok := s.frames.Latest()
	if !ok {
		return time.Time{}, false
	}

	policy := s.retry
	hook := s.retry.OnRetry
	policy.OnRetry = func(attempt int, err error) {
		slog.Debug("capture: retrying emotion classification", "attempt", attempt, "err", err)
		if s.metrics != nil {
			s.metrics.RecordRetry(ctx, RetryOperation)
		}
		if hook != nil {
			hook(attempt, err)
		}
	}

	start := time.Now()
	l, err := resilience.RetryValue(ctx, policy, func(ctx context.Context) (types.Likelihoods, error) {
		return s.classifier.Classify(ctx, frame)
	})
	if s.metrics != nil {
		s.metrics.ObserveStage(ctx, observe.StageVision, start)
	}
	switch {
	case err == nil:
	case errors.Is(err, vision.ErrNoFace):
		return time.Time{}, false
	case ctx.Err() != nil:
		return time.Time{}, false
	default:
		slog.Warn("capture: emotion classification failed", "err", err)
		if s.metrics != nil {
			s.metrics.RecordProviderError(ctx, "vision", "emotion")
		}
		return time.Time{}, false
	}

	at := s.now()
	s.mu.Lock()
	s.samples = append(s.samples, types.EmotionSample{Likelihoods: l, At: at})
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.EmotionSamples.Add(ctx, 1)
	}
	return at, true
}
