// Package resilience keeps Ioanna talking when an external service misbehaves.
//
// [Retry] re-runs a call that failed with a transient error, such as the
// emotion classifier answering "service unavailable". [CircuitBreaker] stops
// calling a backend that keeps failing and probes it again after a cool-down.
// [FallbackGroup] puts several providers of one kind behind individual
// breakers and walks them in order.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects calls until the reset timeout has passed.
	StateOpen
	// StateHalfOpen lets a bounded number of probe calls through. Enough
	// successes close the breaker; any failure opens it again.
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values take defaults.
type CircuitBreakerConfig struct {
	// Name labels log lines and state change callbacks.
	Name string

	// MaxFailures is the run of consecutive failures that opens the
	// breaker. Default 5.
	MaxFailures int

	// ResetTimeout is the cool-down before probing. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is both the probe concurrency and the number of successful
	// probes needed to close. Default 3.
	HalfOpenMax int

	// OnStateChange runs after each transition, outside the breaker lock.
	OnStateChange func(name string, from, to State)
}

// CircuitBreaker is a closed / open / half-open breaker around one backend.
//
// Context cancellation and deadline errors pass through without counting as
// failures: a stopped session says nothing about the backend's health.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	onChange     func(name string, from, to State)
	now          func() time.Time

	mu        sync.Mutex
	state     State
	failures  int       // consecutive failures while closed
	openedAt  time.Time // last transition into StateOpen
	inFlight  int       // admitted half-open probes not yet settled
	successes int       // successful half-open probes
}

// NewCircuitBreaker returns a closed breaker configured by cfg.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		onChange:     cfg.OnStateChange,
		now:          time.Now,
	}
}

// Name returns the configured label.
func (cb *CircuitBreaker) Name() string { return cb.name }

// Execute runs fn unless the breaker rejects the call with [ErrCircuitOpen].
// fn's error is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

// admit decides whether a call may proceed and reports whether it counts as
// a half-open probe.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	var changed func()
	defer func() {
		cb.mu.Unlock()
		if changed != nil {
			changed()
		}
	}()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.inFlight, cb.successes = 0, 0
		changed = cb.moveTo(StateHalfOpen)
	}
	if cb.state != StateHalfOpen {
		return false, nil
	}
	if cb.inFlight+cb.successes >= cb.halfOpenMax {
		return false, ErrCircuitOpen
	}
	cb.inFlight++
	return true, nil
}

// settle records the outcome of an admitted call.
func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	var changed func()
	defer func() {
		cb.mu.Unlock()
		if changed != nil {
			changed()
		}
	}()

	if probe && cb.inFlight > 0 {
		cb.inFlight--
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	switch {
	case err == nil && !probe:
		cb.failures = 0
	case err == nil:
		// A probe admitted before a Reset may finish after it.
		if cb.state != StateHalfOpen {
			return
		}
		cb.successes++
		if cb.successes >= cb.halfOpenMax {
			cb.failures = 0
			changed = cb.moveTo(StateClosed)
		}
	case probe:
		if cb.state == StateHalfOpen {
			changed = cb.moveTo(StateOpen)
		}
	default:
		cb.failures++
		if cb.failures >= cb.maxFailures && cb.state == StateClosed {
			changed = cb.moveTo(StateOpen)
		}
	}
}

// moveTo switches state, logs, and returns the callback to run once the lock
// is released. Caller holds cb.mu.
func (cb *CircuitBreaker) moveTo(next State) func() {
	from := cb.state
	if from == next {
		return nil
	}
	cb.state = next
	if next == StateOpen {
		cb.openedAt = cb.now()
	}

	level := slog.LevelInfo
	if next == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "circuit breaker state changed",
		"breaker", cb.name, "from", from.String(), "to", next.String(), "failures", cb.failures)

	if cb.onChange == nil {
		return nil
	}
	hook, name := cb.onChange, cb.name
	return func() { hook(name, from, next) }
}

// State reports the current state. An open breaker whose cool-down has
// passed reports [StateHalfOpen]; the switch itself happens on the next call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	changed := cb.moveTo(StateClosed)
	cb.failures, cb.inFlight, cb.successes = 0, 0, 0
	cb.mu.Unlock()
	if changed != nil {
		changed()
	}
}
