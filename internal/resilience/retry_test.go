package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		policy    RetryPolicy
		failures  int
		failWith  error
		wantCalls int
		wantErr   error
	}{
		{
			name:      "first try",
			policy:    RetryPolicy{MaxAttempts: 3},
			wantCalls: 1,
		},
		{
			name:      "succeeds on third",
			policy:    RetryPolicy{MaxAttempts: 3},
			failures:  2,
			failWith:  errTransient,
			wantCalls: 3,
		},
		{
			name:      "exhausted",
			policy:    RetryPolicy{MaxAttempts: 3},
			failures:  5,
			failWith:  errTransient,
			wantCalls: 3,
			wantErr:   errTransient,
		},
		{
			name: "non retryable",
			policy: RetryPolicy{
				MaxAttempts: 3,
				Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
			},
			failures:  5,
			failWith:  errTest,
			wantCalls: 1,
			wantErr:   errTest,
		},
		{
			name:      "zero attempts means one",
			policy:    RetryPolicy{},
			failures:  1,
			failWith:  errTransient,
			wantCalls: 1,
			wantErr:   errTransient,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), tt.policy, func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}
				return nil
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("err = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetry_BackoffAndOnRetry(t *testing.T) {
	var attempts []int
	start := time.Now()
	v, err := RetryValue(context.Background(), RetryPolicy{
		MaxAttempts: 3,
		Backoff:     20 * time.Millisecond,
		OnRetry:     func(a int, _ error) { attempts = append(attempts, a) },
	}, func(context.Context) (string, error) {
		if len(attempts) < 2 {
			return "", errTransient
		}
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Fatalf("got %q, %v", v, err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("elapsed %v, want at least two backoffs", elapsed)
	}
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("OnRetry attempts = %v", attempts)
	}
}

func TestRetry_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, RetryPolicy{MaxAttempts: 5, Backoff: time.Hour}, func(context.Context) error {
			calls++
			return errTransient
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, errTransient) {
			t.Errorf("err = %v, want last attempt error", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Retry did not return after cancel")
	}
	if calls != 1 {
		t.Errorf("calls = %d", calls)
	}
}

func TestRetry_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := Retry(ctx, DefaultRetryPolicy, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("err = %v, called = %v", err, called)
	}
}
