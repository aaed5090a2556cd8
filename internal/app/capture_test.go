package app

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/MrWong99/ioanna/internal/config"
	"github.com/MrWong99/ioanna/internal/resilience"
	"github.com/MrWong99/ioanna/pkg/provider/vision"
)

func TestEmotionRetryPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		capture     config.CaptureConfig
		wantBackoff time.Duration
		wantTries   int
	}{
		{
			name:        "defaults",
			wantBackoff: time.Second,
			wantTries:   3,
		},
		{
			name:        "poll interval does not leak into backoff",
			capture:     config.CaptureConfig{EmotionPollInterval: 20 * time.Millisecond},
			wantBackoff: time.Second,
			wantTries:   3,
		},
		{
			name:        "explicit",
			capture:     config.CaptureConfig{EmotionRetries: 5, EmotionRetryBackoff: 250 * time.Millisecond},
			wantBackoff: 250 * time.Millisecond,
			wantTries:   5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{Capture: tt.capture}
			config.ApplyDefaults(cfg)

			p := emotionRetryPolicy(cfg.Capture)
			if p.Backoff != tt.wantBackoff {
				t.Errorf("Backoff = %v, want %v", p.Backoff, tt.wantBackoff)
			}
			if p.MaxAttempts != tt.wantTries {
				t.Errorf("MaxAttempts = %d, want %d", p.MaxAttempts, tt.wantTries)
			}
			if p.OnRetry != nil {
				t.Error("OnRetry set; the sampler records retries itself")
			}
			if !p.Retryable(fmt.Errorf("503: %w", vision.ErrTransient)) || p.Retryable(errors.New("bad key")) {
				t.Error("Retryable does not follow vision.IsTransient")
			}
		})
	}
}

func TestEmotionRetryPolicy_MatchesDefaultBackoff(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if got, want := emotionRetryPolicy(cfg.Capture).Backoff, resilience.DefaultRetryPolicy.Backoff; got != want {
		t.Errorf("Backoff = %v, want resilience default %v", got, want)
	}
}
