// Package capture owns the two sensing loops of a dialogue turn: the
// facial-emotion [Sampler] that polls the latest camera frame while the user
// speaks, and the VAD-gated [Recorder] that captures the answer.
//
// Camera frames reach the sampler through a [FrameBuffer], a single-writer
// multi-reader slot fed by [Grab]. Readers never block the writer and always
// see the most recent complete frame.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/MrWong99/ioanna/pkg/provider/vision"
)

// ErrStaleFrame is returned by [FrameBuffer.Fresh] when the newest frame is
// older than the allowed age.
var ErrStaleFrame = errors.New("capture: camera frame is stale")

// FrameBuffer holds the latest camera frame. The zero value is ready to use.
type FrameBuffer struct {
	latest atomic.Pointer[vision.Frame]
}

// Store replaces the current frame.
func (b *FrameBuffer) Store(f vision.Frame) {
	b.latest.Store(&f)
}

// Latest returns the current frame and whether one has been stored yet.
func (b *FrameBuffer) Latest() (vision.Frame, bool) {
	p := b.latest.Load()
	if p == nil {
		return vision.Frame{}, false
	}
	return *p, true
}

// Fresh returns nil when a frame captured within maxAge is available. It is
// used as a readiness check.
func (b *FrameBuffer) Fresh(maxAge time.Duration) error {
	f, ok := b.Latest()
	if !ok {
		return vision.ErrNoFrame
	}
	if age := time.Since(f.CapturedAt); age > maxAge {
		return fmt.Errorf("%w: age %s", ErrStaleFrame, age.Round(time.Millisecond))
	}
	return nil
}

// Grab captures a frame from cam every interval and stores it in buf until
// ctx is done. Capture errors are logged once per failure streak so a
// disconnected camera does not flood the log. Grab always returns nil; the
// signature fits an errgroup.
func Grab(ctx context.Context, cam vision.Camera, buf *FrameBuffer, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failing := false
	for {
		f, err := cam.Capture(ctx)
		switch {
		case err == nil:
			if f.CapturedAt.IsZero() {
				f.CapturedAt = time.Now()
			}
			buf.Store(f)
			if failing {
				slog.Info("capture: camera recovered")
				failing = false
			}
		case ctx.Err() != nil:
			return nil
		case !failing:
			slog.Warn("capture: camera capture failed", "err", err)
			failing = true
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
