// Package vad defines the voice activity detection boundary used by the
// audio recorder.
//
// An [Engine] creates per-recording [SessionHandle]s. The recorder feeds every
// captured chunk to ProcessFrame and uses the returned event to keep its
// silence counter: any speech event resets it, [VADSilence] and [VADSpeechEnd]
// advance it. The detection algorithm itself is the engine's business.
package vad

import "errors"

// ErrSessionClosed is returned by ProcessFrame after Close.
var ErrSessionClosed = errors.New("vad: session closed")

// Config describes the audio a session will analyse.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the frames passed to
	// ProcessFrame.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds.
	FrameSizeMs int

	// SpeechThreshold is the score above which a frame is classified as
	// speech. Range: [0.0, 1.0].
	SpeechThreshold float64

	// SilenceThreshold is the score below which an active speech segment is
	// considered ended. Must be ≤ SpeechThreshold.
	SilenceThreshold float64
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, errors.New("vad: sample rate must be positive"))
	}
	if c.FrameSizeMs <= 0 {
		errs = append(errs, errors.New("vad: frame size must be positive"))
	}
	if c.SpeechThreshold < 0 || c.SpeechThreshold > 1 {
		errs = append(errs, errors.New("vad: speech threshold must be in [0,1]"))
	}
	if c.SilenceThreshold < 0 || c.SilenceThreshold > c.SpeechThreshold {
		errs = append(errs, errors.New("vad: silence threshold must be in [0, speech threshold]"))
	}
	return errors.Join(errs...)
}

// SessionHandle is one open detection session. It is not safe for concurrent
// ProcessFrame calls; Close may be called from another goroutine.
type SessionHandle interface {
	// ProcessFrame analyses a single frame of little-endian 16-bit PCM and
	// returns the detection result. It must not block.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears accumulated detection state without closing the session.
	Reset()

	// Close releases all resources. Calling Close more than once is safe.
	Close() error
}

// Engine creates detection sessions.
type Engine interface {
	NewSession(cfg Config) (SessionHandle, error)
}
