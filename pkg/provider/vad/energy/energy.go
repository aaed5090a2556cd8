// Package energy implements an RMS-energy voice activity detector.
//
// Each frame's RMS is mapped linearly onto [0,1] against a full-scale
// reference, and a two-threshold hysteresis turns the score into speech
// start/continue/end events. It needs no model and works well for a single
// close-talking microphone, which is Ioanna's setup.
package energy

import (
	"fmt"
	"sync/atomic"

	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/provider/vad"
)

// DefaultFullScaleRMS is the RMS that maps to probability 1.0. Normal speech
// into a desk microphone sits around 1000–5000.
const DefaultFullScaleRMS = 3000.0

var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*session)(nil)
)

// Option configures an Engine.
type Option func(*Engine)

// WithFullScaleRMS overrides [DefaultFullScaleRMS].
func WithFullScaleRMS(rms float64) Option {
	return func(e *Engine) {
		if rms > 0 {
			e.fullScale = rms
		}
	}
}

// Engine creates energy-based detection sessions.
type Engine struct {
	fullScale float64
}

// New returns an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{fullScale: DefaultFullScaleRMS}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("energy: %w", err)
	}
	return &session{cfg: cfg, fullScale: e.fullScale}, nil
}

type session struct {
	cfg       vad.Config
	fullScale float64
	speaking  bool
	closed    atomic.Bool
}

func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	if s.closed.Load() {
		return vad.VADEvent{}, vad.ErrSessionClosed
	}
	p := min(audio.RMS(frame)/s.fullScale, 1)

	ev := vad.VADEvent{Probability: p}
	switch {
	case !s.speaking && p >= s.cfg.SpeechThreshold:
		s.speaking = true
		ev.Type = vad.VADSpeechStart
	case s.speaking && p < s.cfg.SilenceThreshold:
		s.speaking = false
		ev.Type = vad.VADSpeechEnd
	case s.speaking:
		ev.Type = vad.VADSpeechContinue
	default:
		ev.Type = vad.VADSilence
	}
	return ev, nil
}

func (s *session) Reset() { s.speaking = false }

func (s *session) Close() error {
	s.closed.Store(true)
	return nil
}
