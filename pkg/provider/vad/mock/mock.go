// Package mock provides test doubles for the vad package interfaces.
//
// Use Engine to verify that sessions are created with the expected Config.
// Use Session to script per-frame events and inspect the frames that were
// submitted for processing.
//
// Example:
//
//	sess := &mock.Session{Classify: func(i int, _ []byte) vad.VADEvent {
//	    return vad.VADEvent{Type: vad.VADSpeechContinue}
//	}}
//	eng := &mock.Engine{Session: sess}
package mock

import (
	"sync"

	"github.com/MrWong99/ioanna/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil a default Session is returned.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// Configs records the Config of every NewSession call.
	Configs []vad.Config
}

var _ vad.Engine = (*Engine)(nil)

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Configs = append(e.Configs, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Classify, when set, decides the event for the i-th frame (0-based).
	// Otherwise Events are returned in order and EventResult afterwards.
	Classify func(i int, frame []byte) vad.VADEvent

	// Events are returned in order, one per frame.
	Events []vad.VADEvent

	// EventResult is returned once Events is exhausted. Its zero value is a
	// speech start, so set it explicitly for silence.
	EventResult vad.VADEvent

	// ProcessErr, if non-nil, is returned from every ProcessFrame call.
	ProcessErr error

	frames     int
	resetCount int
	closeCount int
}

var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame implements vad.SessionHandle.
func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.frames
	s.frames++
	if s.ProcessErr != nil {
		return vad.VADEvent{}, s.ProcessErr
	}
	if s.Classify != nil {
		return s.Classify(i, frame), nil
	}
	if i < len(s.Events) {
		return s.Events[i], nil
	}
	return s.EventResult, nil
}

// Reset implements vad.SessionHandle.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCount++
}

// Close implements vad.SessionHandle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	return nil
}

// Frames returns the number of frames processed.
func (s *Session) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// CloseCount returns the number of Close calls.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}
