// Package mock provides a test double for voice.Speaker.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/ioanna/pkg/provider/voice"
)

var _ voice.Speaker = (*Speaker)(nil)

// Speaker records every utterance.
type Speaker struct {
	mu     sync.Mutex
	Err    error
	OnSay  func(text string)
	spoken []string
}

// Say implements voice.Speaker.
func (s *Speaker) Say(_ context.Context, text string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	fn, err := s.OnSay, s.Err
	s.mu.Unlock()
	if fn != nil {
		fn(text)
	}
	return err
}

// Spoken returns every text passed to Say.
func (s *Speaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}
