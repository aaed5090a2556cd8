// Package voice combines a text-to-speech provider with an audio player into
// the single "say this out loud" operation the dialogue needs.
package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/provider/tts"
)

// Speaker synthesises and plays text. Say blocks until playback finishes.
type Speaker interface {
	Say(ctx context.Context, text string) error
}

var _ Speaker = (*TTSSpeaker)(nil)

// Option configures a TTSSpeaker.
type Option func(*TTSSpeaker)

// WithOutputFile keeps a WAV copy of the most recent utterance at path.
// [TTSSpeaker.Cleanup] removes it.
func WithOutputFile(path string) Option {
	return func(s *TTSSpeaker) { s.outputPath = path }
}

// WithFormat converts synthesised audio to f before playback.
func WithFormat(f audio.Format) Option {
	return func(s *TTSSpeaker) { s.conv = &audio.Converter{Target: f} }
}

// TTSSpeaker is the default Speaker. Utterances are serialised so two
// callers never talk over each other.
type TTSSpeaker struct {
	tts        tts.Provider
	player     audio.Player
	outputPath string
	conv       *audio.Converter

	mu sync.Mutex
}

// New returns a TTSSpeaker.
func New(p tts.Provider, player audio.Player, opts ...Option) *TTSSpeaker {
	s := &TTSSpeaker{tts: p, player: player}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Say implements Speaker. Blank text is a no-op.
func (s *TTSSpeaker) Say(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	clip, err := s.tts.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("voice: synthesize: %w", err)
	}
	if s.conv != nil {
		clip = s.conv.Convert(clip)
	}
	if s.outputPath != "" {
		if err := audio.WriteWAVFile(s.outputPath, clip); err != nil {
			return fmt.Errorf("voice: %w", err)
		}
	}
	if err := s.player.Play(ctx, clip); err != nil {
		return fmt.Errorf("voice: play: %w", err)
	}
	return nil
}

// Cleanup removes the utterance file, if any. A missing file is not an error.
func (s *TTSSpeaker) Cleanup() error {
	if s.outputPath == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.outputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("voice: remove %q: %w", s.outputPath, err)
	}
	return nil
}
