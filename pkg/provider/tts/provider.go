// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns one utterance into a PCM clip. Ioanna speaks short,
// single questions, so synthesis is batch: the clip is complete when
// Synthesize returns and is then handed to an [audio.Player]. The voice,
// language and output format are fixed when the provider is constructed.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"

	"github.com/MrWong99/ioanna/pkg/audio"
)

// ErrEmptyText is returned when Synthesize is called with blank text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as speech and returns the audio.
	Synthesize(ctx context.Context, text string) (audio.Clip, error)
}
