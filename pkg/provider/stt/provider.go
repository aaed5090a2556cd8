// Package stt defines the Provider interface for Speech-to-Text backends.
//
// Ioanna records a whole user answer before transcribing it, so the contract
// is a single batch call: one clip in, one transcript out. Providers that
// expose a streaming API internally (whisper.cpp server, OpenAI) are driven
// in batch mode.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/MrWong99/ioanna/pkg/audio"
)

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the text spoken in clip. An empty string with a nil
	// error means the backend heard no speech. Implementations convert the
	// clip to whatever format their backend expects.
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
}
