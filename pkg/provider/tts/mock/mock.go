// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider. By default every call
// returns 100 ms of silence at 16 kHz mono.
type Provider struct {
	mu sync.Mutex

	// Clip, when non-empty, is returned instead of the default silence.
	Clip audio.Clip

	// Err, if non-nil, is returned from every call.
	Err error

	// Texts records every text passed to Synthesize.
	Texts []string
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(_ context.Context, text string) (audio.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts = append(p.Texts, text)
	if p.Err != nil {
		return audio.Clip{}, p.Err
	}
	if !p.Clip.Empty() {
		return p.Clip, nil
	}
	return audio.Clip{PCM: make([]byte, 3200), Format: audio.DefaultFormat}, nil
}

// Spoken returns a copy of every text synthesised so far.
func (p *Provider) Spoken() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Texts...)
}
