// Package mock provides a test double for the stt.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Transcripts are returned in order, one per call. Once exhausted the last
	// entry repeats. When empty, Text is returned.
	Transcripts []string

	// Text is returned when Transcripts is empty.
	Text string

	// Err, if non-nil, is returned from every call.
	Err error

	// Clips records every clip passed to Transcribe.
	Clips []audio.Clip
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(_ context.Context, clip audio.Clip) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := len(p.Clips)
	p.Clips = append(p.Clips, clip)
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Transcripts) > 0 {
		return p.Transcripts[min(i, len(p.Transcripts)-1)], nil
	}
	return p.Text, nil
}

// CallCount returns the number of Transcribe calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Clips)
}
