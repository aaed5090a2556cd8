package resilience

import (
	"context"

	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with failover across several
// synthesis backends.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional TTS provider.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders text with the first healthy provider.
func (f *TTSFallback) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (audio.Clip, error) {
		return p.Synthesize(ctx, text)
	})
}
