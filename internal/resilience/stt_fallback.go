package resilience

import (
	"context"

	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with failover across several
// transcription backends.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional STT provider.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe sends the clip to the first healthy provider.
func (f *STTFallback) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, clip)
	})
}
