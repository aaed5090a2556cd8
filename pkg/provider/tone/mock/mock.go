// Package mock provides a test double for tone.Classifier.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/provider/tone"
	"github.com/MrWong99/ioanna/pkg/types"
)

var _ tone.Classifier = (*Classifier)(nil)

// Classifier returns Result and Err, or the entry of Results matching the
// call index when present.
type Classifier struct {
	mu      sync.Mutex
	Result  types.AudioEmotion
	Results []types.AudioEmotion
	Err     error
	clips   []audio.Clip
}

// Classify implements tone.Classifier.
func (c *Classifier) Classify(_ context.Context, clip audio.Clip) (types.AudioEmotion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := len(c.clips)
	c.clips = append(c.clips, clip)
	if i < len(c.Results) {
		return c.Results[i], c.Err
	}
	return c.Result, c.Err
}

// Clips returns every clip passed to Classify.
func (c *Classifier) Clips() []audio.Clip {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]audio.Clip, len(c.clips))
	copy(out, c.clips)
	return out
}
