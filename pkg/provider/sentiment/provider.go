// Package sentiment defines the per-sentence textual sentiment boundary.
package sentiment

import (
	"context"

	"github.com/MrWong99/ioanna/pkg/types"
)

// Scorer rates the polarity and subjectivity of a sentence.
type Scorer interface {
	Score(ctx context.Context, text string) (types.Sentiment, error)
}

// Clamp forces s into the valid ranges: polarity [-1, 1], subjectivity [0, 1].
func Clamp(s types.Sentiment) types.Sentiment {
	s.Polarity = max(-1, min(1, s.Polarity))
	s.Subjectivity = max(0, min(1, s.Subjectivity))
	return s
}
