// Package tone defines the audio-tone emotion classifier boundary.
//
// A Classifier receives one sentence worth of audio and returns the dominant
// vocal emotion with a confidence in [0, 1]. Service failures are reported
// both as an error and, where the service answered, inside the returned
// [types.AudioEmotion] so callers can keep the turn going.
package tone

import (
	"context"

	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/types"
)

// Classifier classifies the vocal emotion of a clip.
type Classifier interface {
	Classify(ctx context.Context, clip audio.Clip) (types.AudioEmotion, error)
}

// Safe calls c and folds any error into the returned value so a tone failure
// never aborts a turn.
func Safe(ctx context.Context, c Classifier, clip audio.Clip) types.AudioEmotion {
	res, err := c.Classify(ctx, clip)
	if err != nil {
		if res.Error == "" {
			res = types.AudioEmotion{Error: err.Error()}
		}
		return res
	}
	return res
}
