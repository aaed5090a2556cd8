// Package vision defines the camera and face-analysis boundaries.
//
// Three collaborators sit behind interfaces:
//
//   - [Camera] acquires still frames (JPEG or PNG bytes).
//   - [FaceAnalyzer] answers "is there a face" and produces an identity
//     encoding used to recognise returning users.
//   - [EmotionClassifier] rates the facial expression on the four
//     [types.Likelihoods] axes.
//
// Implementations must be safe for concurrent use.
package vision

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/ioanna/pkg/types"
)

var (
	// ErrTransient marks failures worth retrying (service unavailable, rate
	// limited, connection reset). Providers wrap it with %w.
	ErrTransient = errors.New("vision: transient failure")

	// ErrNoFace is returned when the frame contains no detectable face.
	ErrNoFace = errors.New("vision: no face in frame")

	// ErrNoFrame is returned when no frame has been captured yet.
	ErrNoFrame = errors.New("vision: no frame available")
)

// Frame is one encoded still image.
type Frame struct {
	// Image holds the encoded image bytes.
	Image []byte

	// ContentType is the MIME type of Image, e.g. "image/jpeg".
	ContentType string

	// CapturedAt is when the frame was acquired.
	CapturedAt time.Time
}

// Camera acquires frames from a capture device.
type Camera interface {
	// Capture returns the current frame.
	Capture(ctx context.Context) (Frame, error)
}

// FaceAnalyzer detects faces and computes identity encodings.
type FaceAnalyzer interface {
	// DetectFace reports whether the frame contains at least one face.
	DetectFace(ctx context.Context, f Frame) (bool, error)

	// EncodeFace returns the identity encoding of the first face in the
	// frame, or ErrNoFace.
	EncodeFace(ctx context.Context, f Frame) ([]float32, error)
}

// EmotionClassifier rates facial emotion.
type EmotionClassifier interface {
	// Classify returns the per-axis likelihoods of the first face in the
	// frame. It returns ErrNoFace when no face is found and an error wrapping
	// ErrTransient when the call may succeed on retry.
	Classify(ctx context.Context, f Frame) (types.Likelihoods, error)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
