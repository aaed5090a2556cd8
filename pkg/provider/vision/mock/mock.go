// Package mock provides test doubles for the vision interfaces.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/ioanna/pkg/provider/vision"
	"github.com/MrWong99/ioanna/pkg/types"
)

var (
	_ vision.Camera            = (*Camera)(nil)
	_ vision.FaceAnalyzer      = (*FaceAnalyzer)(nil)
	_ vision.EmotionClassifier = (*Classifier)(nil)
)

// Camera returns Frame on every Capture call.
type Camera struct {
	mu    sync.Mutex
	Frame vision.Frame
	Err   error
	calls int
}

// Capture implements vision.Camera. A zero CapturedAt is filled with now.
func (c *Camera) Capture(_ context.Context) (vision.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.Err != nil {
		return vision.Frame{}, c.Err
	}
	f := c.Frame
	if f.CapturedAt.IsZero() {
		f.CapturedAt = time.Now()
	}
	if f.Image == nil {
		f.Image = []byte("frame")
	}
	return f, nil
}

// Calls returns the number of Capture calls.
func (c *Camera) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// FaceAnalyzer scripts detection and encoding results.
//
// Detections is consumed in order, one entry per DetectFace call; when it is
// exhausted Detected is returned. Encodings and EncodeErrs work the same way
// for EncodeFace, falling back to Encoding and EncodeErr.
type FaceAnalyzer struct {
	mu sync.Mutex

	Detections []bool
	Detected   bool
	DetectErr  error

	Encodings  [][]float32
	EncodeErrs []error
	Encoding   []float32
	EncodeErr  error

	detectCalls int
	encodeCalls int
}

// DetectFace implements vision.FaceAnalyzer.
func (a *FaceAnalyzer) DetectFace(_ context.Context, _ vision.Frame) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.detectCalls
	a.detectCalls++
	if a.DetectErr != nil {
		return false, a.DetectErr
	}
	if i < len(a.Detections) {
		return a.Detections[i], nil
	}
	return a.Detected, nil
}

// EncodeFace implements vision.FaceAnalyzer.
func (a *FaceAnalyzer) EncodeFace(_ context.Context, _ vision.Frame) ([]float32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.encodeCalls
	a.encodeCalls++
	if i < len(a.EncodeErrs) && a.EncodeErrs[i] != nil {
		return nil, a.EncodeErrs[i]
	}
	if i < len(a.Encodings) {
		return a.Encodings[i], nil
	}
	if a.EncodeErr != nil {
		return nil, a.EncodeErr
	}
	return a.Encoding, nil
}

// DetectCalls returns the number of DetectFace calls.
func (a *FaceAnalyzer) DetectCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.detectCalls
}

// EncodeCalls returns the number of EncodeFace calls.
func (a *FaceAnalyzer) EncodeCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.encodeCalls
}

// Classifier scripts emotion classification.
//
// Fn, when set, decides every result. Otherwise Errs is consumed in order
// (nil entries mean success) and Result is returned on success.
type Classifier struct {
	mu sync.Mutex

	Fn     func(call int) (types.Likelihoods, error)
	Errs   []error
	Result types.Likelihoods

	calls []time.Time
}

// Classify implements vision.EmotionClassifier.
func (c *Classifier) Classify(_ context.Context, _ vision.Frame) (types.Likelihoods, error) {
	c.mu.Lock()
	i := len(c.calls)
	c.calls = append(c.calls, time.Now())
	fn := c.Fn
	var err error
	if fn == nil && i < len(c.Errs) {
		err = c.Errs[i]
	}
	res := c.Result
	c.mu.Unlock()

	if fn != nil {
		return fn(i)
	}
	if err != nil {
		return types.Likelihoods{}, err
	}
	return res, nil
}

// Calls returns the number of Classify calls.
func (c *Classifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// CallTimes returns the instants of every Classify call.
func (c *Classifier) CallTimes() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Time, len(c.calls))
	copy(out, c.calls)
	return out
}
