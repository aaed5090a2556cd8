// Package turn turns one recorded answer into scored memories.
//
// The flow for a single turn is:
//
//	Segmenter  transcript → sentences with reconstructed time windows
//	Annotator  sentence text → sentiment, sentence audio → vocal tone
//	Align      facial-emotion samples → the sentences they were observed in
//	Scorer     fused importance per sentence → memory entries
//
// The transcription service returns no word timings, so sentence windows are
// derived from word counts: every word is assumed to take the same time and
// the windows are laid out back to back from the start of the recording.
package turn

import (
	"time"

	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/types"
)

// Window is the reconstructed time span of a sentence, in milliseconds from
// the start of the recording.
type Window struct {
	StartMs    float64 `json:"start_ms"`
	EndMs      float64 `json:"end_ms"`
	DurationMs float64 `json:"duration_ms"`
}

// Contains reports whether offsetMs lies inside w. Both ends are inclusive.
func (w Window) Contains(offsetMs float64) bool {
	return offsetMs >= w.StartMs && offsetMs <= w.EndMs
}

// Sentence is one sentence of the transcript together with everything known
// about it.
type Sentence struct {
	Text   string
	Words  int
	Window Window

	// Audio is the part of the recording covered by Window.
	Audio audio.Clip

	Sentiment    types.Sentiment
	AudioEmotion types.AudioEmotion
}

// MatchedSample is a facial-emotion sample assigned to a sentence.
type MatchedSample struct {
	types.EmotionSample

	// OffsetMs is the sample time relative to the start of the recording.
	OffsetMs float64
}

// AlignedSentence is a sentence with the facial-emotion samples observed
// during its window.
type AlignedSentence struct {
	Sentence
	Detected []MatchedSample
}

// Likelihoods returns the likelihoods of every detected sample in order.
func (a AlignedSentence) Likelihoods() []types.Likelihoods {
	out := make([]types.Likelihoods, len(a.Detected))
	for i, m := range a.Detected {
		out[i] = m.Likelihoods
	}
	return out
}

// msSince returns t - start in fractional milliseconds.
func msSince(start, t time.Time) float64 {
	return float64(t.Sub(start)) / float64(time.Millisecond)
}
