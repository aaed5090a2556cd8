package turn

import (
	"slices"
	"time"

	"github.com/MrWong99/ioanna/pkg/types"
)

// Align assigns facial-emotion samples to the sentences whose window
// contains them. Sample times are taken relative to turnStart, the instant
// the recording began.
//
// Windows are inclusive at both ends, so a sample that falls exactly on the
// boundary between two sentences is assigned to both. Samples before the
// first window or after the last are ignored. Samples are sorted by time
// once and visited in a single sweep; the input slice is not modified.
func Align(samples []types.EmotionSample, sentences []Sentence, turnStart time.Time) []AlignedSentence {
	sorted := slices.Clone(samples)
	slices.SortStableFunc(sorted, func(a, b types.EmotionSample) int {
		return a.At.Compare(b.At)
	})
	offsets := make([]float64, len(sorted))
	for i, s := range sorted {
		offsets[i] = msSince(turnStart, s.At)
	}

	out := make([]AlignedSentence, len(sentences))
	lo := 0
	for i, sent := range sentences {
		out[i] = AlignedSentence{Sentence: sent}
		w := sent.Window
		for lo < len(sorted) && offsets[lo] < w.StartMs {
			lo++
		}
		for k := lo; k < len(sorted) && w.Contains(offsets[k]); k++ {
			out[i].Detected = append(out[i].Detected, MatchedSample{
				EmotionSample: sorted[k],
				OffsetMs:      offsets[k],
			})
		}
	}
	return out
}
