package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/provider/nlp"
)

// ErrEmptyTranscript is returned when a transcript contains no words. The
// turn produces no memories and the dialogue moves on.
var ErrEmptyTranscript = errors.New("turn: empty transcript")

// Segmenter splits a transcript into sentences and reconstructs a time
// window for each of them.
type Segmenter struct {
	splitter nlp.SentenceSplitter
}

// NewSegmenter returns a Segmenter that uses splitter for sentence
// boundaries.
func NewSegmenter(splitter nlp.SentenceSplitter) *Segmenter {
	return &Segmenter{splitter: splitter}
}

// Segment splits transcript into sentences and assigns contiguous windows
// starting at 0. Every word is given the same share of the spoken audio,
// which is totalMs minus the trailing silence (never negative), so the
// windows end exactly at totalMs - silenceTailMs.
//
// Sentences without words are dropped. A transcript without any words
// returns [ErrEmptyTranscript].
func (s *Segmenter) Segment(ctx context.Context, transcript string, totalMs, silenceTailMs float64) ([]Sentence, error) {
	if len(strings.Fields(transcript)) == 0 {
		return nil, ErrEmptyTranscript
	}
	texts, err := s.splitter.Split(ctx, transcript)
	if err != nil {
		return nil, fmt.Errorf("turn: split sentences: %w", err)
	}

	sentences := make([]Sentence, 0, len(texts))
	total := 0
	for _, t := range texts {
		n := len(strings.Fields(t))
		if n == 0 {
			continue
		}
		sentences = append(sentences, Sentence{Text: strings.TrimSpace(t), Words: n})
		total += n
	}
	if total == 0 {
		return nil, ErrEmptyTranscript
	}

	spoken := max(totalMs-silenceTailMs, 0)
	avg := spoken / float64(total)

	var start float64
	for i := range sentences {
		d := float64(sentences[i].Words) * avg
		end := start + d
		if i == len(sentences)-1 {
			// Pin the last edge so float error cannot leave a gap.
			end = spoken
			d = end - start
		}
		sentences[i].Window = Window{StartMs: start, EndMs: end, DurationMs: d}
		start = end
	}
	return sentences, nil
}

// AttachAudio cuts each sentence's window out of clip.
func AttachAudio(sentences []Sentence, clip audio.Clip) {
	for i := range sentences {
		w := sentences[i].Window
		sentences[i].Audio = clip.Slice(w.StartMs, w.EndMs)
	}
}
