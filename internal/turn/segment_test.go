package turn

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/ioanna/pkg/audio"
	nlpmock "github.com/MrWong99/ioanna/pkg/provider/nlp/mock"
)

const eps = 1e-9

func TestSegment_Windows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		transcript string
		totalMs    float64
		tailMs     float64
		wantWords  []int
		wantEnds   []float64
	}{
		{
			name:       "two sentences",
			transcript: "I love my dog. He is very old and tired.",
			totalMs:    11000,
			tailMs:     2000,
			wantWords:  []int{4, 6},
			wantEnds:   []float64{3600, 9000},
		},
		{
			name:       "single sentence",
			transcript: "Hello there",
			totalMs:    3000,
			tailMs:     2000,
			wantWords:  []int{2},
			wantEnds:   []float64{1000},
		},
		{
			name:       "tail longer than audio clamps to zero",
			transcript: "Short. Answer.",
			totalMs:    1500,
			tailMs:     2000,
			wantWords:  []int{1, 1},
			wantEnds:   []float64{0, 0},
		},
	}

	seg := NewSegmenter(&nlpmock.Analyzer{})
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := seg.Segment(context.Background(), tc.transcript, tc.totalMs, tc.tailMs)
			if err != nil {
				t.Fatalf("Segment: %v", err)
			}
			if len(got) != len(tc.wantWords) {
				t.Fatalf("sentences = %d, want %d", len(got), len(tc.wantWords))
			}
			for i, s := range got {
				if s.Words != tc.wantWords[i] {
					t.Errorf("sentence %d words = %d, want %d", i, s.Words, tc.wantWords[i])
				}
				if math.Abs(s.Window.EndMs-tc.wantEnds[i]) > eps {
					t.Errorf("sentence %d end = %f, want %f", i, s.Window.EndMs, tc.wantEnds[i])
				}
			}
		})
	}
}

func TestSegment_WindowsAreContiguousAndSumToSpokenAudio(t *testing.T) {
	t.Parallel()

	seg := NewSegmenter(&nlpmock.Analyzer{Sentences: []string{
		"One two three.", "Four.", "Five six seven eight nine ten eleven.", "Twelve thirteen.",
	}})
	const totalMs, tailMs = 7777.7, 2010.0

	got, err := seg.Segment(context.Background(), "ignored but non empty", totalMs, tailMs)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if got[0].Window.StartMs != 0 {
		t.Errorf("first window starts at %f, want 0", got[0].Window.StartMs)
	}
	var sum float64
	for i, s := range got {
		sum += s.Window.DurationMs
		if math.Abs(s.Window.EndMs-s.Window.StartMs-s.Window.DurationMs) > eps {
			t.Errorf("window %d: end-start != duration", i)
		}
		if i > 0 && s.Window.StartMs != got[i-1].Window.EndMs {
			t.Errorf("window %d starts at %f, previous ends at %f", i, s.Window.StartMs, got[i-1].Window.EndMs)
		}
	}
	if want := totalMs - tailMs; math.Abs(sum-want) > 1e-6 {
		t.Errorf("sum of durations = %f, want %f", sum, want)
	}
	if last := got[len(got)-1].Window.EndMs; last != totalMs-tailMs {
		t.Errorf("last window ends at %f, want %f", last, totalMs-tailMs)
	}
}

func TestSegment_EmptyTranscript(t *testing.T) {
	t.Parallel()

	seg := NewSegmenter(&nlpmock.Analyzer{})
	for _, tr := range []string{"", "   ", "\n\t"} {
		if _, err := seg.Segment(context.Background(), tr, 5000, 2000); !errors.Is(err, ErrEmptyTranscript) {
			t.Errorf("Segment(%q) err = %v, want ErrEmptyTranscript", tr, err)
		}
	}
}

func TestSegment_DropsWordlessSentences(t *testing.T) {
	t.Parallel()

	seg := NewSegmenter(&nlpmock.Analyzer{Sentences: []string{"Yes.", "  ", "No."}})
	got, err := seg.Segment(context.Background(), "Yes. No.", 4000, 2000)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("sentences = %d, want 2", len(got))
	}
}

func TestSegment_SplitterError(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("model missing")
	seg := NewSegmenter(&nlpmock.Analyzer{SplitErr: sentinel})
	if _, err := seg.Segment(context.Background(), "hello", 1000, 0); !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want %v", err, sentinel)
	}
}

func TestAttachAudio(t *testing.T) {
	t.Parallel()

	// 1 s of 16 kHz mono.
	clip := audio.Clip{PCM: make([]byte, 32000), Format: audio.DefaultFormat}
	sentences := []Sentence{
		{Window: Window{StartMs: 0, EndMs: 250, DurationMs: 250}},
		{Window: Window{StartMs: 250, EndMs: 1000, DurationMs: 750}},
	}
	AttachAudio(sentences, clip)

	if got := sentences[0].Audio.DurationMs(); got != 250 {
		t.Errorf("first clip = %f ms, want 250", got)
	}
	if got := sentences[1].Audio.DurationMs(); got != 750 {
		t.Errorf("second clip = %f ms, want 750", got)
	}
}
