package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/ioanna/internal/observe"
	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/provider/sentiment"
	"github.com/MrWong99/ioanna/pkg/provider/tone"
	"github.com/MrWong99/ioanna/pkg/types"
)

// DefaultAnnotateConcurrency bounds the number of sentences annotated at once.
const DefaultAnnotateConcurrency = 4

// Annotator adds textual sentiment and vocal tone to sentences. Sentences are
// processed in parallel. Neither a sentiment nor a tone failure aborts the
// turn: sentiment falls back to zero and tone failures are kept in
// AudioEmotion.Error.
type Annotator struct {
	sentiment   sentiment.Scorer
	tone        tone.Classifier
	concurrency int
	segmentDir  string
	metrics     *observe.Metrics
}

// AnnotatorOption configures an [Annotator].
type AnnotatorOption func(*Annotator)

// WithConcurrency sets how many sentences are annotated at once.
func WithConcurrency(n int) AnnotatorOption {
	return func(a *Annotator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithSegmentDir writes each sentence's audio to dir/segment_<i>.wav before
// classifying it. The files are listed in the [Annotation] for cleanup.
func WithSegmentDir(dir string) AnnotatorOption {
	return func(a *Annotator) { a.segmentDir = dir }
}

// WithAnnotatorMetrics records sentiment and tone latency on m.
func WithAnnotatorMetrics(m *observe.Metrics) AnnotatorOption {
	return func(a *Annotator) { a.metrics = m }
}

// NewAnnotator returns an Annotator using s for sentiment and t for tone.
func NewAnnotator(s sentiment.Scorer, t tone.Classifier, opts ...AnnotatorOption) *Annotator {
	a := &Annotator{sentiment: s, tone: t, concurrency: DefaultAnnotateConcurrency}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Annotation lists the files written while annotating.
type Annotation struct {
	SegmentFiles []string
}

// Remove deletes every segment file. Missing files are ignored.
func (an Annotation) Remove() error {
	var errs []error
	for _, p := range an.SegmentFiles {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("turn: remove segments: %w", err)
	}
	return nil
}

// Annotate fills Sentiment and AudioEmotion of every sentence in place. It
// only returns an error when ctx is cancelled.
func (a *Annotator) Annotate(ctx context.Context, sentences []Sentence) (Annotation, error) {
	var (
		mu  sync.Mutex
		out Annotation
	)
	if a.segmentDir != "" {
		if err := os.MkdirAll(a.segmentDir, 0o755); err != nil {
			slog.Warn("turn: cannot create segment directory", "dir", a.segmentDir, "err", err)
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(a.concurrency)
	for i := range sentences {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			s := &sentences[i]

			start := time.Now()
			sent, err := a.sentiment.Score(egCtx, s.Text)
			a.observe(egCtx, observe.StageSentiment, start)
			if err != nil {
				slog.Warn("turn: sentiment failed", "sentence", i, "err", err)
				sent = types.Sentiment{}
			}
			s.Sentiment = sentiment.Clamp(sent)

			if path := a.writeSegment(i, s.Audio); path != "" {
				mu.Lock()
				out.SegmentFiles = append(out.SegmentFiles, path)
				mu.Unlock()
			}

			start = time.Now()
			s.AudioEmotion = tone.Safe(egCtx, a.tone, s.Audio)
			a.observe(egCtx, observe.StageTone, start)
			if s.AudioEmotion.Error != "" {
				slog.Warn("turn: tone classification failed", "sentence", i, "err", s.AudioEmotion.Error)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return out, fmt.Errorf("turn: annotate: %w", err)
	}
	return out, nil
}

func (a *Annotator) writeSegment(i int, clip audio.Clip) string {
	if a.segmentDir == "" || clip.Empty() {
		return ""
	}
	path := filepath.Join(a.segmentDir, fmt.Sprintf("segment_%d.wav", i))
	if err := audio.WriteWAVFile(path, clip); err != nil {
		slog.Warn("turn: cannot write segment", "path", path, "err", err)
		return ""
	}
	return path
}

func (a *Annotator) observe(ctx context.Context, stage string, start time.Time) {
	if a.metrics != nil {
		a.metrics.ObserveStage(ctx, stage, start)
	}
}
