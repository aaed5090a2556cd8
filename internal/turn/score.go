package turn

import (
	"context"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/MrWong99/ioanna/internal/observe"
	"github.com/MrWong99/ioanna/pkg/memory"
	"github.com/MrWong99/ioanna/pkg/types"
)

// Policy holds the constants of the importance function.
type Policy struct {
	// SubjectivityWeight multiplies the sentence subjectivity.
	SubjectivityWeight float64 `yaml:"subjectivity_weight"`

	// AudioWeight multiplies the tone classifier confidence.
	AudioWeight float64 `yaml:"audio_weight"`

	// FacialWeight multiplies the normalised facial-emotion intensity.
	FacialWeight float64 `yaml:"facial_weight"`

	// Threshold is the minimum score for a sentence to be remembered.
	Threshold float64 `yaml:"threshold"`

	// Uninformative lists tone labels whose confidence counts as zero.
	// Matching ignores case.
	Uninformative []string `yaml:"uninformative_labels"`
}

// DefaultPolicy returns the standard weights 0.5/0.3/0.2 with a 0.6
// threshold.
func DefaultPolicy() Policy {
	return Policy{
		SubjectivityWeight: 0.5,
		AudioWeight:        0.3,
		FacialWeight:       0.2,
		Threshold:          0.6,
		Uninformative:      []string{"neutral", "unknown", "other"},
	}
}

// Scorer computes sentence importance and picks the sentences worth
// remembering. The policy can be swapped at runtime; scoring is otherwise
// pure. Safe for concurrent use.
type Scorer struct {
	policy  atomic.Pointer[Policy]
	metrics *observe.Metrics
}

// ScorerOption configures a [Scorer].
type ScorerOption func(*Scorer)

// WithScorerMetrics records every computed score on m.
func WithScorerMetrics(m *observe.Metrics) ScorerOption {
	return func(s *Scorer) { s.metrics = m }
}

// NewScorer returns a Scorer using p.
func NewScorer(p Policy, opts ...ScorerOption) *Scorer {
	s := &Scorer{}
	s.SetPolicy(p)
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetPolicy replaces the scoring policy.
func (s *Scorer) SetPolicy(p Policy) {
	p.Uninformative = slices.Clone(p.Uninformative)
	s.policy.Store(&p)
}

// Policy returns the current scoring policy.
func (s *Scorer) Policy() Policy {
	p := *s.policy.Load()
	p.Uninformative = slices.Clone(p.Uninformative)
	return p
}

// Score fuses the three signals of a sentence:
//
//	score = ws·subjectivity + wa·audio + wf·intensity
//
// audio is the tone confidence, or 0 when classification failed or the label
// is uninformative. intensity is the sum of all axis values over the
// detected samples divided by len(detected) × [types.EmotionAxes]; it is 0
// for no samples and is not clamped, so very strong expressions can push
// the score above 1.
func (s *Scorer) Score(subjectivity float64, ae types.AudioEmotion, detected []types.Likelihoods) float64 {
	return score(s.policy.Load(), subjectivity, ae, detected)
}

func score(p *Policy, subjectivity float64, ae types.AudioEmotion, detected []types.Likelihoods) float64 {
	return p.SubjectivityWeight*subjectivity +
		p.AudioWeight*audioConfidence(p, ae) +
		p.FacialWeight*Intensity(detected)
}

func audioConfidence(p *Policy, ae types.AudioEmotion) float64 {
	if ae.Failed() {
		return 0
	}
	for _, l := range p.Uninformative {
		if strings.EqualFold(l, ae.Label) {
			return 0
		}
	}
	return ae.Confidence
}

// Intensity returns the normalised facial-emotion intensity of detected.
func Intensity(detected []types.Likelihoods) float64 {
	if len(detected) == 0 {
		return 0
	}
	total := 0
	for _, l := range detected {
		total += l.Sum()
	}
	return float64(total) / float64(len(detected)*types.EmotionAxes)
}

// Select scores every sentence and returns the ones at or above the
// threshold as memory entries, in sentence order.
func (s *Scorer) Select(ctx context.Context, aligned []AlignedSentence) []memory.Entry {
	p := s.policy.Load()
	var out []memory.Entry
	for _, a := range aligned {
		detected := a.Likelihoods()
		v := score(p, a.Sentiment.Subjectivity, a.AudioEmotion, detected)
		kept := v >= p.Threshold
		if s.metrics != nil {
			s.metrics.RecordImportance(ctx, v, kept)
		}
		if !kept {
			continue
		}
		out = append(out, memory.Entry{
			Text:             a.Text,
			Sentiment:        a.Sentiment,
			AudioEmotion:     a.AudioEmotion,
			DetectedEmotions: detected,
			Importance:       v,
		})
	}
	return out
}
