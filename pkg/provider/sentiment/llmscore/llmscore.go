// Package llmscore implements sentiment.Scorer by asking an LLM to rate the
// sentence and return a small JSON object.
package llmscore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/ioanna/pkg/provider/llm"
	"github.com/MrWong99/ioanna/pkg/provider/sentiment"
	"github.com/MrWong99/ioanna/pkg/types"
)

var _ sentiment.Scorer = (*Scorer)(nil)

// ErrMalformed is returned when the model reply holds no usable JSON object.
var ErrMalformed = errors.New("llmscore: malformed model reply")

const systemPrompt = `You rate the sentiment of a single spoken sentence.
Reply with one JSON object and nothing else:
{"polarity": <number from -1 (very negative) to 1 (very positive)>,
 "subjectivity": <number from 0 (purely factual) to 1 (purely personal opinion or feeling)>}`

// Scorer delegates scoring to an llm.Provider.
type Scorer struct {
	llm llm.Provider
}

// New returns a Scorer backed by p.
func New(p llm.Provider) *Scorer {
	return &Scorer{llm: p}
}

// Score implements sentiment.Scorer. Out-of-range values are clamped.
func (s *Scorer) Score(ctx context.Context, text string) (types.Sentiment, error) {
	if strings.TrimSpace(text) == "" {
		return types.Sentiment{}, nil
	}
	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []types.Message{{Role: types.RoleUser, Content: text}},
		Temperature:  0.01,
		MaxTokens:    40,
	})
	if err != nil {
		return types.Sentiment{}, fmt.Errorf("llmscore: complete: %w", err)
	}
	if resp == nil {
		return types.Sentiment{}, ErrMalformed
	}
	return parse(resp.Content)
}

// parse extracts the first {...} object from the reply so code fences or a
// stray sentence around the JSON do not matter.
func parse(reply string) (types.Sentiment, error) {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end <= start {
		return types.Sentiment{}, fmt.Errorf("%w: %q", ErrMalformed, reply)
	}
	var out struct {
		Polarity     *float64 `json:"polarity"`
		Subjectivity *float64 `json:"subjectivity"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &out); err != nil {
		return types.Sentiment{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if out.Polarity == nil || out.Subjectivity == nil {
		return types.Sentiment{}, fmt.Errorf("%w: missing field in %q", ErrMalformed, reply)
	}
	return sentiment.Clamp(types.Sentiment{Polarity: *out.Polarity, Subjectivity: *out.Subjectivity}), nil
}
