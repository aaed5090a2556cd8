// Package mock provides a test double for sentiment.Scorer.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/ioanna/pkg/provider/sentiment"
	"github.com/MrWong99/ioanna/pkg/types"
)

var _ sentiment.Scorer = (*Scorer)(nil)

// Scorer returns ByText[text] when present, else Result.
type Scorer struct {
	mu     sync.Mutex
	ByText map[string]types.Sentiment
	Result types.Sentiment
	Err    error
	texts  []string
}

// Score implements sentiment.Scorer.
func (s *Scorer) Score(_ context.Context, text string) (types.Sentiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	if s.Err != nil {
		return types.Sentiment{}, s.Err
	}
	if r, ok := s.ByText[text]; ok {
		return r, nil
	}
	return s.Result, nil
}

// Texts returns every text scored so far.
func (s *Scorer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}
