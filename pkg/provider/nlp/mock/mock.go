// Package mock provides a test double for nlp.Analyzer.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/ioanna/pkg/provider/nlp"
)

var _ nlp.Analyzer = (*Analyzer)(nil)

// Analyzer returns scripted results. When Sentences is nil, Split splits on
// ". " so tests can pass plain transcripts.
type Analyzer struct {
	mu        sync.Mutex
	Sentences []string
	SplitErr  error
	Names     []string
	PeopleErr error
	calls     int
}

// Split implements nlp.SentenceSplitter.
func (a *Analyzer) Split(_ context.Context, text string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.SplitErr != nil {
		return nil, a.SplitErr
	}
	if a.Sentences != nil {
		return a.Sentences, nil
	}
	var out []string
	for _, s := range strings.SplitAfter(text, ". ") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// People implements nlp.EntityExtractor.
func (a *Analyzer) People(_ context.Context, _ string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.Names, a.PeopleErr
}

// Calls returns the number of calls across both methods.
func (a *Analyzer) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
