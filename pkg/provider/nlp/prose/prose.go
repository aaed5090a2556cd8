// Package prose implements the nlp interfaces with github.com/jdkato/prose/v2,
// a pure-Go tokenizer, sentence segmenter and named-entity recognizer.
package prose

import (
	"context"
	"fmt"
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/MrWong99/ioanna/pkg/provider/nlp"
)

var _ nlp.Analyzer = (*Analyzer)(nil)

// personLabel is the entity label prose assigns to people.
const personLabel = "PERSON"

// Analyzer wraps prose documents. Safe for concurrent use; every call builds
// its own document.
type Analyzer struct{}

// New returns an Analyzer.
func New() *Analyzer { return &Analyzer{} }

// Split implements nlp.SentenceSplitter.
func (a *Analyzer) Split(_ context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return nil, fmt.Errorf("prose: segment: %w", err)
	}
	var out []string
	for _, s := range doc.Sentences() {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// People implements nlp.EntityExtractor.
func (a *Analyzer) People(_ context.Context, text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil, fmt.Errorf("prose: extract: %w", err)
	}
	var out []string
	for _, e := range doc.Entities() {
		if e.Label == personLabel {
			out = append(out, e.Text)
		}
	}
	return out, nil
}
