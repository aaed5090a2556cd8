// Package nlp defines the natural-language boundaries used to split a flat
// transcript into sentences and to pull a person's name out of an answer.
package nlp

import "context"

// SentenceSplitter splits text into sentences in reading order. Returned
// sentences are trimmed and never empty.
type SentenceSplitter interface {
	Split(ctx context.Context, text string) ([]string, error)
}

// EntityExtractor finds person names in text, in order of appearance.
type EntityExtractor interface {
	People(ctx context.Context, text string) ([]string, error)
}

// Analyzer is an implementation providing both capabilities.
type Analyzer interface {
	SentenceSplitter
	EntityExtractor
}
