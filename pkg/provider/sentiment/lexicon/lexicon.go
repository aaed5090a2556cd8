// Package lexicon implements sentiment.Scorer with a word-level polarity and
// subjectivity lexicon.
//
// Each scored word contributes its lexicon entry, scaled by a preceding
// modifier ("very", "slightly") and with polarity flipped and halved when a
// negation appears in the two preceding tokens. The sentence score is the
// mean over scored words; sentences with no scored word are neutral and
// objective.
package lexicon

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/ioanna/pkg/provider/sentiment"
	"github.com/MrWong99/ioanna/pkg/types"
)

//go:embed lexicon.yaml
var defaultLexicon []byte

var _ sentiment.Scorer = (*Scorer)(nil)

// negationWindow is how many tokens before a scored word are searched for a
// negation.
const negationWindow = 2

// Entry is the lexicon score of one word.
type Entry struct {
	Polarity     float64 `yaml:"polarity"`
	Subjectivity float64 `yaml:"subjectivity"`
}

// Lexicon is the decoded word list.
type Lexicon struct {
	Modifiers map[string]float64 `yaml:"modifiers"`
	Negations []string           `yaml:"negations"`
	Words     map[string]Entry   `yaml:"words"`
}

// Parse decodes a YAML lexicon. Unknown keys are rejected.
func Parse(data []byte) (*Lexicon, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var lx Lexicon
	if err := dec.Decode(&lx); err != nil {
		return nil, fmt.Errorf("lexicon: decode: %w", err)
	}
	if len(lx.Words) == 0 {
		return nil, fmt.Errorf("lexicon: no words defined")
	}
	return &lx, nil
}

// Scorer scores sentences against a Lexicon. Safe for concurrent use.
type Scorer struct {
	words     map[string]Entry
	modifiers map[string]float64
	negations map[string]struct{}
}

// New returns a Scorer over lx, or over the embedded default lexicon when lx
// is nil.
func New(lx *Lexicon) (*Scorer, error) {
	if lx == nil {
		var err error
		if lx, err = Parse(defaultLexicon); err != nil {
			return nil, err
		}
	}
	s := &Scorer{
		words:     lx.Words,
		modifiers: lx.Modifiers,
		negations: make(map[string]struct{}, len(lx.Negations)),
	}
	for _, n := range lx.Negations {
		s.negations[n] = struct{}{}
	}
	return s, nil
}

// Score implements sentiment.Scorer.
func (s *Scorer) Score(_ context.Context, text string) (types.Sentiment, error) {
	tokens := tokenize(text)
	var (
		sumP, sumS float64
		n          int
	)
	for i, tok := range tokens {
		e, ok := s.words[tok]
		if !ok {
			continue
		}
		p, subj := e.Polarity, e.Subjectivity
		if i > 0 {
			if m, ok := s.modifiers[tokens[i-1]]; ok {
				p *= m
				subj *= m
			}
		}
		if s.negated(tokens, i) {
			p *= -0.5
		}
		sumP += p
		sumS += subj
		n++
	}
	if n == 0 {
		return types.Sentiment{}, nil
	}
	return sentiment.Clamp(types.Sentiment{
		Polarity:     sumP / float64(n),
		Subjectivity: sumS / float64(n),
	}), nil
}

func (s *Scorer) negated(tokens []string, i int) bool {
	for j := max(0, i-negationWindow); j < i; j++ {
		if _, ok := s.negations[tokens[j]]; ok {
			return true
		}
	}
	return false
}

// tokenize lowercases text and splits it into words. Contractions ending in
// "n't" yield a separate "n't" token so "don't" negates like "do not".
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, "’", "'")
		f = strings.Trim(f, "'")
		if f == "" {
			continue
		}
		if stem, ok := strings.CutSuffix(f, "n't"); ok {
			if stem != "" {
				out = append(out, stem)
			}
			out = append(out, "n't")
			continue
		}
		out = append(out, f)
	}
	return out
}
