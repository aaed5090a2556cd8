// Package rules implements the nlp interfaces with punctuation rules and
// phrase patterns. It has no model and is used when prose is disabled or as a
// fallback when the model finds no person.
package rules

import (
	"context"
	"strings"
	"unicode"

	"github.com/MrWong99/ioanna/pkg/provider/nlp"
)

var _ nlp.Analyzer = (*Analyzer)(nil)

// namePhrases introduce a self-reported name, matched case-insensitively.
var namePhrases = []string{
	"my name is ",
	"my name's ",
	"name is ",
	"call me ",
	"i am ",
	"i'm ",
	"im ",
	"it is ",
	"it's ",
	"this is ",
}

// notNames are words that follow a name phrase without being a name
// ("I'm fine", "it's nice to meet you").
var notNames = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "not": {}, "fine": {}, "good": {}, "okay": {}, "ok": {},
	"here": {}, "so": {}, "very": {}, "nice": {}, "sorry": {}, "great": {}, "well": {},
	"just": {}, "from": {}, "happy": {}, "glad": {}, "doing": {}, "really": {},
}

// Analyzer splits on terminal punctuation and extracts names from phrases.
type Analyzer struct{}

// New returns an Analyzer.
func New() *Analyzer { return &Analyzer{} }

// Split implements nlp.SentenceSplitter. A sentence ends at '.', '!' or '?'
// followed by whitespace or the end of input.
func (Analyzer) Split(_ context.Context, text string) ([]string, error) {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out, nil
}

// People implements nlp.EntityExtractor. It returns at most one name: the
// word after the first matching phrase, or the only word of a one-word
// answer.
func (Analyzer) People(_ context.Context, text string) ([]string, error) {
	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		text = lower
	}
	for _, p := range namePhrases {
		idx := phraseIndex(lower, p)
		if idx < 0 {
			continue
		}
		rest := strings.Fields(text[idx+len(p):])
		if len(rest) == 0 {
			continue
		}
		name := clean(rest[0])
		if _, skip := notNames[strings.ToLower(name)]; skip || name == "" {
			continue
		}
		return []string{capitalize(name)}, nil
	}
	if words := strings.Fields(text); len(words) == 1 {
		if name := clean(words[0]); name != "" {
			return []string{capitalize(name)}, nil
		}
	}
	return nil, nil
}

// phraseIndex finds p in s at a word boundary.
func phraseIndex(s, p string) int {
	off := 0
	for {
		i := strings.Index(s[off:], p)
		if i < 0 {
			return -1
		}
		i += off
		if i == 0 || !unicode.IsLetter(rune(s[i-1])) {
			return i
		}
		off = i + 1
	}
}

func clean(w string) string {
	return strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && r != '-' })
}

func capitalize(w string) string {
	r := []rune(w)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
