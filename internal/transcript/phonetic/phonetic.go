// Package phonetic spots short phrases in transcripts while tolerating
// recognition errors such as "good by" for "goodbye".
//
// A phrase is compared against every run of transcript words with the same
// number of words, with spaces and punctuation removed. A run matches when
// its Jaro-Winkler similarity to the phrase reaches the phonetic threshold
// and the two share a Double Metaphone code, or reaches the stricter fuzzy
// threshold without a shared code. Runs whose length differs too much from
// the phrase are skipped, so a prefix like "good" never matches "goodbye".
//
// A run one word longer than the phrase only matches when its letters spell
// the phrase exactly. That accepts a word split by the transcriber ("good
// bye") without letting two real words ("good boy") pass as a farewell.
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.92
	defaultMinLengthRatio    = 0.75
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a run that
// shares a Double Metaphone code with the phrase. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a run without a
// shared phonetic code. Default: 0.92.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// WithMinLengthRatio sets how much shorter (or longer) a run may be than the
// phrase, as the ratio of the shorter to the longer length. Default: 0.75.
func WithMinLengthRatio(ratio float64) Option {
	return func(m *Matcher) {
		m.minLengthRatio = ratio
	}
}

// Matcher spots phrases in transcripts. It is read-only after construction
// and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
	minLengthRatio    float64
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		minLengthRatio:    defaultMinLengthRatio,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Hit describes where a phrase was found.
type Hit struct {
	// Phrase is the phrase as it was passed to Spot.
	Phrase string

	// Heard is the matching run of transcript words.
	Heard string

	// Score is the Jaro-Winkler similarity in [0, 1].
	Score float64

	// Phonetic reports whether the run shared a Double Metaphone code with
	// the phrase.
	Phonetic bool
}

// Spot returns the best-scoring occurrence of any phrase in transcript.
func (m *Matcher) Spot(transcript string, phrases []string) (Hit, bool) {
	words := tokens(transcript)
	if len(words) == 0 {
		return Hit{}, false
	}

	var best Hit
	found := false
	for _, phrase := range phrases {
		pw := tokens(phrase)
		if len(pw) == 0 {
			continue
		}
		target := strings.Join(pw, "")
		targetCodes := codes(target)

		for size := len(pw); size <= len(pw)+1; size++ {
			for i := 0; i+size <= len(words); i++ {
				heard := strings.Join(words[i:i+size], "")
				if size > len(pw) && heard != target {
					continue
				}
				if !m.comparableLength(heard, target) {
					continue
				}
				score := matchr.JaroWinkler(heard, target, false)
				phonetic := overlap(codes(heard), targetCodes)
				threshold := m.fuzzyThreshold
				if phonetic {
					threshold = m.phoneticThreshold
				}
				if score < threshold || (found && score <= best.Score) {
					continue
				}
				best = Hit{
					Phrase:   phrase,
					Heard:    strings.Join(words[i:i+size], " "),
					Score:    score,
					Phonetic: phonetic,
				}
				found = true
			}
		}
	}
	return best, found
}

func (m *Matcher) comparableLength(a, b string) bool {
	la, lb := len([]rune(a)), len([]rune(b))
	if la == 0 || lb == 0 {
		return false
	}
	return float64(min(la, lb))/float64(max(la, lb)) >= m.minLengthRatio
}

// tokens lowercases s and splits it into words, dropping punctuation.
// Apostrophes inside words are removed so "bye'" and "bye" compare equal.
func tokens(s string) []string {
	return strings.FieldsFunc(strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case r == '\'':
			return -1
		default:
			return ' '
		}
	}, s), unicode.IsSpace)
}

// codes returns the non-empty Double Metaphone codes of s.
func codes(s string) [2]string {
	p, sec := matchr.DoubleMetaphone(s)
	return [2]string{p, sec}
}

// overlap reports whether a and b share a non-empty code.
func overlap(a, b [2]string) bool {
	for _, x := range a {
		if x == "" {
			continue
		}
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
