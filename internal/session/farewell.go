package session

import (
	"strings"

	"github.com/MrWong99/ioanna/internal/transcript/phonetic"
)

// DefaultFarewellPhrases end the conversation when heard in an answer.
var DefaultFarewellPhrases = []string{"goodbye"}

// FarewellDetector decides whether an answer ends the conversation.
type FarewellDetector struct {
	phrases []string
	spotter *phonetic.Matcher
}

// NewFarewellDetector returns a detector for phrases. A nil or empty list
// uses [DefaultFarewellPhrases]. When spotter is non-nil, phrases that were
// misspelled or split by the transcriber ("goodby", "good bye") also match.
func NewFarewellDetector(phrases []string, spotter *phonetic.Matcher) *FarewellDetector {
	d := &FarewellDetector{spotter: spotter}
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			d.phrases = append(d.phrases, p)
		}
	}
	if len(d.phrases) == 0 {
		d.phrases = DefaultFarewellPhrases
	}
	return d
}

// IsFarewell reports whether transcript contains a farewell phrase. Exact
// matching is a case-insensitive substring test.
func (d *FarewellDetector) IsFarewell(transcript string) bool {
	lower := strings.ToLower(transcript)
	for _, p := range d.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	if d.spotter == nil {
		return false
	}
	_, ok := d.spotter.Spot(transcript, d.phrases)
	return ok
}
