// Package types defines the shared types used across all Ioanna packages.
//
// These types form the lingua franca between providers, the turn pipeline, the
// memory layer, and the session orchestrator. Each package defines its own
// domain types, but cross-cutting data structures live here to avoid circular
// imports.
package types

import "time"

// EmotionAxes is the number of facial-emotion axes tracked per sample (anger,
// joy, sorrow, surprise). Intensity normalisation divides by this value, so it
// must change together with the fields of [Likelihoods].
const EmotionAxes = 4

// MaxLikelihood is the highest ordinal likelihood a classifier may report.
const MaxLikelihood = 5

// Likelihood is an ordinal facial-emotion likelihood in the range 0..5, where
// 0 means unknown and 5 means very likely.
type Likelihood int

// Likelihoods holds one ordinal value per tracked emotion axis.
type Likelihoods struct {
	Anger    Likelihood `json:"anger"`
	Joy      Likelihood `json:"joy"`
	Sorrow   Likelihood `json:"sorrow"`
	Surprise Likelihood `json:"surprise"`
}

// Sum returns the total of all axis values.
func (l Likelihoods) Sum() int {
	return int(l.Anger) + int(l.Joy) + int(l.Sorrow) + int(l.Surprise)
}

// EmotionSample is a single facial-emotion observation taken while the user
// was speaking. It is immutable once created.
type EmotionSample struct {
	// Likelihoods are the per-axis ordinal values reported by the classifier.
	Likelihoods Likelihoods

	// At is the wall-clock instant (with monotonic reading) at which the
	// classification succeeded.
	At time.Time
}

// Sentiment is the textual sentiment of a single sentence.
type Sentiment struct {
	// Polarity is in [-1, 1]; negative values indicate negative sentiment.
	Polarity float64 `json:"polarity"`

	// Subjectivity is in [0, 1]; 0 is very objective, 1 very subjective.
	Subjectivity float64 `json:"subjectivity"`
}

// AudioEmotion is the result of classifying the tone of a sentence's audio.
// Exactly one of (Label, Confidence) or Error is meaningful.
type AudioEmotion struct {
	Label      string  `json:"emotion,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// Error describes why classification failed. Empty on success.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the classification did not produce a label.
func (a AudioEmotion) Failed() bool {
	return a.Error != "" || a.Label == ""
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
)

// Message is a single entry in the conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
