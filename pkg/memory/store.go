// Package memory defines the long-term profile store: who the agent has met,
// how to recognise them, and what they said that was worth remembering.
//
// A [Profile] is keyed by a face encoding. Each conversation turn appends a
// [Turn] holding the question and the qualifying [Entry] values. The store is
// consulted at the start of a session (identity lookup) and before every
// question (memories for the prompt).
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
)

var (
	// ErrNoMatch is returned by FindByEncoding when no stored encoding lies
	// within the threshold.
	ErrNoMatch = errors.New("memory: no matching profile")

	// ErrNotFound is returned when a profile ID does not exist.
	ErrNotFound = errors.New("memory: profile not found")

	// ErrDimension is returned when an encoding has the wrong length.
	ErrDimension = errors.New("memory: encoding dimension mismatch")
)

// DefaultMatchThreshold is the Euclidean distance under which two dlib face
// encodings are considered the same person.
const DefaultMatchThreshold = 0.6

// ProfileStore persists user profiles and their remembered turns.
type ProfileStore interface {
	// FindByEncoding returns the nearest profile whose encoding lies strictly
	// closer than threshold, or ErrNoMatch.
	FindByEncoding(ctx context.Context, encoding []float32, threshold float64) (Match, error)

	// CreateProfile stores a new profile and returns it with ID and
	// CreatedAt set.
	CreateProfile(ctx context.Context, displayName string, encoding []float32) (*Profile, error)

	// GetProfile loads a profile including all turns, or ErrNotFound.
	GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error)

	// AppendTurn adds turn to the profile's history, or ErrNotFound.
	AppendTurn(ctx context.Context, profileID uuid.UUID, turn Turn) error

	// ListProfiles returns every profile, oldest first.
	ListProfiles(ctx context.Context) ([]ProfileSummary, error)

	// Recall returns the profile's memories, most recent first.
	Recall(ctx context.Context, profileID uuid.UUID, opts ...RecallOpt) ([]Recalled, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
}

// Distance returns the Euclidean distance between a and b. Vectors of
// different length are infinitely far apart.
func Distance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
