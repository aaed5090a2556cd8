// Package mock provides an in-memory test double for [memory.ProfileStore].
//
// Unlike a pure stub, Store keeps real state so session tests can create a
// profile, append turns and read them back. Every method call is recorded and
// each method has an injectable error.
//
// Typical usage:
//
//	store := &mock.Store{}
//	store.AppendTurnErr = errors.New("db down")
//
//	// inject store into the system under test …
//
//	if got := store.CallCount("AppendTurn"); got != 1 {
//	    t.Errorf("expected 1 AppendTurn call, got %d", got)
//	}
package mock

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/ioanna/pkg/memory"
)

var _ memory.ProfileStore = (*Store)(nil)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is an in-memory [memory.ProfileStore].
type Store struct {
	mu sync.Mutex

	calls    []Call
	profiles []*memory.Profile

	// FindErr, CreateErr, GetErr, AppendTurnErr, ListErr, RecallErr and
	// PingErr are returned by the matching method when non-nil.
	FindErr       error
	CreateErr     error
	GetErr        error
	AppendTurnErr error
	ListErr       error
	RecallErr     error
	PingErr       error
}

// Seed adds profiles directly, bypassing call recording.
func (s *Store) Seed(profiles ...*memory.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range profiles {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		s.profiles = append(s.profiles, clone(p))
	}
}

// Calls returns a copy of all recorded method invocations.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// CallCount returns how many times the named method was invoked.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (s *Store) record(method string, args ...any) {
	s.calls = append(s.calls, Call{Method: method, Args: args})
}

// FindByEncoding implements [memory.ProfileStore].
func (s *Store) FindByEncoding(_ context.Context, encoding []float32, threshold float64) (memory.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("FindByEncoding", encoding, threshold)
	if s.FindErr != nil {
		return memory.Match{}, s.FindErr
	}
	var (
		best *memory.Profile
		dist float64
	)
	for _, p := range s.profiles {
		d := memory.Distance(encoding, p.Encoding)
		if d < threshold && (best == nil || d < dist) {
			best, dist = p, d
		}
	}
	if best == nil {
		return memory.Match{}, memory.ErrNoMatch
	}
	return memory.Match{Profile: clone(best), Distance: dist}, nil
}

// CreateProfile implements [memory.ProfileStore].
func (s *Store) CreateProfile(_ context.Context, displayName string, encoding []float32) (*memory.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CreateProfile", displayName, encoding)
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	p := &memory.Profile{
		ID:          uuid.New(),
		DisplayName: displayName,
		Encoding:    slices.Clone(encoding),
		CreatedAt:   time.Now().UTC(),
	}
	s.profiles = append(s.profiles, p)
	return clone(p), nil
}

// GetProfile implements [memory.ProfileStore].
func (s *Store) GetProfile(_ context.Context, id uuid.UUID) (*memory.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("GetProfile", id)
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	p := s.find(id)
	if p == nil {
		return nil, memory.ErrNotFound
	}
	return clone(p), nil
}

// AppendTurn implements [memory.ProfileStore].
func (s *Store) AppendTurn(_ context.Context, profileID uuid.UUID, turn memory.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("AppendTurn", profileID, turn)
	if s.AppendTurnErr != nil {
		return s.AppendTurnErr
	}
	p := s.find(profileID)
	if p == nil {
		return memory.ErrNotFound
	}
	p.Turns = append(p.Turns, turn)
	return nil
}

// ListProfiles implements [memory.ProfileStore].
func (s *Store) ListProfiles(_ context.Context) ([]memory.ProfileSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("ListProfiles")
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]memory.ProfileSummary, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, memory.ProfileSummary{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			TurnCount:   len(p.Turns),
			MemoryCount: len(p.Memories()),
			CreatedAt:   p.CreatedAt,
		})
	}
	return out, nil
}

// Recall implements [memory.ProfileStore]. Query matching is a
// case-insensitive substring test.
func (s *Store) Recall(_ context.Context, profileID uuid.UUID, opts ...memory.RecallOpt) ([]memory.Recalled, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	params := memory.ApplyRecallOpts(opts)
	s.record("Recall", profileID, params)
	if s.RecallErr != nil {
		return nil, s.RecallErr
	}
	p := s.find(profileID)
	if p == nil {
		return []memory.Recalled{}, nil
	}
	out := []memory.Recalled{}
	for i := len(p.Turns) - 1; i >= 0; i-- {
		t := p.Turns[i]
		for _, m := range t.Memories {
			if m.Importance < params.MinImportance {
				continue
			}
			if params.Query != "" && !strings.Contains(strings.ToLower(m.Text), strings.ToLower(params.Query)) {
				continue
			}
			out = append(out, memory.Recalled{Entry: m, Question: t.Question, AskedAt: t.AskedAt})
			if len(out) == params.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// Ping implements [memory.ProfileStore].
func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Ping")
	return s.PingErr
}

func (s *Store) find(id uuid.UUID) *memory.Profile {
	for _, p := range s.profiles {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func clone(p *memory.Profile) *memory.Profile {
	c := *p
	c.Encoding = slices.Clone(p.Encoding)
	c.Turns = slices.Clone(p.Turns)
	return &c
}
