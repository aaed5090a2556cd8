// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Player] for use in unit tests.
//
// Both mocks are safe for concurrent use and record their calls so tests can
// assert on them.
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/ioanna/pkg/audio"
)

// ─── Source ──────────────────────────────────────────────────────────────────

// Source is a mock [audio.Source] that replays a scripted list of chunks.
// When the script is exhausted it either returns io.EOF or, with Loop set,
// keeps producing LoopChunk forever.
type Source struct {
	mu sync.Mutex

	// SourceFormat is returned by Format. Defaults to [audio.DefaultFormat].
	SourceFormat audio.Format

	// Chunks are returned in order, one per ReadChunk call.
	Chunks [][]byte

	// Loop makes the source return LoopChunk after Chunks runs out.
	Loop      bool
	LoopChunk []byte

	// ReadErr, when non-nil, is returned by every ReadChunk call.
	ReadErr error

	// OnRead, when set, is called before each read with the 0-based index.
	OnRead func(i int)

	reads  int
	closed int
}

var _ audio.Source = (*Source)(nil)

// Format implements [audio.Source].
func (s *Source) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.SourceFormat.Valid() {
		return audio.DefaultFormat
	}
	return s.SourceFormat
}

// ReadChunk implements [audio.Source].
func (s *Source) ReadChunk(ctx context.Context, _ int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	i := s.reads
	s.reads++
	onRead := s.OnRead
	s.mu.Unlock()
	if onRead != nil {
		onRead(i)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ReadErr != nil {
		return nil, s.ReadErr
	}
	if i < len(s.Chunks) {
		return s.Chunks[i], nil
	}
	if s.Loop {
		return s.LoopChunk, nil
	}
	return nil, io.EOF
}

// Close implements [audio.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Reads returns the number of ReadChunk calls so far.
func (s *Source) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// CloseCount returns the number of Close calls so far.
func (s *Source) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ─── Player ──────────────────────────────────────────────────────────────────

// Player is a mock [audio.Player] that records every clip it is asked to play.
type Player struct {
	mu sync.Mutex

	// PlayErr is returned by every Play call.
	PlayErr error

	// Played holds every clip passed to Play, in order.
	Played []audio.Clip
}

var _ audio.Player = (*Player)(nil)

// Play implements [audio.Player].
func (p *Player) Play(_ context.Context, c audio.Clip) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Played = append(p.Played, c)
	return p.PlayErr
}

// PlayCount returns the number of Play calls so far.
func (p *Player) PlayCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Played)
}

// Clips returns a copy of every clip played so far.
func (p *Player) Clips() []audio.Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]audio.Clip(nil), p.Played...)
}
