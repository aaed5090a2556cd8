package session

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/MrWong99/ioanna/pkg/memory"
)

// StoreGuard wraps a [memory.ProfileStore] and tracks whether turn writes
// are failing. A failed AppendTurn marks the guard degraded until the next
// successful write; the session keeps the turn in memory and carries on.
//
// StoreGuard implements [memory.ProfileStore]; every other method is passed
// through unchanged. All methods are safe for concurrent use.
type StoreGuard struct {
	memory.ProfileStore
	degraded atomic.Bool
}

var _ memory.ProfileStore = (*StoreGuard)(nil)

// NewStoreGuard returns a guard around store.
func NewStoreGuard(store memory.ProfileStore) *StoreGuard {
	return &StoreGuard{ProfileStore: store}
}

// AppendTurn writes turn to the underlying store and returns its error. A
// cancelled write does not change the degraded flag.
func (g *StoreGuard) AppendTurn(ctx context.Context, profileID uuid.UUID, turn memory.Turn) error {
	if err := g.ProfileStore.AppendTurn(ctx, profileID, turn); err != nil {
		if ctx.Err() == nil {
			g.degraded.Store(true)
		}
		return err
	}
	g.degraded.Store(false)
	return nil
}

// IsDegraded reports whether the most recent write failed.
func (g *StoreGuard) IsDegraded() bool {
	return g.degraded.Load()
}
