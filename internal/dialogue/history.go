// Package dialogue owns the conversation state of a session: the message
// [History] shared with the UI, and the [Questioner] that asks the next
// question.
package dialogue

import (
	"sync"

	"github.com/MrWong99/ioanna/pkg/types"
)

// History is an append-only conversation log. Safe for concurrent use;
// readers always get a copy.
type History struct {
	mu   sync.Mutex
	msgs []types.Message
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{}
}

// Append adds msg to the end of the log.
func (h *History) Append(msg types.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
}

// Snapshot returns a copy of every message in order.
func (h *History) Snapshot() []types.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}

// Last returns a copy of the n most recent messages.
func (h *History) Last(n int) []types.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 {
		return nil
	}
	start := max(len(h.msgs)-n, 0)
	out := make([]types.Message, len(h.msgs)-start)
	copy(out, h.msgs[start:])
	return out
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}
