package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/ioanna/internal/dialogue"
	"github.com/MrWong99/ioanna/internal/session"
	"github.com/MrWong99/ioanna/pkg/types"
)

// ErrNoActiveSession is returned by [SessionManager.Stop] when no
// conversation is running.
var ErrNoActiveSession = errors.New("app: no active session")

// DefaultSessionPause is the wait between two conversations.
const DefaultSessionPause = 2 * time.Second

// SessionInfo describes the running conversation.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	ProfileID string    `json:"profile_id,omitempty"`
	UserName  string    `json:"user_name,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// SessionFactory builds the next conversation and the history it writes to.
type SessionFactory func() (*session.Session, *dialogue.History)

// conversation is the session currently owned by the manager.
type conversation struct {
	sess      *session.Session
	history   *dialogue.History
	startedAt time.Time
}

// SessionManager runs conversations back to back: as soon as one ends the
// next one starts waiting for a face. Only one conversation is active at a
// time. All exported methods are safe for concurrent use.
type SessionManager struct {
	newSession SessionFactory
	pause      time.Duration

	mu        sync.Mutex
	cur       *conversation
	completed atomic.Int64
}

// SessionManagerOption configures a [SessionManager].
type SessionManagerOption func(*SessionManager)

// WithSessionPause sets the wait between two conversations.
func WithSessionPause(d time.Duration) SessionManagerOption {
	return func(sm *SessionManager) {
		if d >= 0 {
			sm.pause = d
		}
	}
}

// NewSessionManager returns a manager that builds conversations with f.
func NewSessionManager(f SessionFactory, opts ...SessionManagerOption) *SessionManager {
	sm := &SessionManager{newSession: f, pause: DefaultSessionPause}
	for _, o := range opts {
		o(sm)
	}
	return sm
}

// Run starts conversations until ctx is done. Failed conversations are
// logged and followed by a fresh one. Run returns nil when ctx is done.
func (sm *SessionManager) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		sess, history := sm.newSession()
		sm.mu.Lock()
		sm.cur = &conversation{sess: sess, history: history, startedAt: time.Now().UTC()}
		sm.mu.Unlock()

		err := sess.Run(ctx)

		sm.mu.Lock()
		sm.cur = nil
		sm.mu.Unlock()
		sm.completed.Add(1)

		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			slog.Warn("app: session ended with error", "session_id", sess.ID(), "err", err)
		}

		t := time.NewTimer(sm.pause)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
	return nil
}

// Stop ends the running conversation at its next safe point. The manager
// then starts a new one.
func (sm *SessionManager) Stop() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.cur == nil {
		return ErrNoActiveSession
	}
	sm.cur.sess.Stop()
	slog.Info("app: session stop requested", "session_id", sm.cur.sess.ID())
	return nil
}

// IsActive reports whether a conversation is running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.cur != nil
}

// Info describes the running conversation. The second result is false when
// none is running.
func (sm *SessionManager) Info() (SessionInfo, bool) {
	sm.mu.Lock()
	cur := sm.cur
	sm.mu.Unlock()
	if cur == nil {
		return SessionInfo{}, false
	}
	info := SessionInfo{
		SessionID: cur.sess.ID(),
		State:     cur.sess.State().String(),
		StartedAt: cur.startedAt,
	}
	if p := cur.sess.Profile(); p != nil {
		info.ProfileID = p.ID.String()
		info.UserName = p.DisplayName
	}
	return info, true
}

// History returns a snapshot of the running conversation's messages, or nil
// when none is running.
func (sm *SessionManager) History() []types.Message {
	sm.mu.Lock()
	cur := sm.cur
	sm.mu.Unlock()
	if cur == nil || cur.history == nil {
		return nil
	}
	return cur.history.Snapshot()
}

// Completed returns how many conversations have ended.
func (sm *SessionManager) Completed() int64 {
	return sm.completed.Load()
}
