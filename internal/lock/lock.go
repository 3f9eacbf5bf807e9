// Package lock provides per-session mutual exclusion: at most one
// active turn per session, with an explicit cancellation signal tied
// to the held token.
package lock

import (
	"context"
	"sync"

	"github.com/opencode-ai/core/pkg/types"
)

// Manager tracks which sessions hold a live turn.
type Manager struct {
	mu   sync.Mutex
	held map[string]*Token
}

// Token is a scoped hold on one session. Its context is the single
// point of truth for turn cancellation.
type Token struct {
	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc
	manager   *Manager

	mu        sync.Mutex
	cancelled bool
	released  bool
}

// NewManager creates a lock manager.
func NewManager() *Manager {
	return &Manager{held: make(map[string]*Token)}
}

// Acquire takes the session lock, deriving the turn context from
// parent. It fails with Busy when a turn is already live.
func (m *Manager) Acquire(parent context.Context, sessionID string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[sessionID]; ok {
		return nil, types.NewBusyError(sessionID)
	}

	ctx, cancel := context.WithCancel(parent)
	t := &Token{sessionID: sessionID, ctx: ctx, cancel: cancel, manager: m}
	m.held[sessionID] = t
	return t, nil
}

// AssertUnlocked fails with Busy when the session holds a live turn.
func (m *Manager) AssertUnlocked(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[sessionID]; ok {
		return types.NewBusyError(sessionID)
	}
	return nil
}

// Locked reports whether a turn is live on the session.
func (m *Manager) Locked(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[sessionID]
	return ok
}

// Cancel fires the held token's signal. The turn observes it at its
// next suspension point and unwinds; the lock releases when it does.
// Cancelling an idle session is a no-op.
func (m *Manager) Cancel(sessionID string) bool {
	m.mu.Lock()
	t, ok := m.held[sessionID]
	m.mu.Unlock()
	if !ok {
		return false
	}

	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
	t.cancel()
	return true
}

// CancelAll fires every held token, for shutdown.
func (m *Manager) CancelAll() {
	m.mu.Lock()
	tokens := make([]*Token, 0, len(m.held))
	for _, t := range m.held {
		tokens = append(tokens, t)
	}
	m.mu.Unlock()

	for _, t := range tokens {
		t.mu.Lock()
		t.cancelled = true
		t.mu.Unlock()
		t.cancel()
	}
}

// Context is the turn's cancellation signal.
func (t *Token) Context() context.Context { return t.ctx }

// SessionID names the locked session.
func (t *Token) SessionID() string { return t.sessionID }

// Cancelled reports whether Cancel fired the token (as opposed to a
// plain release or a parent context expiry).
func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Release returns the lock. It is idempotent and safe on every exit
// path; the token's context is cancelled as a side effect.
func (t *Token) Release() {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return
	}
	t.released = true
	t.mu.Unlock()

	t.manager.mu.Lock()
	if t.manager.held[t.sessionID] == t {
		delete(t.manager.held, t.sessionID)
	}
	t.manager.mu.Unlock()
	t.cancel()
}
