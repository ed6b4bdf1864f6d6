package service

import (
	"errors"
	"sync"
)

// ErrMoveInProgress indicates another move for the same session is
// still being processed. Callers reject rather than queue.
var ErrMoveInProgress = errors.New("a move is already being processed")

// MoveGuard serializes move processing per session. Only one move per
// session may be in flight; a concurrent attempt fails fast instead of
// waiting.
type MoveGuard struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMoveGuard creates an empty guard.
func NewMoveGuard() *MoveGuard {
	return &MoveGuard{locks: make(map[string]*sync.Mutex)}
}

// TryAcquire claims the move slot for a session. On success the caller
// must invoke the returned release exactly once; otherwise
// ErrMoveInProgress is returned.
func (g *MoveGuard) TryAcquire(sessionID string) (func(), error) {
	g.mu.Lock()
	m, ok := g.locks[sessionID]
	if !ok {
		m = &sync.Mutex{}
		g.locks[sessionID] = m
	}
	g.mu.Unlock()

	if !m.TryLock() {
		return nil, ErrMoveInProgress
	}
	return m.Unlock, nil
}

// Forget drops the lock entry for a session that no longer exists.
func (g *MoveGuard) Forget(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.locks, sessionID)
}
