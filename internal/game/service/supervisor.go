package service

import (
	"sync"
	"time"
)

// graceEntry tracks one running disconnect timer.
type graceEntry struct {
	timer *time.Timer
}

// Supervisor runs disconnect grace timers. A participant who drops
// mid-game gets one timer; if it expires before a rejoin cancels it the
// expiry callback fires exactly once. Expiry and cancellation race by
// design, and the keyed consume step ensures only one side wins.
type Supervisor struct {
	grace time.Duration

	mu     sync.Mutex
	timers map[string]*graceEntry
}

// NewSupervisor creates a supervisor with the given grace window.
func NewSupervisor(grace time.Duration) *Supervisor {
	return &Supervisor{
		grace:  grace,
		timers: make(map[string]*graceEntry),
	}
}

// Start arms a grace timer for a participant in a session, replacing
// any timer already running for the same pair. onExpire is called once
// if the timer outlives all Cancel calls. A non-positive grace window
// fires immediately.
func (s *Supervisor) Start(sessionID, participantID string, onExpire func(sessionID, participantID string)) {
	if onExpire == nil {
		return
	}
	key := sessionID + "/" + participantID

	s.mu.Lock()
	if prev, ok := s.timers[key]; ok {
		prev.timer.Stop()
		delete(s.timers, key)
	}

	if s.grace <= 0 {
		s.mu.Unlock()
		onExpire(sessionID, participantID)
		return
	}

	e := &graceEntry{}
	e.timer = time.AfterFunc(s.grace, func() {
		if !s.consume(key, e) {
			return
		}
		onExpire(sessionID, participantID)
	})
	s.timers[key] = e
	s.mu.Unlock()
}

// Cancel stops the grace timer for a participant. It reports whether a
// timer was still pending; false means the timer already fired or never
// existed.
func (s *Supervisor) Cancel(sessionID, participantID string) bool {
	key := sessionID + "/" + participantID

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.timers[key]
	if !ok {
		return false
	}
	delete(s.timers, key)
	e.timer.Stop()
	return true
}

// CancelSession stops every pending timer for a session.
func (s *Supervisor) CancelSession(sessionID string) {
	prefix := sessionID + "/"

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.timers {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			e.timer.Stop()
			delete(s.timers, key)
		}
	}
}

// Pending reports the number of armed timers.
func (s *Supervisor) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// consume removes the entry only if it is still the armed one. A stale
// timer whose entry was replaced or cancelled must not fire.
func (s *Supervisor) consume(key string, e *graceEntry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.timers[key]
	if !ok || current != e {
		return false
	}
	delete(s.timers, key)
	return true
}
