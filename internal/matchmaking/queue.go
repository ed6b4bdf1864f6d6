// Package matchmaking pairs waiting players into game sessions.
//
// A single queue holds at most a handful of waiting participants keyed
// by connection. When a second participant arrives on a different
// connection the pair is matched immediately; otherwise a timer
// eventually hands the waiting participant to a bot.
package matchmaking

import (
	"sync"
	"time"

	"github.com/louisbranch/dropfour/internal/game/domain"
)

// entry tracks one waiting participant and the timer that will promote
// them to a bot game.
type entry struct {
	participant *domain.Participant
	timer       *time.Timer
}

// Queue matches participants in arrival order. Safe for concurrent use.
type Queue struct {
	mu         sync.Mutex
	botTimeout time.Duration
	waiting    map[string]*entry
}

// New creates a queue. botTimeout bounds how long a participant waits
// before being matched against a bot; zero or negative disables the
// bot fallback.
func New(botTimeout time.Duration) *Queue {
	return &Queue{
		botTimeout: botTimeout,
		waiting:    make(map[string]*entry),
	}
}

// Enqueue adds p to the queue. If another participant is already
// waiting on a different connection, both are removed and returned as a
// match. Otherwise p waits and onBotTimeout fires once if nobody
// arrives in time; a nil onBotTimeout disables the fallback for this
// entry.
//
// Re-enqueueing the same connection or the same participant identity
// resets the timer rather than matching the participant against
// themselves.
func (q *Queue) Enqueue(p *domain.Participant, onBotTimeout func(*domain.Participant)) (opponent *domain.Participant, matched bool) {
	key := p.ConnKey()

	q.mu.Lock()
	defer q.mu.Unlock()

	for otherKey, other := range q.waiting {
		if otherKey == key || other.participant.ID == p.ID {
			continue
		}
		q.removeLocked(otherKey, other)
		return other.participant, true
	}

	for otherKey, other := range q.waiting {
		if otherKey == key || other.participant.ID == p.ID {
			q.removeLocked(otherKey, other)
		}
	}

	e := &entry{participant: p}
	q.waiting[key] = e

	if onBotTimeout != nil && q.botTimeout > 0 {
		e.timer = time.AfterFunc(q.botTimeout, func() {
			if !q.consume(key, e) {
				return
			}
			onBotTimeout(p)
		})
	}

	return nil, false
}

// Dequeue removes the participant waiting on key, if any, and cancels
// the bot timer. Safe to call for connections that never enqueued.
func (q *Queue) Dequeue(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.waiting[key]
	if !ok {
		return false
	}
	q.removeLocked(key, e)
	return true
}

// Contains reports whether a participant is waiting on key.
func (q *Queue) Contains(key string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, ok := q.waiting[key]
	return ok
}

// Len reports the number of waiting participants.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.waiting)
}

// consume removes the entry only if it is still the one the timer was
// armed for. A stale timer firing after its entry was matched,
// dequeued, or replaced must not steal the newer entry.
func (q *Queue) consume(key string, e *entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	current, ok := q.waiting[key]
	if !ok || current != e {
		return false
	}
	delete(q.waiting, key)
	return true
}

func (q *Queue) removeLocked(key string, e *entry) {
	delete(q.waiting, key)
	if e.timer != nil {
		e.timer.Stop()
	}
}
