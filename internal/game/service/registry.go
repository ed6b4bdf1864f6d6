// Package service coordinates live game sessions: the in-memory
// registry, per-session move serialization, and disconnect grace
// supervision. Persistence only happens when a session reaches a
// terminal state.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/dropfour/internal/game/board"
	"github.com/louisbranch/dropfour/internal/game/domain"
	"github.com/louisbranch/dropfour/internal/storage"
)

// ErrSessionNotFound indicates the session id maps to no live session.
var ErrSessionNotFound = errors.New("game not found")

// entry wraps one live session with its own lock so sessions never
// contend with each other.
type entry struct {
	mu        sync.Mutex
	session   *domain.Session
	finalized bool
	reap      *time.Timer
}

// Snapshot is an immutable view of a session taken under its lock.
// The board is a deep copy; participant pointers are shared because
// participants synchronize internally.
type Snapshot struct {
	ID           string
	Player1      *domain.Participant
	Player2      *domain.Participant
	Board        *board.Board
	Status       domain.Status
	CurrentTurn  domain.Slot
	WinnerID     string
	IsVsBot      bool
	Moves        int
	CreatedAt    time.Time
	LastMoveAt   time.Time
	Disconnected string
}

// Participant returns the snapshot occupant with the given id, or nil.
func (s Snapshot) Participant(id string) *domain.Participant {
	if s.Player1 != nil && s.Player1.ID == id {
		return s.Player1
	}
	if s.Player2 != nil && s.Player2.ID == id {
		return s.Player2
	}
	return nil
}

// Opponent returns the other occupant, or nil.
func (s Snapshot) Opponent(id string) *domain.Participant {
	if s.Player1 != nil && s.Player1.ID == id {
		return s.Player2
	}
	if s.Player2 != nil && s.Player2.ID == id {
		return s.Player1
	}
	return nil
}

// Slot maps a participant id to its slot in this snapshot.
func (s Snapshot) Slot(id string) domain.Slot {
	if s.Player1 != nil && s.Player1.ID == id {
		return domain.Slot1
	}
	if s.Player2 != nil && s.Player2.ID == id {
		return domain.Slot2
	}
	return domain.SlotNone
}

// RegistryConfig carries the registry dependencies.
type RegistryConfig struct {
	Rows      int
	Cols      int
	ReapDelay time.Duration
	Players   storage.PlayerStore
	Games     storage.GameStore
	Now       func() time.Time
	NewID     func() (string, error)
}

// Registry owns every live session. All session mutation flows through
// it; callers only ever see snapshots.
type Registry struct {
	rows      int
	cols      int
	reapDelay time.Duration
	players   storage.PlayerStore
	games     storage.GameStore
	now       func() time.Time
	newID     func() (string, error)

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewRegistry creates a registry. Zero config fields fall back to
// sensible defaults except the stores, which may stay nil to disable
// persistence.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Rows <= 0 {
		cfg.Rows = 6
	}
	if cfg.Cols <= 0 {
		cfg.Cols = 7
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.NewID == nil {
		cfg.NewID = func() (string, error) { return "", fmt.Errorf("id generator is not configured") }
	}
	return &Registry{
		rows:      cfg.Rows,
		cols:      cfg.Cols,
		reapDelay: cfg.ReapDelay,
		players:   cfg.Players,
		games:     cfg.Games,
		now:       cfg.Now,
		newID:     cfg.NewID,
		sessions:  make(map[string]*entry),
	}
}

// Create opens a waiting session with player1 in slot 1.
func (r *Registry) Create(player1 *domain.Participant) (Snapshot, error) {
	id, err := r.newID()
	if err != nil {
		return Snapshot{}, fmt.Errorf("new session id: %w", err)
	}

	session := domain.NewSession(id, player1, r.rows, r.cols, r.now())
	e := &entry{session: session}

	r.mu.Lock()
	r.sessions[id] = e
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return r.snapshotLocked(session), nil
}

// Join fills slot 2 of a waiting session and activates it.
func (r *Registry) Join(sessionID string, player2 *domain.Participant, isBot bool) (Snapshot, error) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.session.Join(player2, isBot); err != nil {
		return Snapshot{}, err
	}
	return r.snapshotLocked(e.session), nil
}

// SubmitMove applies one move and returns the result with a post-move
// snapshot.
func (r *Registry) SubmitMove(sessionID, participantID string, col int) (domain.MoveResult, Snapshot, error) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return domain.MoveResult{}, Snapshot{}, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	result, err := e.session.ApplyMove(participantID, col, r.now())
	if err != nil {
		return domain.MoveResult{}, Snapshot{}, err
	}
	return result, r.snapshotLocked(e.session), nil
}

// Forfeit ends a session in favor of participantID's opponent.
func (r *Registry) Forfeit(sessionID, participantID string) (Snapshot, error) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.session.Forfeit(participantID); err != nil {
		return Snapshot{}, err
	}
	return r.snapshotLocked(e.session), nil
}

// ForfeitIfDisconnected forfeits the session in favor of
// participantID's opponent, but only if the disconnect marker still
// names participantID under the session lock. A rejoin that landed
// first clears the marker and wins the race; forfeited reports whether
// the forfeit was applied.
func (r *Registry) ForfeitIfDisconnected(sessionID, participantID string) (snap Snapshot, forfeited bool, err error) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return Snapshot{}, false, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Disconnected != participantID {
		return r.snapshotLocked(e.session), false, nil
	}
	if err := e.session.Forfeit(participantID); err != nil {
		return Snapshot{}, false, err
	}
	return r.snapshotLocked(e.session), true, nil
}

// SetDisconnected marks a participant as inside a disconnect grace
// window. Terminal sessions ignore the marker.
func (r *Registry) SetDisconnected(sessionID, participantID string) (Snapshot, error) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.session.ResolveSlot(participantID); !ok {
		return Snapshot{}, domain.ErrUnknownParticipant
	}
	if !e.session.Status.Terminal() {
		e.session.Disconnected = participantID
	}
	if p := e.session.ParticipantBySlot(mustSlot(e.session, participantID)); p != nil {
		p.SetConnected(false)
	}
	return r.snapshotLocked(e.session), nil
}

// Rejoin swaps in a fresh connection for a disconnected participant and
// clears the grace marker. Terminal sessions reject rejoins.
func (r *Registry) Rejoin(sessionID, participantID string, conn domain.Connection) (Snapshot, error) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Status.Terminal() {
		return Snapshot{}, domain.ErrSessionTerminal
	}
	slot, ok := e.session.ResolveSlot(participantID)
	if !ok {
		return Snapshot{}, domain.ErrUnknownParticipant
	}
	p := e.session.ParticipantBySlot(slot)
	p.SetConn(conn)
	if e.session.Disconnected == participantID {
		e.session.Disconnected = ""
	}
	return r.snapshotLocked(e.session), nil
}

// Snapshot returns an immutable view of a session.
func (r *Registry) Snapshot(sessionID string) (Snapshot, error) {
	e, ok := r.lookup(sessionID)
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return r.snapshotLocked(e.session), nil
}

// FindByConnKey locates the live session holding the participant whose
// current connection has the given key.
func (r *Registry) FindByConnKey(key string) (sessionID, participantID string, ok bool) {
	if key == "" {
		return "", "", false
	}

	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		s := e.session
		var found *domain.Participant
		if s.Player1 != nil && !s.Player1.IsBot && s.Player1.ConnKey() == key {
			found = s.Player1
		} else if s.Player2 != nil && !s.Player2.IsBot && s.Player2.ConnKey() == key {
			found = s.Player2
		}
		if found != nil {
			id := s.ID
			pid := found.ID
			e.mu.Unlock()
			return id, pid, true
		}
		e.mu.Unlock()
	}
	return "", "", false
}

// ActiveCount reports the number of live sessions, including terminal
// ones still inside the reap window.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Finalize persists a terminal session and schedules its removal from
// memory. It is idempotent; only the first call writes. Stat counters
// skip bot participants.
func (r *Registry) Finalize(ctx context.Context, sessionID string) error {
	e, ok := r.lookup(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session
	if !s.Status.Terminal() {
		return fmt.Errorf("finalize non-terminal session %s", sessionID)
	}
	if e.finalized {
		return nil
	}
	e.finalized = true

	if err := r.persistLocked(ctx, s); err != nil {
		log.Printf("persist session failed game=%s err=%v", sessionID, err)
	}

	reapDelay := r.reapDelay
	if reapDelay <= 0 {
		r.remove(sessionID)
		return nil
	}
	e.reap = time.AfterFunc(reapDelay, func() {
		r.remove(sessionID)
	})
	return nil
}

// remove drops a session from memory.
func (r *Registry) remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

func (r *Registry) persistLocked(ctx context.Context, s *domain.Session) error {
	if r.games == nil {
		return nil
	}

	boardJSON, err := json.Marshal(s.Board)
	if err != nil {
		return fmt.Errorf("encode board: %w", err)
	}

	isDraw := s.Status == domain.StatusCompleted && s.WinnerID == ""
	record := storage.GameRecord{
		ID:        s.ID,
		WinnerID:  s.WinnerID,
		IsDraw:    isDraw,
		IsVsBot:   s.IsVsBot,
		Moves:     s.Moves,
		Board:     boardJSON,
		StartedAt: s.CreatedAt,
		EndedAt:   s.LastMoveAt,
	}
	if s.Player1 != nil {
		record.Player1ID = s.Player1.ID
		record.Player1Name = s.Player1.Username
	}
	if s.Player2 != nil {
		record.Player2ID = s.Player2.ID
		record.Player2Name = s.Player2.Username
	}
	if err := r.games.SaveGame(ctx, record); err != nil {
		return fmt.Errorf("save game: %w", err)
	}

	r.recordStats(ctx, s, isDraw)
	return nil
}

// recordStats bumps win/loss/draw counters for the human participants.
func (r *Registry) recordStats(ctx context.Context, s *domain.Session, isDraw bool) {
	if r.players == nil {
		return
	}

	for _, p := range []*domain.Participant{s.Player1, s.Player2} {
		if p == nil || p.IsBot {
			continue
		}
		field := storage.StatLosses
		switch {
		case isDraw:
			field = storage.StatDraws
		case p.ID == s.WinnerID:
			field = storage.StatWins
		}
		if err := r.players.IncrementStat(ctx, p.ID, field); err != nil {
			log.Printf("increment stat failed player=%s field=%s err=%v", p.ID, field, err)
		}
	}
}

func (r *Registry) lookup(sessionID string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sessionID]
	return e, ok
}

func (r *Registry) snapshotLocked(s *domain.Session) Snapshot {
	boardCopy, err := board.FromCells(s.Board.Cells())
	if err != nil {
		// Cells of a valid board always round-trip.
		boardCopy = board.New(r.rows, r.cols)
	}
	return Snapshot{
		ID:           s.ID,
		Player1:      s.Player1,
		Player2:      s.Player2,
		Board:        boardCopy,
		Status:       s.Status,
		CurrentTurn:  s.CurrentTurn,
		WinnerID:     s.WinnerID,
		IsVsBot:      s.IsVsBot,
		Moves:        s.Moves,
		CreatedAt:    s.CreatedAt,
		LastMoveAt:   s.LastMoveAt,
		Disconnected: s.Disconnected,
	}
}

func mustSlot(s *domain.Session, participantID string) domain.Slot {
	slot, _ := s.ResolveSlot(participantID)
	return slot
}
