// Package domain holds the session and participant model for the game
// core. Types here are not safe for concurrent use; the session registry
// serializes access.
package domain

import (
	"errors"
	"time"

	"github.com/louisbranch/dropfour/internal/game/board"
)

// Slot is one of the two fixed turn-order positions in a session.
type Slot int

const (
	// SlotNone is the absence of a slot.
	SlotNone Slot = 0
	// Slot1 moves first.
	Slot1 Slot = 1
	// Slot2 moves second.
	Slot2 Slot = 2
)

// Piece maps a slot to its board piece.
func (s Slot) Piece() board.Cell {
	switch s {
	case Slot1:
		return board.Player1
	case Slot2:
		return board.Player2
	default:
		return board.Empty
	}
}

// Other returns the opposing slot.
func (s Slot) Other() Slot {
	switch s {
	case Slot1:
		return Slot2
	case Slot2:
		return Slot1
	default:
		return SlotNone
	}
}

// String returns the wire representation of a slot.
func (s Slot) String() string {
	switch s {
	case Slot1:
		return "player1"
	case Slot2:
		return "player2"
	default:
		return ""
	}
}

// MarshalJSON encodes slots as their wire strings.
func (s Slot) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Status describes the lifecycle state of a session.
type Status int

const (
	// StatusWaiting indicates slot 2 is still unfilled.
	StatusWaiting Status = iota
	// StatusActive indicates both slots are filled and moves are accepted.
	StatusActive
	// StatusCompleted indicates the game ended with a win or draw.
	StatusCompleted
	// StatusForfeited indicates the game ended by forfeit.
	StatusForfeited
)

// String returns the wire representation of a status.
func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusForfeited:
		return "forfeited"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further moves are accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusForfeited
}

var (
	// ErrNotWaiting indicates a join on a session that already has two slots.
	ErrNotWaiting = errors.New("game is not waiting for an opponent")
	// ErrSessionNotActive indicates a move on a session that is not active.
	ErrSessionNotActive = errors.New("game is not active")
	// ErrUnknownParticipant indicates an id that matches neither slot.
	ErrUnknownParticipant = errors.New("player is not part of this game")
	// ErrNotYourTurn indicates a move by the participant whose turn it is not.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrSessionTerminal indicates an operation on an already-ended session.
	ErrSessionTerminal = errors.New("game already ended")
)

// Session is one game instance between two participant slots.
type Session struct {
	ID      string
	Player1 *Participant
	Player2 *Participant // nil while waiting
	Board   *board.Board
	Status  Status
	// CurrentTurn alternates strictly on every accepted move.
	CurrentTurn Slot
	WinnerID    string
	IsVsBot     bool
	Moves       int
	CreatedAt   time.Time
	LastMoveAt  time.Time
	// Disconnected names the participant currently inside a disconnect
	// grace window, or "" when both sides are live.
	Disconnected string
}

// NewSession creates a waiting session with slot 1 filled and slot 1 to move.
func NewSession(sessionID string, player1 *Participant, rows, cols int, now time.Time) *Session {
	return &Session{
		ID:          sessionID,
		Player1:     player1,
		Board:       board.New(rows, cols),
		Status:      StatusWaiting,
		CurrentTurn: Slot1,
		CreatedAt:   now,
		LastMoveAt:  now,
	}
}

// Join fills slot 2 and activates the session. A session transitions
// waiting to active exactly once.
func (s *Session) Join(player2 *Participant, isBot bool) error {
	if s.Status != StatusWaiting {
		return ErrNotWaiting
	}
	s.Player2 = player2
	s.IsVsBot = isBot
	s.Status = StatusActive
	return nil
}

// ResolveSlot maps a participant id to its slot.
func (s *Session) ResolveSlot(participantID string) (Slot, bool) {
	if s.Player1 != nil && s.Player1.ID == participantID {
		return Slot1, true
	}
	if s.Player2 != nil && s.Player2.ID == participantID {
		return Slot2, true
	}
	return SlotNone, false
}

// ParticipantBySlot returns the occupant of a slot, which may be nil.
func (s *Session) ParticipantBySlot(slot Slot) *Participant {
	switch slot {
	case Slot1:
		return s.Player1
	case Slot2:
		return s.Player2
	default:
		return nil
	}
}

// Opponent returns the other slot's participant, or nil.
func (s *Session) Opponent(participantID string) *Participant {
	slot, ok := s.ResolveSlot(participantID)
	if !ok {
		return nil
	}
	return s.ParticipantBySlot(slot.Other())
}

// MoveResult describes one accepted move.
type MoveResult struct {
	Position board.Position
	Slot     Slot
	NextTurn Slot
	WinnerID string
	IsDraw   bool
}

// Terminal reports whether the move ended the game.
func (r MoveResult) Terminal() bool {
	return r.WinnerID != "" || r.IsDraw
}

// ApplyMove validates and applies one move for participantID. On success
// the turn marker flips unless the move ended the game, in which case the
// session transitions to completed. Every rejected move leaves the
// session untouched.
func (s *Session) ApplyMove(participantID string, col int, now time.Time) (MoveResult, error) {
	if s.Status != StatusActive {
		return MoveResult{}, ErrSessionNotActive
	}
	slot, ok := s.ResolveSlot(participantID)
	if !ok {
		return MoveResult{}, ErrUnknownParticipant
	}
	if slot != s.CurrentTurn {
		return MoveResult{}, ErrNotYourTurn
	}

	pos, err := s.Board.Apply(col, slot.Piece())
	if err != nil {
		return MoveResult{}, err
	}

	s.Moves++
	s.LastMoveAt = now

	result := MoveResult{Position: pos, Slot: slot}
	switch {
	case s.Board.CheckWin(pos.Row, pos.Col, slot.Piece()):
		s.Status = StatusCompleted
		s.WinnerID = participantID
		result.WinnerID = participantID
	case s.Board.IsDraw():
		s.Status = StatusCompleted
		result.IsDraw = true
	default:
		s.CurrentTurn = s.CurrentTurn.Other()
		result.NextTurn = s.CurrentTurn
	}
	return result, nil
}

// Forfeit ends the session in favor of participantID's opponent.
func (s *Session) Forfeit(participantID string) error {
	if s.Status.Terminal() {
		return ErrSessionTerminal
	}
	slot, ok := s.ResolveSlot(participantID)
	if !ok {
		return ErrUnknownParticipant
	}
	s.Status = StatusForfeited
	if winner := s.ParticipantBySlot(slot.Other()); winner != nil {
		s.WinnerID = winner.ID
	}
	return nil
}
