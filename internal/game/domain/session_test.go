package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/dropfour/internal/game/board"
)

func newActiveSession(t *testing.T) (*Session, *Participant, *Participant) {
	t.Helper()
	p1 := NewParticipant("p1", "alice", nil)
	p2 := NewParticipant("p2", "bob", nil)
	s := NewSession("game-1", p1, 6, 7, time.Now().UTC())
	if err := s.Join(p2, false); err != nil {
		t.Fatalf("join: %v", err)
	}
	return s, p1, p2
}

func TestNewSessionStartsWaitingWithSlot1Turn(t *testing.T) {
	p1 := NewParticipant("p1", "alice", nil)
	s := NewSession("game-1", p1, 6, 7, time.Now().UTC())

	if s.Status != StatusWaiting {
		t.Fatalf("status = %v, want waiting", s.Status)
	}
	if s.CurrentTurn != Slot1 {
		t.Fatalf("current turn = %v, want slot 1", s.CurrentTurn)
	}
	if s.Board.Rows() != 6 || s.Board.Cols() != 7 {
		t.Fatalf("board dims = %dx%d, want 6x7", s.Board.Rows(), s.Board.Cols())
	}
}

func TestJoinActivatesExactlyOnce(t *testing.T) {
	s, _, _ := newActiveSession(t)
	if s.Status != StatusActive {
		t.Fatalf("status = %v, want active", s.Status)
	}

	if err := s.Join(NewParticipant("p3", "carol", nil), false); !errors.Is(err, ErrNotWaiting) {
		t.Fatalf("second join err = %v, want ErrNotWaiting", err)
	}
}

func TestTurnAlternatesStrictly(t *testing.T) {
	s, p1, p2 := newActiveSession(t)

	// After N accepted moves, the turn is slot1 for even N, slot2 for odd N.
	movers := []*Participant{p1, p2}
	for n := 0; n < 10; n++ {
		wantTurn := Slot1
		if n%2 == 1 {
			wantTurn = Slot2
		}
		if s.CurrentTurn != wantTurn {
			t.Fatalf("after %d moves turn = %v, want %v", n, s.CurrentTurn, wantTurn)
		}
		mover := movers[n%2]
		if _, err := s.ApplyMove(mover.ID, n%7, time.Now().UTC()); err != nil {
			t.Fatalf("move %d: %v", n, err)
		}
	}
	if s.Moves != 10 {
		t.Fatalf("moves = %d, want 10", s.Moves)
	}
}

func TestApplyMoveRejections(t *testing.T) {
	s, p1, p2 := newActiveSession(t)

	if _, err := s.ApplyMove("ghost", 0, time.Now().UTC()); !errors.Is(err, ErrUnknownParticipant) {
		t.Fatalf("unknown participant err = %v", err)
	}
	if _, err := s.ApplyMove(p2.ID, 0, time.Now().UTC()); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("out of turn err = %v", err)
	}

	// A rejected move leaves the session untouched.
	if s.Moves != 0 || s.CurrentTurn != Slot1 {
		t.Fatal("rejected moves must not mutate session state")
	}

	waiting := NewSession("game-2", p1, 6, 7, time.Now().UTC())
	if _, err := waiting.ApplyMove(p1.ID, 0, time.Now().UTC()); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("waiting session move err = %v", err)
	}
}

func TestApplyMoveColumnFullLeavesTurnUnchanged(t *testing.T) {
	s, p1, p2 := newActiveSession(t)

	movers := []*Participant{p1, p2}
	for n := 0; n < 6; n++ {
		if _, err := s.ApplyMove(movers[n%2].ID, 0, time.Now().UTC()); err != nil {
			t.Fatalf("fill move %d: %v", n, err)
		}
	}

	turn := s.CurrentTurn
	if _, err := s.ApplyMove(p1.ID, 0, time.Now().UTC()); !errors.Is(err, board.ErrColumnFull) {
		t.Fatalf("full column err = %v, want ErrColumnFull", err)
	}
	if s.CurrentTurn != turn || s.Moves != 6 {
		t.Fatal("failed move must not flip the turn marker")
	}
}

func TestHorizontalWinAtFourthMove(t *testing.T) {
	s, p1, p2 := newActiveSession(t)

	// Slot 1 drops at columns 0..3 along the bottom row; slot 2 plays
	// elsewhere in between.
	plan := []struct {
		p   *Participant
		col int
	}{
		{p1, 0}, {p2, 6}, {p1, 1}, {p2, 6}, {p1, 2}, {p2, 6},
	}
	for i, m := range plan {
		res, err := s.ApplyMove(m.p.ID, m.col, time.Now().UTC())
		if err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
		if res.Terminal() {
			t.Fatalf("move %d ended the game early", i)
		}
	}

	res, err := s.ApplyMove(p1.ID, 3, time.Now().UTC())
	if err != nil {
		t.Fatalf("winning move: %v", err)
	}
	if res.WinnerID != p1.ID {
		t.Fatalf("winner = %q, want %q", res.WinnerID, p1.ID)
	}
	if res.Position.Row != 5 || res.Position.Col != 3 {
		t.Fatalf("winning position = %+v, want row 5 col 3", res.Position)
	}
	if s.Status != StatusCompleted || s.WinnerID != p1.ID {
		t.Fatalf("session status=%v winner=%q after win", s.Status, s.WinnerID)
	}

	if _, err := s.ApplyMove(p2.ID, 0, time.Now().UTC()); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("move after completion err = %v", err)
	}
}

func TestForfeitAwardsOpponent(t *testing.T) {
	s, p1, p2 := newActiveSession(t)

	if err := s.Forfeit(p1.ID); err != nil {
		t.Fatalf("forfeit: %v", err)
	}
	if s.Status != StatusForfeited {
		t.Fatalf("status = %v, want forfeited", s.Status)
	}
	if s.WinnerID != p2.ID {
		t.Fatalf("winner = %q, want %q", s.WinnerID, p2.ID)
	}

	if err := s.Forfeit(p2.ID); !errors.Is(err, ErrSessionTerminal) {
		t.Fatalf("forfeit on terminal session err = %v", err)
	}
}

func TestResolveSlotAndOpponent(t *testing.T) {
	s, p1, p2 := newActiveSession(t)

	if slot, ok := s.ResolveSlot(p1.ID); !ok || slot != Slot1 {
		t.Fatalf("resolve p1 = %v %v", slot, ok)
	}
	if slot, ok := s.ResolveSlot(p2.ID); !ok || slot != Slot2 {
		t.Fatalf("resolve p2 = %v %v", slot, ok)
	}
	if _, ok := s.ResolveSlot("ghost"); ok {
		t.Fatal("resolve unknown id must fail")
	}
	if opp := s.Opponent(p1.ID); opp != p2 {
		t.Fatalf("opponent of p1 = %v, want p2", opp)
	}
	if opp := s.Opponent("ghost"); opp != nil {
		t.Fatal("opponent of unknown id must be nil")
	}
}

func TestSlotWire(t *testing.T) {
	if Slot1.String() != "player1" || Slot2.String() != "player2" {
		t.Fatal("slot wire strings changed")
	}
	if Slot1.Other() != Slot2 || Slot2.Other() != Slot1 {
		t.Fatal("slot Other is not an involution")
	}
	if Slot1.Piece() != board.Player1 || Slot2.Piece() != board.Player2 {
		t.Fatal("slot piece mapping changed")
	}
}
