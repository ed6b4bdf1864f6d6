package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/dropfour/internal/errors"
	"github.com/louisbranch/dropfour/internal/game/bot"
	"github.com/louisbranch/dropfour/internal/game/event"
	"github.com/louisbranch/dropfour/internal/game/service"
	"github.com/louisbranch/dropfour/internal/matchmaking"
	"github.com/louisbranch/dropfour/internal/storage"
)

// recordedEvent is one outbound event captured by a recording conn.
type recordedEvent struct {
	name    string
	payload any
}

// recordingConn captures everything sent to one participant.
type recordingConn struct {
	key string

	mu     sync.Mutex
	events []recordedEvent
}

func (c *recordingConn) Key() string { return c.key }

func (c *recordingConn) Send(name string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, recordedEvent{name: name, payload: payload})
	return nil
}

func (c *recordingConn) snapshot() []recordedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]recordedEvent, len(c.events))
	copy(out, c.events)
	return out
}

func (c *recordingConn) last(t *testing.T, name string) recordedEvent {
	t.Helper()
	events := c.snapshot()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].name == name {
			return events[i]
		}
	}
	t.Fatalf("conn %s never received %q, got %v", c.key, name, eventNames(events))
	return recordedEvent{}
}

func (c *recordingConn) waitFor(t *testing.T, name string) recordedEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, e := range c.snapshot() {
			if e.name == name {
				return e
			}
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("conn %s never received %q, got %v", c.key, name, eventNames(c.snapshot()))
	return recordedEvent{}
}

func (c *recordingConn) has(name string) bool {
	for _, e := range c.snapshot() {
		if e.name == name {
			return true
		}
	}
	return false
}

func eventNames(events []recordedEvent) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.name
	}
	return names
}

type fakePlayerStore struct {
	mu      sync.Mutex
	players map[string]storage.Player
}

func (s *fakePlayerStore) GetOrCreatePlayer(ctx context.Context, id, username string) (storage.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.players == nil {
		s.players = make(map[string]storage.Player)
	}
	if p, ok := s.players[username]; ok {
		return p, nil
	}
	p := storage.Player{ID: id, Username: username}
	s.players[username] = p
	return p, nil
}

func (s *fakePlayerStore) GetPlayer(ctx context.Context, id string) (storage.Player, error) {
	return storage.Player{}, storage.ErrNotFound
}

func (s *fakePlayerStore) IncrementStat(ctx context.Context, id string, field storage.StatField) error {
	return nil
}

func (s *fakePlayerStore) TopPlayers(ctx context.Context, limit int) ([]storage.Player, error) {
	return nil, nil
}

type testConfig struct {
	botTimeout time.Duration
	grace      time.Duration
}

func newTestApp(t *testing.T, cfg testConfig) *App {
	t.Helper()

	seq := 0
	newID := func() (string, error) {
		seq++
		return fmt.Sprintf("00000000-0000-4000-8000-%012d", seq), nil
	}
	registry := service.NewRegistry(service.RegistryConfig{
		Rows:  6,
		Cols:  7,
		NewID: newID,
	})

	b, err := bot.New()
	if err != nil {
		t.Fatalf("bot.New() error = %v", err)
	}

	a, err := New(Config{
		Registry:        registry,
		Queue:           matchmaking.New(cfg.botTimeout),
		Guard:           service.NewMoveGuard(),
		Supervisor:      service.NewSupervisor(cfg.grace),
		Bot:             b,
		Players:         &fakePlayerStore{},
		NewID:           newID,
		BotMoveDelay:    time.Millisecond,
		BotOpeningDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func TestFindMatchRejectsBadUsername(t *testing.T) {
	a := newTestApp(t, testConfig{grace: time.Minute})
	conn := &recordingConn{key: "c1"}

	err := a.FindMatch(context.Background(), conn, "x")
	if !apperrors.IsCode(err, apperrors.CodeUsernameInvalid) {
		t.Fatalf("FindMatch() error code = %v, want USERNAME_INVALID", apperrors.GetCode(err))
	}
}

func TestFindMatchWaitsThenMatches(t *testing.T) {
	a := newTestApp(t, testConfig{grace: time.Minute})
	c1 := &recordingConn{key: "c1"}
	c2 := &recordingConn{key: "c2"}

	if err := a.FindMatch(context.Background(), c1, "alice"); err != nil {
		t.Fatalf("FindMatch(alice) error = %v", err)
	}
	c1.last(t, event.WaitingForOpponent)

	if err := a.FindMatch(context.Background(), c2, "bob"); err != nil {
		t.Fatalf("FindMatch(bob) error = %v", err)
	}

	found1 := c1.last(t, event.GameFound).payload.(event.GameFoundPayload)
	found2 := c2.last(t, event.GameFound).payload.(event.GameFoundPayload)

	if found1.GameID != found2.GameID {
		t.Errorf("game ids differ: %q vs %q", found1.GameID, found2.GameID)
	}
	if found1.PlayerNumber != 1 || found2.PlayerNumber != 2 {
		t.Errorf("player numbers = %d/%d, want 1/2", found1.PlayerNumber, found2.PlayerNumber)
	}
	if found1.Opponent != "bob" || found2.Opponent != "alice" {
		t.Errorf("opponents = %q/%q, want bob/alice", found1.Opponent, found2.Opponent)
	}
	if found1.IsVsBot || found2.IsVsBot {
		t.Error("IsVsBot = true for a PvP match")
	}
	if found1.CurrentTurn.String() != "player1" {
		t.Errorf("CurrentTurn = %q, want player1", found1.CurrentTurn)
	}
}

func TestBotTimeoutStartsBotGame(t *testing.T) {
	a := newTestApp(t, testConfig{botTimeout: 5 * time.Millisecond, grace: time.Minute})
	c1 := &recordingConn{key: "c1"}

	if err := a.FindMatch(context.Background(), c1, "alice"); err != nil {
		t.Fatalf("FindMatch() error = %v", err)
	}

	found := c1.waitFor(t, event.GameFound).payload.(event.GameFoundPayload)
	if !found.IsVsBot {
		t.Error("IsVsBot = false, want true")
	}
	if found.Opponent != "Bot" {
		t.Errorf("Opponent = %q, want Bot", found.Opponent)
	}
	if found.PlayerNumber != 1 {
		t.Errorf("PlayerNumber = %d, want 1 (human moves first)", found.PlayerNumber)
	}
}

func TestBotRepliesAfterHumanMove(t *testing.T) {
	a := newTestApp(t, testConfig{botTimeout: 5 * time.Millisecond, grace: time.Minute})
	c1 := &recordingConn{key: "c1"}

	if err := a.FindMatch(context.Background(), c1, "alice"); err != nil {
		t.Fatalf("FindMatch() error = %v", err)
	}
	found := c1.waitFor(t, event.GameFound).payload.(event.GameFoundPayload)

	if err := a.MakeMove(context.Background(), "c1", found.GameID, 0); err != nil {
		t.Fatalf("MakeMove() error = %v", err)
	}

	// The human's move and the bot's reply both broadcast move_made.
	deadline := time.Now().Add(2 * time.Second)
	for {
		count := 0
		for _, e := range c1.snapshot() {
			if e.name == event.MoveMade {
				count++
			}
		}
		if count >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("bot never replied, events = %v", eventNames(c1.snapshot()))
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestMakeMoveValidation(t *testing.T) {
	a := newTestApp(t, testConfig{grace: time.Minute})
	c1 := &recordingConn{key: "c1"}
	c2 := &recordingConn{key: "c2"}

	if err := a.FindMatch(context.Background(), c1, "alice"); err != nil {
		t.Fatalf("FindMatch(alice) error = %v", err)
	}
	if err := a.FindMatch(context.Background(), c2, "bob"); err != nil {
		t.Fatalf("FindMatch(bob) error = %v", err)
	}
	gameID := c1.last(t, event.GameFound).payload.(event.GameFoundPayload).GameID

	tests := []struct {
		name    string
		connKey string
		gameID  string
		column  int
		want    apperrors.Code
	}{
		{"malformed game id", "c1", "not-a-uuid", 0, apperrors.CodeGameIDInvalid},
		{"unknown game id", "c1", "11111111-2222-4333-8444-555555555555", 0, apperrors.CodeSessionNotFound},
		{"column too large", "c1", gameID, 7, apperrors.CodeColumnInvalid},
		{"negative column", "c1", gameID, -1, apperrors.CodeColumnInvalid},
		{"stranger connection", "c3", gameID, 0, apperrors.CodeUnknownParticipant},
		{"out of turn", "c2", gameID, 0, apperrors.CodeNotYourTurn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.MakeMove(context.Background(), tt.connKey, tt.gameID, tt.column)
			if !apperrors.IsCode(err, tt.want) {
				t.Errorf("MakeMove() error code = %v, want %v", apperrors.GetCode(err), tt.want)
			}
		})
	}
}

func TestMakeMoveBroadcasts(t *testing.T) {
	a := newTestApp(t, testConfig{grace: time.Minute})
	c1 := &recordingConn{key: "c1"}
	c2 := &recordingConn{key: "c2"}

	if err := a.FindMatch(context.Background(), c1, "alice"); err != nil {
		t.Fatalf("FindMatch(alice) error = %v", err)
	}
	if err := a.FindMatch(context.Background(), c2, "bob"); err != nil {
		t.Fatalf("FindMatch(bob) error = %v", err)
	}
	gameID := c1.last(t, event.GameFound).payload.(event.GameFoundPayload).GameID

	if err := a.MakeMove(context.Background(), "c1", gameID, 3); err != nil {
		t.Fatalf("MakeMove() error = %v", err)
	}

	for _, conn := range []*recordingConn{c1, c2} {
		payload := conn.last(t, event.MoveMade).payload.(event.MoveMadePayload)
		if payload.Position.Row != 5 || payload.Position.Col != 3 {
			t.Errorf("%s position = %+v, want row 5 col 3", conn.key, payload.Position)
		}
		if payload.Player.String() != "player1" {
			t.Errorf("%s player = %q, want player1", conn.key, payload.Player)
		}
		if payload.NextTurn.String() != "player2" {
			t.Errorf("%s nextTurn = %q, want player2", conn.key, payload.NextTurn)
		}
	}
}

func TestWinBroadcastsGameOver(t *testing.T) {
	a := newTestApp(t, testConfig{grace: time.Minute})
	c1 := &recordingConn{key: "c1"}
	c2 := &recordingConn{key: "c2"}

	if err := a.FindMatch(context.Background(), c1, "alice"); err != nil {
		t.Fatalf("FindMatch(alice) error = %v", err)
	}
	if err := a.FindMatch(context.Background(), c2, "bob"); err != nil {
		t.Fatalf("FindMatch(bob) error = %v", err)
	}
	found := c1.last(t, event.GameFound).payload.(event.GameFoundPayload)
	gameID := found.GameID

	moves := []struct {
		connKey string
		col     int
	}{
		{"c1", 0}, {"c2", 6}, {"c1", 1}, {"c2", 6}, {"c1", 2}, {"c2", 6}, {"c1", 3},
	}
	for _, m := range moves {
		if err := a.MakeMove(context.Background(), m.connKey, gameID, m.col); err != nil {
			t.Fatalf("MakeMove(%s, %d) error = %v", m.connKey, m.col, err)
		}
	}

	for _, conn := range []*recordingConn{c1, c2} {
		payload := conn.last(t, event.GameOver).payload.(event.GameOverPayload)
		if payload.Winner != found.PlayerID {
			t.Errorf("%s winner = %q, want %q", conn.key, payload.Winner, found.PlayerID)
		}
		if payload.IsDraw {
			t.Errorf("%s isDraw = true, want false", conn.key)
		}
	}

	// A terminal game rejects further moves while still in memory.
	err := a.MakeMove(context.Background(), "c2", gameID, 0)
	if apperrors.GetCode(err) != apperrors.CodeSessionNotActive && apperrors.GetCode(err) != apperrors.CodeSessionNotFound {
		t.Errorf("post-win MakeMove() error code = %v, want SESSION_NOT_ACTIVE or SESSION_NOT_FOUND", apperrors.GetCode(err))
	}
}

func TestDisconnectNotifiesOpponentAndForfeits(t *testing.T) {
	a := newTestApp(t, testConfig{grace: 10 * time.Millisecond})
	c1 := &recordingConn{key: "c1"}
	c2 := &recordingConn{key: "c2"}

	if err := a.FindMatch(context.Background(), c1, "alice"); err != nil {
		t.Fatalf("FindMatch(alice) error = %v", err)
	}
	if err := a.FindMatch(context.Background(), c2, "bob"); err != nil {
		t.Fatalf("FindMatch(bob) error = %v", err)
	}
	found2 := c2.last(t, event.GameFound).payload.(event.GameFoundPayload)

	a.ConnectionClosed(context.Background(), "c1")

	c2.waitFor(t, event.OpponentDisconnected)
	over := c2.waitFor(t, event.GameOver).payload.(event.GameOverPayload)
	if over.Winner != found2.PlayerID {
		t.Errorf("winner = %q, want remaining player %q", over.Winner, found2.PlayerID)
	}
}

func TestRejoinBeatsGraceTimer(t *testing.T) {
	a := newTestApp(t, testConfig{grace: 50 * time.Millisecond})
	c1 := &recordingConn{key: "c1"}
	c2 := &recordingConn{key: "c2"}

	if err := a.FindMatch(context.Background(), c1, "alice"); err != nil {
		t.Fatalf("FindMatch(alice) error = %v", err)
	}
	if err := a.FindMatch(context.Background(), c2, "bob"); err != nil {
		t.Fatalf("FindMatch(bob) error = %v", err)
	}
	found1 := c1.last(t, event.GameFound).payload.(event.GameFoundPayload)

	a.ConnectionClosed(context.Background(), "c1")
	c2.waitFor(t, event.OpponentDisconnected)

	fresh := &recordingConn{key: "c1-new"}
	if err := a.RejoinGame(context.Background(), fresh, found1.GameID, found1.PlayerID); err != nil {
		t.Fatalf("RejoinGame() error = %v", err)
	}

	rejoined := fresh.last(t, event.GameRejoined).payload.(event.GameRejoinedPayload)
	if rejoined.GameID != found1.GameID {
		t.Errorf("rejoined.GameID = %q, want %q", rejoined.GameID, found1.GameID)
	}
	if rejoined.PlayerNumber != 1 {
		t.Errorf("rejoined.PlayerNumber = %d, want 1", rejoined.PlayerNumber)
	}
	if rejoined.Opponent != "bob" {
		t.Errorf("rejoined.Opponent = %q, want bob", rejoined.Opponent)
	}

	// The grace timer must not forfeit after a successful rejoin.
	time.Sleep(100 * time.Millisecond)
	if c2.has(event.GameOver) {
		t.Fatal("game was forfeited despite rejoin")
	}

	// The fresh connection can move when it is their turn.
	if err := a.MakeMove(context.Background(), "c1-new", found1.GameID, 0); err != nil {
		t.Fatalf("MakeMove() after rejoin error = %v", err)
	}
}

func TestStaleGraceExpiryAfterRejoinDoesNotForfeit(t *testing.T) {
	a := newTestApp(t, testConfig{grace: time.Minute})
	c1 := &recordingConn{key: "c1"}
	c2 := &recordingConn{key: "c2"}

	if err := a.FindMatch(context.Background(), c1, "alice"); err != nil {
		t.Fatalf("FindMatch(alice) error = %v", err)
	}
	if err := a.FindMatch(context.Background(), c2, "bob"); err != nil {
		t.Fatalf("FindMatch(bob) error = %v", err)
	}
	found1 := c1.last(t, event.GameFound).payload.(event.GameFoundPayload)

	a.ConnectionClosed(context.Background(), "c1")
	c2.waitFor(t, event.OpponentDisconnected)

	fresh := &recordingConn{key: "c1-new"}
	if err := a.RejoinGame(context.Background(), fresh, found1.GameID, found1.PlayerID); err != nil {
		t.Fatalf("RejoinGame() error = %v", err)
	}

	// A grace callback whose timer fired before the cancel landed may
	// still run after the rejoin. It must observe the cleared marker
	// and leave the session alone.
	a.graceExpired(found1.GameID, found1.PlayerID)

	if fresh.has(event.GameOver) || c2.has(event.GameOver) {
		t.Fatal("game was forfeited by a stale grace expiry after rejoin")
	}
	if err := a.MakeMove(context.Background(), "c1-new", found1.GameID, 0); err != nil {
		t.Fatalf("MakeMove() after stale expiry error = %v", err)
	}
}

func TestRejoinValidation(t *testing.T) {
	a := newTestApp(t, testConfig{grace: time.Minute})
	conn := &recordingConn{key: "c9"}

	tests := []struct {
		name     string
		gameID   string
		playerID string
		want     apperrors.Code
	}{
		{"malformed game id", "nope", "p1", apperrors.CodeGameIDInvalid},
		{"empty player id", "11111111-2222-4333-8444-555555555555", "", apperrors.CodePlayerIDInvalid},
		{"unknown game", "11111111-2222-4333-8444-555555555555", "p1", apperrors.CodeSessionNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.RejoinGame(context.Background(), conn, tt.gameID, tt.playerID)
			if !apperrors.IsCode(err, tt.want) {
				t.Errorf("RejoinGame() error code = %v, want %v", apperrors.GetCode(err), tt.want)
			}
		})
	}
}

func TestConnectionClosedLeavesQueue(t *testing.T) {
	a := newTestApp(t, testConfig{grace: time.Minute})
	c1 := &recordingConn{key: "c1"}
	c2 := &recordingConn{key: "c2"}

	if err := a.FindMatch(context.Background(), c1, "alice"); err != nil {
		t.Fatalf("FindMatch(alice) error = %v", err)
	}
	a.ConnectionClosed(context.Background(), "c1")

	// Bob should wait rather than match against the departed player.
	if err := a.FindMatch(context.Background(), c2, "bob"); err != nil {
		t.Fatalf("FindMatch(bob) error = %v", err)
	}
	c2.last(t, event.WaitingForOpponent)
	if c2.has(event.GameFound) {
		t.Error("bob was matched against a disconnected player")
	}
}
