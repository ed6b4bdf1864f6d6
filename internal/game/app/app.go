// Package app orchestrates matchmaking, live sessions, and the bot
// opponent. It is the single entry point the transport layer calls;
// everything below it (registry, queue, guard, supervisor) stays
// internal to the game core.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	apperrors "github.com/louisbranch/dropfour/internal/errors"
	"github.com/louisbranch/dropfour/internal/game/board"
	"github.com/louisbranch/dropfour/internal/game/bot"
	"github.com/louisbranch/dropfour/internal/game/domain"
	"github.com/louisbranch/dropfour/internal/game/event"
	"github.com/louisbranch/dropfour/internal/game/service"
	"github.com/louisbranch/dropfour/internal/id"
	"github.com/louisbranch/dropfour/internal/matchmaking"
	"github.com/louisbranch/dropfour/internal/storage"
	"github.com/louisbranch/dropfour/internal/telemetry"
)

// Config carries the app dependencies.
type Config struct {
	Registry   *service.Registry
	Queue      *matchmaking.Queue
	Guard      *service.MoveGuard
	Supervisor *service.Supervisor
	Bot        *bot.Bot
	Players    storage.PlayerStore
	Analytics  *telemetry.Emitter
	NewID      func() (string, error)
	// BotMoveDelay paces bot replies after a human move.
	BotMoveDelay time.Duration
	// BotOpeningDelay defers the opening-turn check of a fresh bot game.
	BotOpeningDelay time.Duration
}

// App wires matchmaking and session flow together.
type App struct {
	registry   *service.Registry
	queue      *matchmaking.Queue
	guard      *service.MoveGuard
	supervisor *service.Supervisor
	bot        *bot.Bot
	players    storage.PlayerStore
	analytics  *telemetry.Emitter
	newID      func() (string, error)

	botMoveDelay    time.Duration
	botOpeningDelay time.Duration
}

// New creates an app. Registry, Queue, Guard, and Supervisor are
// required; the rest degrade gracefully when absent.
func New(cfg Config) (*App, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if cfg.Guard == nil {
		return nil, fmt.Errorf("move guard is required")
	}
	if cfg.Supervisor == nil {
		return nil, fmt.Errorf("supervisor is required")
	}
	if cfg.NewID == nil {
		cfg.NewID = id.NewID
	}
	if cfg.BotMoveDelay <= 0 {
		cfg.BotMoveDelay = 500 * time.Millisecond
	}
	if cfg.BotOpeningDelay <= 0 {
		cfg.BotOpeningDelay = time.Second
	}
	return &App{
		registry:        cfg.Registry,
		queue:           cfg.Queue,
		guard:           cfg.Guard,
		supervisor:      cfg.Supervisor,
		bot:             cfg.Bot,
		players:         cfg.Players,
		analytics:       cfg.Analytics,
		newID:           cfg.NewID,
		botMoveDelay:    cfg.BotMoveDelay,
		botOpeningDelay: cfg.BotOpeningDelay,
	}, nil
}

// FindMatch registers a player under username and either pairs them
// with a waiting opponent or parks them in the queue. The queue's bot
// timeout eventually starts a bot game for unmatched players.
func (a *App) FindMatch(ctx context.Context, conn domain.Connection, username string) error {
	name, err := domain.ValidateUsername(username)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUsernameInvalid, err.Error(), err)
	}

	playerID, err := a.newID()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "failed to find match", err)
	}
	if a.players != nil {
		record, err := a.players.GetOrCreatePlayer(ctx, playerID, name)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeUnknown, "failed to find match", err)
		}
		playerID = record.ID
		name = record.Username
	}

	player := domain.NewParticipant(playerID, name, conn)
	opponent, matched := a.queue.Enqueue(player, a.startBotGame)
	if !matched {
		log.Printf("waiting for opponent player=%s username=%s", player.ID, name)
		return player.Send(event.WaitingForOpponent, nil)
	}

	// The waiting participant takes slot 1, the newcomer slot 2.
	if _, err := a.startGame(ctx, opponent, player, false); err != nil {
		return err
	}
	return nil
}

// MakeMove applies a column drop for the participant on connKey.
func (a *App) MakeMove(ctx context.Context, connKey, gameID string, column int) error {
	if !id.Valid(gameID) {
		return apperrors.New(apperrors.CodeGameIDInvalid, "invalid game id")
	}

	snap, err := a.registry.Snapshot(gameID)
	if err != nil {
		return coded(err)
	}
	if err := domain.ValidateColumn(column, snap.Board.Cols()); err != nil {
		return apperrors.Wrap(apperrors.CodeColumnInvalid, err.Error(), err)
	}
	player := participantByConnKey(snap, connKey)
	if player == nil {
		return apperrors.New(apperrors.CodeUnknownParticipant, "player is not part of this game")
	}

	release, err := a.guard.TryAcquire(gameID)
	if err != nil {
		return coded(err)
	}
	defer release()

	result, after, err := a.registry.SubmitMove(gameID, player.ID, column)
	if err != nil {
		return coded(err)
	}

	a.broadcastMove(after, result)
	a.analytics.MoveMade(ctx, gameID, player.ID, column, after.Moves)

	if result.Terminal() {
		a.finishGame(ctx, after, result.WinnerID, result.IsDraw)
		return nil
	}

	if opponent := after.Opponent(player.ID); opponent != nil && opponent.IsBot {
		time.AfterFunc(a.botMoveDelay, func() {
			a.botMove(gameID)
		})
	}
	return nil
}

// RejoinGame reattaches a reconnecting participant to their live
// session and replays its current state to them.
func (a *App) RejoinGame(ctx context.Context, conn domain.Connection, gameID, playerID string) error {
	if !id.Valid(gameID) {
		return apperrors.New(apperrors.CodeGameIDInvalid, "invalid game id")
	}
	if playerID == "" {
		return apperrors.New(apperrors.CodePlayerIDInvalid, "invalid player id")
	}

	snap, err := a.registry.Rejoin(gameID, playerID, conn)
	if err != nil {
		return coded(err)
	}
	a.supervisor.Cancel(gameID, playerID)

	player := snap.Participant(playerID)
	opponentName := ""
	if opponent := snap.Opponent(playerID); opponent != nil {
		opponentName = opponent.Username
	}
	if err := player.Send(event.GameRejoined, event.GameRejoinedPayload{
		GameID:       snap.ID,
		Board:        snap.Board.Cells(),
		CurrentTurn:  snap.CurrentTurn,
		PlayerNumber: int(snap.Slot(playerID)),
		Opponent:     opponentName,
	}); err != nil {
		return err
	}

	a.analytics.PlayerReconnected(ctx, gameID, playerID)
	log.Printf("player rejoined game=%s player=%s", gameID, playerID)
	return nil
}

// ConnectionClosed handles a dropped transport connection: the
// participant leaves the queue, and if they were mid-game a grace timer
// starts that forfeits the session unless they rejoin first.
func (a *App) ConnectionClosed(ctx context.Context, connKey string) {
	if a.queue.Dequeue(connKey) {
		log.Printf("removed from queue conn=%s", connKey)
	}

	sessionID, participantID, ok := a.registry.FindByConnKey(connKey)
	if !ok {
		return
	}

	snap, err := a.registry.SetDisconnected(sessionID, participantID)
	if err != nil {
		return
	}
	if snap.Status.Terminal() {
		return
	}

	log.Printf("player disconnected game=%s player=%s", sessionID, participantID)
	a.analytics.PlayerDisconnected(ctx, sessionID, participantID)

	if opponent := snap.Opponent(participantID); opponent != nil && !opponent.IsBot {
		if err := opponent.Send(event.OpponentDisconnected, nil); err != nil {
			log.Printf("notify opponent failed game=%s err=%v", sessionID, err)
		}
	}

	a.supervisor.Start(sessionID, participantID, a.graceExpired)
}

// startGame opens a session with p1 in slot 1 and p2 in slot 2 and
// announces it to both human participants.
func (a *App) startGame(ctx context.Context, p1, p2 *domain.Participant, vsBot bool) (service.Snapshot, error) {
	created, err := a.registry.Create(p1)
	if err != nil {
		return service.Snapshot{}, apperrors.Wrap(apperrors.CodeUnknown, "failed to start game", err)
	}
	snap, err := a.registry.Join(created.ID, p2, vsBot)
	if err != nil {
		return service.Snapshot{}, coded(err)
	}

	log.Printf("game started game=%s player1=%s player2=%s vsBot=%v", snap.ID, p1.Username, p2.Username, vsBot)
	a.analytics.GameStarted(ctx, snap.ID, p1.ID, p2.ID, vsBot)

	for _, p := range []*domain.Participant{p1, p2} {
		opponentName := ""
		if opponent := snap.Opponent(p.ID); opponent != nil {
			opponentName = opponent.Username
		}
		if err := p.Send(event.GameFound, event.GameFoundPayload{
			GameID:       snap.ID,
			PlayerID:     p.ID,
			Opponent:     opponentName,
			IsVsBot:      vsBot,
			CurrentTurn:  snap.CurrentTurn,
			PlayerNumber: int(snap.Slot(p.ID)),
		}); err != nil {
			log.Printf("announce game failed game=%s player=%s err=%v", snap.ID, p.ID, err)
		}
	}
	return snap, nil
}

// startBotGame is the queue's bot timeout callback. It runs off any
// request context, so failures can only be reported to the waiting
// participant directly.
func (a *App) startBotGame(player *domain.Participant) {
	ctx := context.Background()

	botID, err := a.newID()
	if err != nil {
		log.Printf("bot game failed player=%s err=%v", player.ID, err)
		a.sendError(player, "failed to find match")
		return
	}

	snap, err := a.startGame(ctx, player, domain.NewBot(botID), true)
	if err != nil {
		log.Printf("bot game failed player=%s err=%v", player.ID, err)
		a.sendError(player, apperrors.UserMessage(err))
		return
	}

	// The human holds slot 1 and moves first today; the delayed check
	// keeps bot games alive if the opening turn ever changes.
	time.AfterFunc(a.botOpeningDelay, func() {
		a.botMove(snap.ID)
	})
}

// botMove makes one bot move if the session is active and it is the
// bot's turn. Losing the guard race is fine; the next human move
// reschedules the bot.
func (a *App) botMove(gameID string) {
	if a.bot == nil {
		return
	}
	ctx := context.Background()

	release, err := a.guard.TryAcquire(gameID)
	if err != nil {
		return
	}
	defer release()

	snap, err := a.registry.Snapshot(gameID)
	if err != nil {
		return
	}
	if snap.Status != domain.StatusActive {
		return
	}
	mover := snapParticipantBySlot(snap, snap.CurrentTurn)
	if mover == nil || !mover.IsBot {
		return
	}

	column, err := a.bot.ChooseColumn(snap.Board, snap.CurrentTurn.Piece())
	if err != nil {
		log.Printf("bot move failed game=%s err=%v", gameID, err)
		return
	}

	result, after, err := a.registry.SubmitMove(gameID, mover.ID, column)
	if err != nil {
		log.Printf("bot move rejected game=%s col=%d err=%v", gameID, column, err)
		return
	}

	a.broadcastMove(after, result)
	a.analytics.MoveMade(ctx, gameID, mover.ID, column, after.Moves)

	if result.Terminal() {
		a.finishGame(ctx, after, result.WinnerID, result.IsDraw)
	}
}

// graceExpired forfeits a session whose disconnected participant never
// came back. The marker check and the forfeit happen under one session
// lock so a rejoin that raced the timer always wins.
func (a *App) graceExpired(sessionID, participantID string) {
	ctx := context.Background()

	after, forfeited, err := a.registry.ForfeitIfDisconnected(sessionID, participantID)
	if err != nil || !forfeited {
		return
	}
	log.Printf("game forfeited game=%s player=%s", sessionID, participantID)
	a.finishGame(ctx, after, after.WinnerID, false)
}

// finishGame persists a terminal session, announces the outcome, and
// releases the session's auxiliary state.
func (a *App) finishGame(ctx context.Context, snap service.Snapshot, winnerID string, isDraw bool) {
	if err := a.registry.Finalize(ctx, snap.ID); err != nil {
		log.Printf("finalize failed game=%s err=%v", snap.ID, err)
	}
	a.supervisor.CancelSession(snap.ID)
	a.guard.Forget(snap.ID)

	payload := event.GameOverPayload{
		Winner: winnerID,
		IsDraw: isDraw,
		Board:  snap.Board.Cells(),
	}
	for _, p := range []*domain.Participant{snap.Player1, snap.Player2} {
		if p == nil {
			continue
		}
		if err := p.Send(event.GameOver, payload); err != nil {
			log.Printf("announce game over failed game=%s player=%s err=%v", snap.ID, p.ID, err)
		}
	}

	a.analytics.GameEnded(ctx, snap.ID, winnerID, isDraw, snap.Moves)
	log.Printf("game over game=%s winner=%s draw=%v moves=%d", snap.ID, winnerID, isDraw, snap.Moves)
}

// broadcastMove fans one accepted move out to both participants.
func (a *App) broadcastMove(snap service.Snapshot, result domain.MoveResult) {
	payload := event.MoveMadePayload{
		Position: result.Position,
		Player:   result.Slot,
		NextTurn: result.NextTurn,
		Board:    snap.Board.Cells(),
	}
	for _, p := range []*domain.Participant{snap.Player1, snap.Player2} {
		if p == nil {
			continue
		}
		if err := p.Send(event.MoveMade, payload); err != nil {
			log.Printf("broadcast move failed game=%s player=%s err=%v", snap.ID, p.ID, err)
		}
	}
}

func (a *App) sendError(p *domain.Participant, message string) {
	if err := p.Send(event.Error, event.ErrorPayload{Message: message}); err != nil {
		log.Printf("send error event failed player=%s err=%v", p.ID, err)
	}
}

func participantByConnKey(snap service.Snapshot, connKey string) *domain.Participant {
	if connKey == "" {
		return nil
	}
	if snap.Player1 != nil && !snap.Player1.IsBot && snap.Player1.ConnKey() == connKey {
		return snap.Player1
	}
	if snap.Player2 != nil && !snap.Player2.IsBot && snap.Player2.ConnKey() == connKey {
		return snap.Player2
	}
	return nil
}

func snapParticipantBySlot(snap service.Snapshot, slot domain.Slot) *domain.Participant {
	switch slot {
	case domain.Slot1:
		return snap.Player1
	case domain.Slot2:
		return snap.Player2
	default:
		return nil
	}
}

// coded maps core sentinel errors to transport-facing coded errors.
func coded(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, service.ErrSessionNotFound):
		return apperrors.Wrap(apperrors.CodeSessionNotFound, "game not found", err)
	case errors.Is(err, service.ErrMoveInProgress):
		return apperrors.Wrap(apperrors.CodeMoveInProgress, "a move is already being processed", err)
	case errors.Is(err, domain.ErrNotWaiting):
		return apperrors.Wrap(apperrors.CodeSessionNotWaiting, "game is not waiting for an opponent", err)
	case errors.Is(err, domain.ErrSessionNotActive):
		return apperrors.Wrap(apperrors.CodeSessionNotActive, "game is not active", err)
	case errors.Is(err, domain.ErrSessionTerminal):
		return apperrors.Wrap(apperrors.CodeSessionTerminal, "game already ended", err)
	case errors.Is(err, domain.ErrUnknownParticipant):
		return apperrors.Wrap(apperrors.CodeUnknownParticipant, "player is not part of this game", err)
	case errors.Is(err, domain.ErrNotYourTurn):
		return apperrors.Wrap(apperrors.CodeNotYourTurn, "not your turn", err)
	case errors.Is(err, board.ErrColumnFull):
		return apperrors.Wrap(apperrors.CodeColumnFull, "column is full", err)
	case errors.Is(err, board.ErrColumnOutOfRange), errors.Is(err, domain.ErrColumnInvalid):
		return apperrors.Wrap(apperrors.CodeColumnInvalid, "column is out of range", err)
	default:
		return apperrors.Wrap(apperrors.CodeUnknown, "an unexpected error occurred", err)
	}
}
