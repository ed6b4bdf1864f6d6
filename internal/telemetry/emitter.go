// Package telemetry records analytics events for game activity.
//
// Emission is fire and forget: failures are logged and never propagate
// into the gameplay path, and a nil emitter is safe to call.
package telemetry

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/louisbranch/dropfour/internal/storage"
)

// Event names recorded by the emitter.
const (
	EventGameStarted        = "game_started"
	EventMoveMade           = "move_made"
	EventGameEnded          = "game_ended"
	EventPlayerDisconnected = "player_disconnected"
	EventPlayerReconnected  = "player_reconnected"
)

// Emitter writes analytics events to a telemetry store.
type Emitter struct {
	store storage.TelemetryStore
	now   func() time.Time
}

// New creates an emitter. A nil store produces an emitter that drops
// every event.
func New(store storage.TelemetryStore) *Emitter {
	return &Emitter{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// GameStarted records a new game with both participant ids.
func (e *Emitter) GameStarted(ctx context.Context, gameID, player1ID, player2ID string, vsBot bool) {
	e.emit(ctx, EventGameStarted, gameID, player1ID, map[string]any{
		"player1Id": player1ID,
		"player2Id": player2ID,
		"isVsBot":   vsBot,
	})
}

// MoveMade records one placed piece.
func (e *Emitter) MoveMade(ctx context.Context, gameID, playerID string, column, moveNumber int) {
	e.emit(ctx, EventMoveMade, gameID, playerID, map[string]any{
		"column":     column,
		"moveNumber": moveNumber,
	})
}

// GameEnded records a terminal game. winnerID is empty for draws and
// the winning participant otherwise.
func (e *Emitter) GameEnded(ctx context.Context, gameID, winnerID string, isDraw bool, moves int) {
	e.emit(ctx, EventGameEnded, gameID, winnerID, map[string]any{
		"winnerId": winnerID,
		"isDraw":   isDraw,
		"moves":    moves,
	})
}

// PlayerDisconnected records a dropped connection during a game.
func (e *Emitter) PlayerDisconnected(ctx context.Context, gameID, playerID string) {
	e.emit(ctx, EventPlayerDisconnected, gameID, playerID, nil)
}

// PlayerReconnected records a successful rejoin.
func (e *Emitter) PlayerReconnected(ctx context.Context, gameID, playerID string) {
	e.emit(ctx, EventPlayerReconnected, gameID, playerID, nil)
}

func (e *Emitter) emit(ctx context.Context, name, gameID, playerID string, payload map[string]any) {
	if e == nil || e.store == nil {
		return
	}

	data := []byte("{}")
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			log.Printf("telemetry marshal failed event=%s err=%v", name, err)
			return
		}
		data = encoded
	}

	event := storage.TelemetryEvent{
		Name:      name,
		GameID:    gameID,
		PlayerID:  playerID,
		Payload:   data,
		CreatedAt: e.now(),
	}
	if err := e.store.SaveEvent(ctx, event); err != nil {
		log.Printf("telemetry save failed event=%s err=%v", name, err)
	}
}
