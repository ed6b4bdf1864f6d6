// Package event defines the outbound event types and payloads the game
// core emits to participants. Payload field names are contractual; the
// client depends on them.
package event

import (
	"github.com/louisbranch/dropfour/internal/game/board"
	"github.com/louisbranch/dropfour/internal/game/domain"
)

// Outbound event types.
const (
	Connected            = "connected"
	WaitingForOpponent   = "waiting_for_opponent"
	GameFound            = "game_found"
	MoveMade             = "move_made"
	GameOver             = "game_over"
	OpponentDisconnected = "opponent_disconnected"
	GameRejoined         = "game_rejoined"
	Error                = "error"
)

// ConnectedPayload greets a freshly established connection.
type ConnectedPayload struct {
	Message      string `json:"message"`
	ConnectionID string `json:"connectionId"`
	Timestamp    string `json:"timestamp"`
}

// GameFoundPayload announces a match to one participant.
type GameFoundPayload struct {
	GameID       string      `json:"gameId"`
	PlayerID     string      `json:"playerId"`
	Opponent     string      `json:"opponent"`
	IsVsBot      bool        `json:"isVsBot"`
	CurrentTurn  domain.Slot `json:"currentTurn"`
	PlayerNumber int         `json:"playerNumber"`
}

// MoveMadePayload broadcasts one accepted move to both participants.
type MoveMadePayload struct {
	Position board.Position `json:"position"`
	Player   domain.Slot    `json:"player"`
	NextTurn domain.Slot    `json:"nextTurn"`
	Board    [][]board.Cell `json:"board"`
}

// GameOverPayload announces the terminal outcome.
type GameOverPayload struct {
	Winner string         `json:"winner"`
	IsDraw bool           `json:"isDraw"`
	Board  [][]board.Cell `json:"board"`
}

// GameRejoinedPayload restores a reconnecting participant's view.
type GameRejoinedPayload struct {
	GameID       string         `json:"gameId"`
	Board        [][]board.Cell `json:"board"`
	CurrentTurn  domain.Slot    `json:"currentTurn"`
	PlayerNumber int            `json:"playerNumber"`
	Opponent     string         `json:"opponent"`
}

// ErrorPayload reports a rejected request to its originator.
type ErrorPayload struct {
	Message string `json:"message"`
}
