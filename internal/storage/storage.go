// Package storage defines the persistence interfaces for players, game
// records, and telemetry events. Implementations live in subpackages.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Player is a persisted player identity keyed by username.
type Player struct {
	ID        string
	Username  string
	Wins      int
	Losses    int
	Draws     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatField names a player counter that can be incremented.
type StatField string

const (
	StatWins   StatField = "wins"
	StatLosses StatField = "losses"
	StatDraws  StatField = "draws"
)

// GameRecord is the persisted terminal state of a finished game.
type GameRecord struct {
	ID          string
	Player1ID   string
	Player1Name string
	Player2ID   string
	Player2Name string
	WinnerID    string
	IsDraw      bool
	IsVsBot     bool
	Moves       int
	Board       []byte
	StartedAt   time.Time
	EndedAt     time.Time
}

// TelemetryEvent is a single analytics data point. Payload is a JSON
// document; its shape varies by event name.
type TelemetryEvent struct {
	ID        int64
	Name      string
	GameID    string
	PlayerID  string
	Payload   []byte
	CreatedAt time.Time
}

// PlayerStore persists player identities and win/loss/draw counters.
type PlayerStore interface {
	// GetOrCreatePlayer returns the player with the given username,
	// creating it with the provided id when absent. The stored id wins
	// over the provided one for returning players.
	GetOrCreatePlayer(ctx context.Context, id, username string) (Player, error)

	// GetPlayer returns a player by id, or ErrNotFound.
	GetPlayer(ctx context.Context, id string) (Player, error)

	// IncrementStat adds one to the named counter for a player.
	IncrementStat(ctx context.Context, id string, field StatField) error

	// TopPlayers returns up to limit players ordered by wins descending.
	TopPlayers(ctx context.Context, limit int) ([]Player, error)
}

// GameStore persists finished games.
type GameStore interface {
	// SaveGame records a finished game. Saving the same id twice replaces
	// the earlier record.
	SaveGame(ctx context.Context, g GameRecord) error

	// GetGame returns a finished game by id, or ErrNotFound.
	GetGame(ctx context.Context, id string) (GameRecord, error)

	// CountGames returns totals for finished games: all, versus bot, and
	// drawn.
	CountGames(ctx context.Context) (total, vsBot, draws int, err error)
}

// TelemetryStore persists analytics events.
type TelemetryStore interface {
	// SaveEvent appends one analytics event.
	SaveEvent(ctx context.Context, e TelemetryEvent) error

	// RecentEvents returns up to limit events, newest first.
	RecentEvents(ctx context.Context, limit int) ([]TelemetryEvent, error)
}
