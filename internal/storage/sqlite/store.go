// Package sqlite provides a SQLite-backed storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/dropfour/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/dropfour/internal/storage"
	"github.com/louisbranch/dropfour/internal/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists players, games, and telemetry in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// GetOrCreatePlayer returns the player registered under username,
// inserting a new row with the provided id when the username is unseen.
func (s *Store) GetOrCreatePlayer(ctx context.Context, id, username string) (storage.Player, error) {
	if err := ctx.Err(); err != nil {
		return storage.Player{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Player{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	username = strings.TrimSpace(username)
	if id == "" {
		return storage.Player{}, fmt.Errorf("player id is required")
	}
	if username == "" {
		return storage.Player{}, fmt.Errorf("username is required")
	}

	now := time.Now().UTC()
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO players (id, username, wins, losses, draws, created_at, updated_at)
		 VALUES (?, ?, 0, 0, 0, ?, ?)`,
		id,
		username,
		toMillis(now),
		toMillis(now),
	)
	if err != nil && !isUniqueViolation(err) {
		return storage.Player{}, fmt.Errorf("create player: %w", err)
	}

	return s.getPlayerBy(ctx, "username", username)
}

// GetPlayer returns a player by id.
func (s *Store) GetPlayer(ctx context.Context, id string) (storage.Player, error) {
	if err := ctx.Err(); err != nil {
		return storage.Player{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Player{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.Player{}, fmt.Errorf("player id is required")
	}
	return s.getPlayerBy(ctx, "id", id)
}

func (s *Store) getPlayerBy(ctx context.Context, column, value string) (storage.Player, error) {
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, username, wins, losses, draws, created_at, updated_at
		   FROM players
		  WHERE `+column+` = ?`,
		value,
	)

	var player storage.Player
	var createdAt int64
	var updatedAt int64
	err := row.Scan(
		&player.ID,
		&player.Username,
		&player.Wins,
		&player.Losses,
		&player.Draws,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Player{}, storage.ErrNotFound
		}
		return storage.Player{}, fmt.Errorf("get player: %w", err)
	}
	player.CreatedAt = fromMillis(createdAt)
	player.UpdatedAt = fromMillis(updatedAt)
	return player, nil
}

// IncrementStat adds one to the named counter for a player.
func (s *Store) IncrementStat(ctx context.Context, id string, field storage.StatField) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("player id is required")
	}

	var column string
	switch field {
	case storage.StatWins:
		column = "wins"
	case storage.StatLosses:
		column = "losses"
	case storage.StatDraws:
		column = "draws"
	default:
		return fmt.Errorf("unknown stat field %q", field)
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE players SET `+column+` = `+column+` + 1, updated_at = ? WHERE id = ?`,
		toMillis(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// TopPlayers returns up to limit players ordered by wins descending.
// Ties break on username so the ordering is stable.
func (s *Store) TopPlayers(ctx context.Context, limit int) ([]storage.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, username, wins, losses, draws, created_at, updated_at
		   FROM players
		  ORDER BY wins DESC, username ASC
		  LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top players: %w", err)
	}
	defer rows.Close()

	players := make([]storage.Player, 0, limit)
	for rows.Next() {
		var player storage.Player
		var createdAt int64
		var updatedAt int64
		if err := rows.Scan(
			&player.ID,
			&player.Username,
			&player.Wins,
			&player.Losses,
			&player.Draws,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("top players: %w", err)
		}
		player.CreatedAt = fromMillis(createdAt)
		player.UpdatedAt = fromMillis(updatedAt)
		players = append(players, player)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top players: %w", err)
	}
	return players, nil
}

// SaveGame records a finished game, replacing any earlier record with
// the same id.
func (s *Store) SaveGame(ctx context.Context, g storage.GameRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(g.ID) == "" {
		return fmt.Errorf("game id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO games (
		   id, player1_id, player1_name, player2_id, player2_name,
		   winner_id, is_draw, is_vs_bot, moves, board, started_at, ended_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID,
		g.Player1ID,
		g.Player1Name,
		g.Player2ID,
		g.Player2Name,
		g.WinnerID,
		boolToInt(g.IsDraw),
		boolToInt(g.IsVsBot),
		g.Moves,
		string(g.Board),
		toMillis(g.StartedAt),
		toMillis(g.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("save game: %w", err)
	}
	return nil
}

// GetGame returns a finished game by id.
func (s *Store) GetGame(ctx context.Context, id string) (storage.GameRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.GameRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.GameRecord{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.GameRecord{}, fmt.Errorf("game id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, player1_id, player1_name, player2_id, player2_name,
		        winner_id, is_draw, is_vs_bot, moves, board, started_at, ended_at
		   FROM games
		  WHERE id = ?`,
		id,
	)

	var g storage.GameRecord
	var isDraw int
	var isVsBot int
	var board string
	var startedAt int64
	var endedAt int64
	err := row.Scan(
		&g.ID,
		&g.Player1ID,
		&g.Player1Name,
		&g.Player2ID,
		&g.Player2Name,
		&g.WinnerID,
		&isDraw,
		&isVsBot,
		&g.Moves,
		&board,
		&startedAt,
		&endedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.GameRecord{}, storage.ErrNotFound
		}
		return storage.GameRecord{}, fmt.Errorf("get game: %w", err)
	}
	g.IsDraw = isDraw != 0
	g.IsVsBot = isVsBot != 0
	g.Board = []byte(board)
	g.StartedAt = fromMillis(startedAt)
	g.EndedAt = fromMillis(endedAt)
	return g, nil
}

// CountGames returns totals for finished games.
func (s *Store) CountGames(ctx context.Context) (total, vsBot, draws int, err error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, 0, 0, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(is_vs_bot), 0),
		        COALESCE(SUM(is_draw), 0)
		   FROM games`,
	)
	if err := row.Scan(&total, &vsBot, &draws); err != nil {
		return 0, 0, 0, fmt.Errorf("count games: %w", err)
	}
	return total, vsBot, draws, nil
}

// SaveEvent appends one analytics event.
func (s *Store) SaveEvent(ctx context.Context, e storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("event name is required")
	}
	payload := string(e.Payload)
	if strings.TrimSpace(payload) == "" {
		payload = "{}"
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO telemetry_events (name, game_id, player_id, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.Name,
		e.GameID,
		e.PlayerID,
		payload,
		toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]storage.TelemetryEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, name, game_id, player_id, payload, created_at
		   FROM telemetry_events
		  ORDER BY created_at DESC, id DESC
		  LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	events := make([]storage.TelemetryEvent, 0, limit)
	for rows.Next() {
		var e storage.TelemetryEvent
		var payload string
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Name, &e.GameID, &e.PlayerID, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("recent events: %w", err)
		}
		e.Payload = []byte(payload)
		e.CreatedAt = fromMillis(createdAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	return events, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.PlayerStore = (*Store)(nil)
var _ storage.GameStore = (*Store)(nil)
var _ storage.TelemetryStore = (*Store)(nil)
