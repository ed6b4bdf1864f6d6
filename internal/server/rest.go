package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/louisbranch/dropfour/internal/errors"
	"github.com/louisbranch/dropfour/internal/id"
	"github.com/louisbranch/dropfour/internal/storage"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100

	defaultEventsLimit = 50
	maxEventsLimit     = 200
)

type leaderboardEntry struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Draws    int    `json:"draws"`
}

type leaderboardResponse struct {
	Players []leaderboardEntry `json:"players"`
}

type playerResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Wins     int    `json:"wins"`
	Losses   int    `json:"losses"`
	Draws    int    `json:"draws"`
}

type eventEntry struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	GameID    string          `json:"gameId,omitempty"`
	PlayerID  string          `json:"playerId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

type eventsResponse struct {
	Events []eventEntry `json:"events"`
}

type gameResponse struct {
	ID          string          `json:"id"`
	Player1ID   string          `json:"player1Id"`
	Player1Name string          `json:"player1Name"`
	Player2ID   string          `json:"player2Id"`
	Player2Name string          `json:"player2Name"`
	WinnerID    string          `json:"winnerId,omitempty"`
	IsDraw      bool            `json:"isDraw"`
	IsVsBot     bool            `json:"isVsBot"`
	Moves       int             `json:"moves"`
	Board       json.RawMessage `json:"board"`
	StartedAt   time.Time       `json:"startedAt"`
	EndedAt     time.Time       `json:"endedAt"`
}

type statsResponse struct {
	TotalGames  int `json:"totalGames"`
	VsBotGames  int `json:"vsBotGames"`
	Draws       int `json:"draws"`
	ActiveGames int `json:"activeGames"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.players == nil {
		writeError(w, apperrors.New(apperrors.CodeUnknown, "leaderboard is not available"))
		return
	}

	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	players, err := s.players.TopPlayers(r.Context(), limit)
	if err != nil {
		log.Printf("leaderboard failed err=%v", err)
		writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "failed to load leaderboard", err))
		return
	}

	resp := leaderboardResponse{Players: make([]leaderboardEntry, 0, len(players))}
	for _, p := range players {
		resp.Players = append(resp.Players, leaderboardEntry{
			ID:       p.ID,
			Username: p.Username,
			Wins:     p.Wins,
			Losses:   p.Losses,
			Draws:    p.Draws,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	if s.players == nil {
		writeError(w, apperrors.New(apperrors.CodeUnknown, "player lookup is not available"))
		return
	}

	playerID := r.PathValue("id")
	if !id.Valid(playerID) {
		writeError(w, apperrors.New(apperrors.CodePlayerIDInvalid, "invalid player id"))
		return
	}

	player, err := s.players.GetPlayer(r.Context(), playerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, apperrors.Wrap(apperrors.CodeNotFound, "player not found", err))
			return
		}
		log.Printf("get player failed player=%s err=%v", playerID, err)
		writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "failed to load player", err))
		return
	}

	writeJSON(w, http.StatusOK, playerResponse{
		ID:       player.ID,
		Username: player.Username,
		Wins:     player.Wins,
		Losses:   player.Losses,
		Draws:    player.Draws,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.telemetry == nil {
		writeError(w, apperrors.New(apperrors.CodeUnknown, "events are not available"))
		return
	}

	limit := defaultEventsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	if limit > maxEventsLimit {
		limit = maxEventsLimit
	}

	events, err := s.telemetry.RecentEvents(r.Context(), limit)
	if err != nil {
		log.Printf("recent events failed err=%v", err)
		writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "failed to load events", err))
		return
	}

	resp := eventsResponse{Events: make([]eventEntry, 0, len(events))}
	for _, e := range events {
		payload := json.RawMessage(e.Payload)
		if len(payload) == 0 {
			payload = json.RawMessage("{}")
		}
		resp.Events = append(resp.Events, eventEntry{
			ID:        e.ID,
			Name:      e.Name,
			GameID:    e.GameID,
			PlayerID:  e.PlayerID,
			Payload:   payload,
			CreatedAt: e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	if s.games == nil {
		writeError(w, apperrors.New(apperrors.CodeUnknown, "game lookup is not available"))
		return
	}

	gameID := r.PathValue("id")
	if !id.Valid(gameID) {
		writeError(w, apperrors.New(apperrors.CodeGameIDInvalid, "invalid game id"))
		return
	}

	record, err := s.games.GetGame(r.Context(), gameID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, apperrors.Wrap(apperrors.CodeNotFound, "game not found", err))
			return
		}
		log.Printf("get game failed game=%s err=%v", gameID, err)
		writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "failed to load game", err))
		return
	}

	board := json.RawMessage(record.Board)
	if len(board) == 0 {
		board = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, gameResponse{
		ID:          record.ID,
		Player1ID:   record.Player1ID,
		Player1Name: record.Player1Name,
		Player2ID:   record.Player2ID,
		Player2Name: record.Player2Name,
		WinnerID:    record.WinnerID,
		IsDraw:      record.IsDraw,
		IsVsBot:     record.IsVsBot,
		Moves:       record.Moves,
		Board:       board,
		StartedAt:   record.StartedAt,
		EndedAt:     record.EndedAt,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.games == nil {
		writeError(w, apperrors.New(apperrors.CodeUnknown, "stats are not available"))
		return
	}

	total, vsBot, draws, err := s.games.CountGames(r.Context())
	if err != nil {
		log.Printf("count games failed err=%v", err)
		writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "failed to load stats", err))
		return
	}

	active := 0
	if s.registry != nil {
		active = s.registry.ActiveCount()
	}
	writeJSON(w, http.StatusOK, statsResponse{
		TotalGames:  total,
		VsBotGames:  vsBot,
		Draws:       draws,
		ActiveGames: active,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response failed err=%v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	status := code.HTTPStatus()
	if code == apperrors.CodeUnknown {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Error: apperrors.UserMessage(err)})
}
