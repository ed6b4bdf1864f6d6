// Package server hosts the websocket game endpoint and the small REST
// read surface next to it.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/louisbranch/dropfour/internal/game/app"
	"github.com/louisbranch/dropfour/internal/game/service"
	"github.com/louisbranch/dropfour/internal/platform/timeouts"
	"github.com/louisbranch/dropfour/internal/storage"
)

// Config carries the server dependencies.
type Config struct {
	Addr      string
	App       *app.App
	Registry  *service.Registry
	Players   storage.PlayerStore
	Games     storage.GameStore
	Telemetry storage.TelemetryStore
}

// Server is the HTTP front of the game service.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	app        *app.App
	registry   *service.Registry
	players    storage.PlayerStore
	games      storage.GameStore
	telemetry  storage.TelemetryStore
}

// New creates a configured server listening on cfg.Addr.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("app is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}

	s := &Server{
		listener:  listener,
		app:       cfg.App,
		registry:  cfg.Registry,
		players:   cfg.Players,
		games:     cfg.Games,
		telemetry: cfg.Telemetry,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /api/players/{id}", s.handlePlayer)
	mux.HandleFunc("GET /api/games/{id}", s.handleGame)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	return s, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve blocks until the server stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log.Printf("server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		err := <-serveErr
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
