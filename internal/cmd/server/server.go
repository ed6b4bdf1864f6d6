// Package server parses the server command configuration and starts the
// game service runtime.
package server

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/louisbranch/dropfour/internal/game/app"
	"github.com/louisbranch/dropfour/internal/game/bot"
	"github.com/louisbranch/dropfour/internal/game/service"
	"github.com/louisbranch/dropfour/internal/matchmaking"
	"github.com/louisbranch/dropfour/internal/platform/config"
	"github.com/louisbranch/dropfour/internal/platform/otel"
	"github.com/louisbranch/dropfour/internal/platform/timeouts"
	httpserver "github.com/louisbranch/dropfour/internal/server"
	"github.com/louisbranch/dropfour/internal/storage/sqlite"
	"github.com/louisbranch/dropfour/internal/telemetry"
)

// Config holds server command configuration.
type Config struct {
	Addr               string        `env:"DROPFOUR_ADDR" envDefault:":8080"`
	DBPath             string        `env:"DROPFOUR_DB_PATH" envDefault:"data/dropfour.db"`
	BoardRows          int           `env:"DROPFOUR_BOARD_ROWS" envDefault:"6"`
	BoardCols          int           `env:"DROPFOUR_BOARD_COLS" envDefault:"7"`
	MatchmakingTimeout time.Duration `env:"DROPFOUR_MATCHMAKING_TIMEOUT" envDefault:"10s"`
	ReconnectGrace     time.Duration `env:"DROPFOUR_RECONNECT_GRACE" envDefault:"30s"`
	BotMoveDelay       time.Duration `env:"DROPFOUR_BOT_MOVE_DELAY" envDefault:"500ms"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The server listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Path to the SQLite database file")
	fs.DurationVar(&cfg.MatchmakingTimeout, "matchmaking-timeout", cfg.MatchmakingTimeout, "How long to wait for an opponent before starting a bot game")
	fs.DurationVar(&cfg.ReconnectGrace, "reconnect-grace", cfg.ReconnectGrace, "How long a disconnected player may rejoin before forfeiting")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the game server and blocks until the context ends.
func Run(ctx context.Context, cfg Config) error {
	shutdownTracing, err := otel.Setup(ctx, "dropfour")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.OTelShutdown)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("shutdown tracing err=%v", err)
		}
	}()

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close storage err=%v", err)
		}
	}()

	registry := service.NewRegistry(service.RegistryConfig{
		Rows:      cfg.BoardRows,
		Cols:      cfg.BoardCols,
		ReapDelay: timeouts.SessionReap,
		Players:   store,
		Games:     store,
	})

	opponent, err := bot.New()
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}

	gameApp, err := app.New(app.Config{
		Registry:     registry,
		Queue:        matchmaking.New(cfg.MatchmakingTimeout),
		Guard:        service.NewMoveGuard(),
		Supervisor:   service.NewSupervisor(cfg.ReconnectGrace),
		Bot:          opponent,
		Players:      store,
		Analytics:    telemetry.New(store),
		BotMoveDelay: cfg.BotMoveDelay,
	})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	srv, err := httpserver.New(httpserver.Config{
		Addr:      cfg.Addr,
		App:       gameApp,
		Registry:  registry,
		Players:   store,
		Games:     store,
		Telemetry: store,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	return srv.Serve(ctx)
}
