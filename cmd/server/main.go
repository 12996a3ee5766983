/*
main.go - Development backend entry point

PURPOSE:
  Serves the goal and KPI endpoints the pacing CLI talks to, backed by a
  SQLite file. Handles configuration, dependency injection, and graceful
  shutdown.

STARTUP SEQUENCE:
  1. Load configuration (pacing.yaml, .env, PACING_* variables)
  2. Build the zap logger
  3. Initialize SQLite store
  4. Seed the "demo" scenario into an empty database
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  config file path (default: search for pacing.yaml)
  -port    overrides server.port
  -db      overrides server.dbPath; ":memory:" for an in-memory database
  -seed    scenario to load when the member table is empty ("" disables)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection

EXAMPLES:
  ./server -db=":memory:"
  PACING_SERVER_JWTSECRET=dev ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/yield-pacing/api"
	"github.com/warp/yield-pacing/config"
	"github.com/warp/yield-pacing/logger"
	"github.com/warp/yield-pacing/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "config file path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	seed := flag.String("seed", "demo", "scenario loaded into an empty database")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Server.DBPath = *dbPath
	}

	log, err := logger.New(&cfg.Logging, &cfg.App)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log, *seed); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger, seed string) error {
	store, err := sqlite.New(cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	handler := api.NewHandler(store, log)
	if err := seedIfEmpty(context.Background(), handler, store, seed, log); err != nil {
		log.Warn("seed failed", zap.String("scenario", seed), zap.Error(err))
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(handler, &cfg.Server, log),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("db", cfg.Server.DBPath),
			zap.Bool("auth", cfg.Server.JWTSecret != ""),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func seedIfEmpty(ctx context.Context, h *api.Handler, store *sqlite.Store, scenario string, log *zap.Logger) error {
	if scenario == "" {
		return nil
	}
	members, err := store.ListMembers(ctx)
	if err != nil {
		return err
	}
	if len(members) > 0 {
		return nil
	}
	log.Info("empty database, loading scenario", zap.String("scenario", scenario))
	return h.ApplyScenario(ctx, scenario)
}
