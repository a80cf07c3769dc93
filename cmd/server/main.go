/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the credit engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, .env, environment, flags)
  2. Open the SQLite or Postgres store
  3. Load pool documents from POOLS_FILE, if set
  4. Wire the credit manager, receivable workflow and HTTP handler
  5. Start the refresh scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port                 HTTP server port (default: 8080)
  -db-driver            sqlite or postgres (default: sqlite)
  -db                   SQLite path or Postgres DSN (default: credit.db)
                        Use ":memory:" for in-memory SQLite
  -credit-contract      Identity mixed into credit hashes
  -refresh-interval     Scheduler period (default: 1h)
  -refresh-concurrency  Credits refreshed in parallel (default: 8)
  -pools                JSON file of pools to load at startup
  -log-level            debug, info, warn or error

  JWT_SECRET has no flag. Set it in the environment or .env.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the refresh scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  JWT_SECRET=... ./server -db="./data/credit.db" -pools=pools.json

  # Run against Postgres
  JWT_SECRET=... ./server -db-driver=postgres -db="postgres://localhost/credit"

SEE ALSO:
  - config/config.go: Settings and their environment variables
  - api/server.go: Router configuration
  - api/scheduler.go: Refresh scheduler
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/credit-engine/api"
	"github.com/warp/credit-engine/config"
	"github.com/warp/credit-engine/credit"
	"github.com/warp/credit-engine/factory"
	"github.com/warp/credit-engine/receivable"
	"github.com/warp/credit-engine/store/postgres"
	"github.com/warp/credit-engine/store/sqlite"
)

// backend is what both database stores provide.
type backend interface {
	credit.TxStore
	credit.PoolStore
	receivable.Registry
	Close() error
}

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx := context.Background()

	// Initialize store
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	if cfg.PoolsFile != "" {
		if err := loadPools(ctx, store, cfg.PoolsFile, logger); err != nil {
			return err
		}
	}

	pause := &credit.PauseFlag{}
	manager := credit.NewManager(credit.ManagerDeps{
		Store:    store,
		Oracle:   credit.StoreFeeOracle{Pools: store},
		Treasury: credit.LogTreasury{Logger: logger},
		Pause:    pause,
		Logger:   logger,
		Contract: cfg.CreditContract,
	})
	workflow := receivable.NewWorkflow(manager, store, logger)

	handler := api.NewHandler(manager, workflow, store, pause, logger)
	auth := api.NewAuthenticator(cfg.JWTSecret, "credit-engine")
	router := api.NewRouter(handler, auth, []string{"http://localhost:5173", "http://localhost:8080"})

	scheduler := api.NewRefreshScheduler(manager, logger)
	scheduler.CheckInterval = cfg.RefreshInterval
	scheduler.Concurrency = cfg.RefreshConcurrency
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr(), "db_driver", cfg.DBDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (backend, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DatabaseURL)
	default:
		return sqlite.New(cfg.DatabaseURL)
	}
}

// loadPools saves every pool of the JSON array in path, replacing stored
// pools with the same id.
func loadPools(ctx context.Context, pools credit.PoolStore, path string, logger *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open pools file: %w", err)
	}
	defer f.Close()

	configs, err := factory.NewPoolFactory().LoadPools(f)
	if err != nil {
		return fmt.Errorf("failed to load pools from %s: %w", path, err)
	}
	for _, pool := range configs {
		if err := pools.SavePool(ctx, pool); err != nil {
			return fmt.Errorf("failed to save pool %s: %w", pool.PoolID, err)
		}
	}
	logger.Info("pools loaded", "count", len(configs), "file", path)
	return nil
}
