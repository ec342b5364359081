// Package server provides the main server initialization and run logic.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/runforge/runforge/internal/api"
	"github.com/runforge/runforge/internal/auth"
	"github.com/runforge/runforge/internal/config"
	"github.com/runforge/runforge/internal/db"
	"github.com/runforge/runforge/internal/engine"
	"github.com/runforge/runforge/internal/ledger"
	"github.com/runforge/runforge/internal/logger"
	"github.com/runforge/runforge/internal/orchestrator"
	"github.com/runforge/runforge/internal/queue"
	"github.com/runforge/runforge/internal/ratelimit"
	"github.com/runforge/runforge/internal/retry"
	"github.com/runforge/runforge/internal/worker"
	"gorm.io/gorm"
)

// Config holds the server configuration options.
type Config struct {
	Port    int    // Port to run the server on (0 = use config default)
	Mode    string // Run mode: server, worker, or both
	Version string // Version string to report
}

// Run starts the server with the given configuration and blocks until the context is canceled.
func Run(ctx context.Context, cfg Config) error {
	// Load configuration
	appCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Override port from CLI flag if provided
	if cfg.Port != 0 {
		appCfg.Server.Port = cfg.Port
	}

	// Initialize logger
	logger.Init(appCfg.Log.Format, appCfg.Log.Level)
	slog.Info("Starting Runforge server", "version", cfg.Version, "mode", appCfg.Server.Mode)

	// Initialize database
	database, err := db.New(appCfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("Database initialized", "driver", appCfg.Database.Driver)

	// Run migrations
	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database migrations completed")

	// Create default admin user if configured
	if err := db.CreateDefaultAdmin(database, appCfg.Auth); err != nil {
		return fmt.Errorf("failed to create default admin user: %w", err)
	}

	// Initialize run-job queue based on configuration
	runQueue, err := createQueue(appCfg, database)
	if err != nil {
		return fmt.Errorf("failed to initialize run queue: %w", err)
	}
	defer runQueue.Close()
	slog.Info("Run queue initialized", "type", appCfg.Queue.Type)

	// Initialize engine client and domain services
	engineClient := engine.NewClient(appCfg.Engine)
	ledgerSvc := ledger.New(database)
	limiter := ratelimit.New(database)
	discovery := retry.Config{
		Grace:       appCfg.Discovery.Grace(),
		Interval:    appCfg.Discovery.Interval(),
		MaxAttempts: appCfg.Discovery.MaxAttempts,
	}
	orch := orchestrator.New(database, engineClient, ledgerSvc, limiter, runQueue, discovery)

	authenticator := auth.New(database, appCfg.Auth.JWTSecret)

	// Initialize components based on run mode
	var srv *http.Server
	var workerCancel context.CancelFunc

	mode := cfg.Mode
	if mode == "" {
		mode = "both"
	}

	runServer := mode == "server" || mode == "both"
	runWorker := mode == "worker" || mode == "both"

	if !runServer && !runWorker {
		return fmt.Errorf("invalid mode %q: valid modes are server, worker, both", mode)
	}

	slog.Info("Starting Runforge", "mode", mode)

	// Initialize and start worker if needed
	if runWorker {
		w := worker.New(database, runQueue, orch, slog.Default())
		workerCtx, cancel := context.WithCancel(ctx)
		workerCancel = cancel

		go func() {
			if err := w.Start(workerCtx); err != nil && err != context.Canceled {
				slog.Error("Worker failed", "error", err)
			}
		}()
		slog.Info("Worker started")
	}

	// Initialize and start API server if needed
	if runServer {
		router := api.NewRouter(appCfg, database, authenticator, orch, ledgerSvc, limiter)

		addr := fmt.Sprintf(":%d", appCfg.Server.Port)
		srv = &http.Server{
			Addr:    addr,
			Handler: router,
		}

		go func() {
			slog.Info("Server listening", "address", addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Server failed", "error", err)
			}
		}()
	}

	// Wait for context cancellation
	<-ctx.Done()
	slog.Info("Shutting down...")

	// Stop worker if running
	if workerCancel != nil {
		workerCancel()
		slog.Info("Worker stopped")
	}

	// Shutdown server if running
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		slog.Info("Server stopped")
	}

	slog.Info("Runforge exited")
	return nil
}

// RunWithSignalHandling starts the server and handles OS signals for graceful shutdown.
func RunWithSignalHandling(cfg Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(ctx, cfg)
	}()

	select {
	case sig := <-quit:
		slog.Info("Received signal", "signal", sig)
		cancel()
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// createQueue creates a queue based on configuration.
func createQueue(cfg *config.Config, database *gorm.DB) (queue.Queue, error) {
	switch cfg.Queue.Type {
	case "memory":
		return queue.NewMemoryQueue(100), nil
	case "valkey":
		if cfg.Queue.ValkeyAddr == "" {
			return nil, fmt.Errorf("valkey address is required when queue type is valkey")
		}
		return queue.NewValkeyQueue(cfg.Queue.ValkeyAddr, database)
	default:
		return nil, fmt.Errorf("unsupported queue type: %s (supported: memory, valkey)", cfg.Queue.Type)
	}
}
