// Package main implements the entry point for the testing assistant API
// server, which manages projects' requirements and test documents and
// runs AI-backed generation work as background tasks.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dorem/testassist-api/internal/config"
	"github.com/dorem/testassist-api/internal/platform/logger"
)

// shutdownTimeout bounds how long graceful shutdown may take before the
// process exits anyway.
const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logHandler := logger.Setup(cfg.Server)
	slog.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"worker_count", cfg.Task.WorkerCount,
		"queue_size", cfg.Task.QueueSize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logHandler)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	errCh := app.Start()

	select {
	case err := <-errCh:
		slog.Error("server stopped unexpectedly", "error", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown finished with errors", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
