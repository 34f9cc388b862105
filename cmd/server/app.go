package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dorem/testassist-api/internal/config"
	"github.com/dorem/testassist-api/internal/platform/gemini"
	"github.com/dorem/testassist-api/internal/platform/postgres"
	"github.com/dorem/testassist-api/internal/service/auth"
	"github.com/dorem/testassist-api/internal/store"
	"github.com/dorem/testassist-api/internal/task"
)

// application holds the wired dependencies of the running server.
type application struct {
	config *config.Config
	logger *slog.Logger

	db               *sql.DB
	userStore        store.UserStore
	jwtService       auth.JWTService
	passwordVerifier auth.PasswordVerifier

	taskService *task.Service
	runner      *task.Runner
	janitor     *task.Janitor

	server *http.Server
}

// newApplication wires every component of the server: database, stores,
// authentication, the AI generator, and the background task subsystem.
// The context bounds startup work such as connecting to the database and
// creating the Gemini client.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(db, logger); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	userStore := postgres.NewPostgresUserStore(db, logger, 0)

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	generator, err := gemini.NewGeminiGenerator(ctx, logger, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini generator: %w", err)
	}

	// Task subsystem: registry, bounded queue, worker pool, janitor.
	registry := task.NewRegistry(logger)
	queue := task.NewQueue(cfg.Task.QueueSize, logger)
	kinds := task.NewKinds()
	if err := task.RegisterWorkFuncs(kinds, generator, logger); err != nil {
		return nil, fmt.Errorf("failed to register work functions: %w", err)
	}

	runner := task.NewRunner(registry, queue, kinds, task.RunnerConfig{
		WorkerCount: cfg.Task.WorkerCount,
		QueueSize:   cfg.Task.QueueSize,
	}, logger)

	janitor := task.NewJanitor(registry, task.JanitorConfig{
		RetentionWindow: cfg.Task.RetentionWindow,
		SweepInterval:   cfg.Task.SweepInterval,
	}, logger)

	app := &application{
		config:           cfg,
		logger:           logger,
		db:               db,
		userStore:        userStore,
		jwtService:       jwtService,
		passwordVerifier: auth.NewBcryptVerifier(),
		taskService:      task.NewService(registry, queue, runner, kinds, logger),
		runner:           runner,
		janitor:          janitor,
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return app, nil
}

// Start launches the background workers and the HTTP listener. The
// returned channel yields the listener error if serving fails.
func (app *application) Start() <-chan error {
	app.runner.Start()
	app.janitor.Start()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("http server listening", "addr", app.server.Addr)
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown stops the server gracefully: first the listener stops taking
// requests, then the task runner drains, then the database closes.
func (app *application) Shutdown(ctx context.Context) error {
	var firstErr error

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("http server shutdown failed", "error", err)
		firstErr = err
	}

	app.janitor.Stop()
	app.runner.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("database close failed", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// openDatabase establishes the database connection pool and verifies it.
func openDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established")
	return db, nil
}
