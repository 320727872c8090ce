package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"

	"github.com/estatehub/backend/internal/config"
	"github.com/estatehub/backend/internal/jobs"
	"github.com/estatehub/backend/internal/ledger"
	"github.com/estatehub/backend/internal/services"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker := jobs.NewNotificationWorker(cfg.NotifyWebhookURL, logger)

	var (
		store       ledger.Store
		notifier    services.Notifier
		riverClient *river.Client[pgx.Tx]
	)
	switch cfg.Backend {
	case config.BackendMemory:
		slog.Warn("Using in-memory ledger; state is lost on restart")
		store = ledger.NewMemoryStore()
		notifier = jobs.NewLogNotifier(worker)
	default:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("Unable to create database pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			slog.Error("Cannot reach PostgreSQL", "error", err)
			os.Exit(1)
		}
		slog.Info("Connected to PostgreSQL database successfully!")

		repo := ledger.NewRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			slog.Error("Ledger migration failed", "error", err)
			os.Exit(1)
		}

		migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
		if err != nil {
			slog.Error("Failed to create River migrator", "error", err)
			os.Exit(1)
		}
		if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
			slog.Error("River migrate up failed", "error", err)
			os.Exit(1)
		}
		slog.Info("Ledger and River migrations applied")

		workers := river.NewWorkers()
		river.AddWorker(workers, worker)
		riverClient, err = river.NewClient(riverpgxv5.New(pool), &river.Config{
			Queues: map[string]river.QueueConfig{
				river.QueueDefault:      {MaxWorkers: 2},
				jobs.QueueNotifications: {MaxWorkers: 10},
			},
			Workers: workers,
			Logger:  logger,
		})
		if err != nil {
			slog.Error("Failed to create River client", "error", err)
			os.Exit(1)
		}
		store = repo
		notifier = jobs.NewRiverNotifier(jobs.InsertWith(riverClient))
	}

	eng, err := buildEngine(cfg, store, notifier, logger)
	if err != nil {
		slog.Error("Failed to build auction engine", "error", err)
		os.Exit(1)
	}

	if riverClient != nil {
		if err := riverClient.Start(ctx); err != nil {
			slog.Error("River client failed to start", "error", err)
			os.Exit(1)
		}
	}
	eng.scheduler.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           eng.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
		}
	case <-ctx.Done():
		slog.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	eng.scheduler.Stop()
	eng.bids.Stop()
	if riverClient != nil {
		if err := riverClient.Stop(shutdownCtx); err != nil {
			slog.Error("River client stop failed", "error", err)
		}
	}
}
