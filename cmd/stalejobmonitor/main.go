package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/directorybolt/submission-pipeline/internal/config"
	pgqueue "github.com/directorybolt/submission-pipeline/internal/queue/postgres"
	"github.com/directorybolt/submission-pipeline/internal/stalejob"
	"github.com/directorybolt/submission-pipeline/internal/storage/postgres"
	"github.com/directorybolt/submission-pipeline/pkg/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lp, logger, err := observability.InitLogger(ctx, cfg.Observability.ServiceName, cfg.Observability.OTelEnabled)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer shutdownWithTimeout(lp.Shutdown)
	slog.SetDefault(logger)

	store, err := postgres.NewStoreWithConfig(ctx, postgres.DBConfig{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	queue := pgqueue.New(store.Pool(), cfg.Queue.URL)

	workerID := fmt.Sprintf("stale-job-monitor-%d", os.Getpid())
	monitor := stalejob.New(store, queue, workerID)

	slog.InfoContext(ctx, "stale job monitor starting", "worker_id", workerID)
	if err := monitor.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stale job monitor stopped: %w", err)
	}
	slog.InfoContext(ctx, "stale job monitor stopped")
	return nil
}

func shutdownWithTimeout(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to shut down observability provider", "error", err)
	}
}
