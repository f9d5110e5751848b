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
	"github.com/directorybolt/submission-pipeline/internal/dlqmonitor"
	pgqueue "github.com/directorybolt/submission-pipeline/internal/queue/postgres"
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

	queue := pgqueue.New(store.Pool(), cfg.Queue.DLQURL)

	if cfg.DLQMonitor.AlertWebhookURL == "" {
		slog.WarnContext(ctx, "ALERT_WEBHOOK_URL not configured, alerts will be logged only")
	}

	monitor := dlqmonitor.New(&dlqQueueAdapter{queue}, cfg.Queue.DLQURL, cfg.DLQMonitor.AlertWebhookURL)

	slog.InfoContext(ctx, "dead letter queue monitor starting")
	if err := monitor.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("dead letter queue monitor stopped: %w", err)
	}
	slog.InfoContext(ctx, "dead letter queue monitor stopped")
	return nil
}

func shutdownWithTimeout(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to shut down observability provider", "error", err)
	}
}

// dlqQueueAdapter narrows *pgqueue.Queue's concrete Message type to the
// dlqmonitor package's own Queue interface shape.
type dlqQueueAdapter struct {
	*pgqueue.Queue
}

func (a *dlqQueueAdapter) PeekDeadLetter(ctx context.Context, dlqName string, limit int) ([]dlqmonitor.Message, error) {
	messages, err := a.Queue.PeekDeadLetter(ctx, dlqName, limit)
	if err != nil {
		return nil, err
	}
	out := make([]dlqmonitor.Message, len(messages))
	for i, m := range messages {
		out[i] = dlqmonitor.Message{ID: m.ID, Body: m.Body}
	}
	return out, nil
}
