package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/directorybolt/submission-pipeline/internal/config"
	"github.com/directorybolt/submission-pipeline/internal/httpapi"
	pgqueue "github.com/directorybolt/submission-pipeline/internal/queue/postgres"
	"github.com/directorybolt/submission-pipeline/internal/storage/postgres"
	"github.com/directorybolt/submission-pipeline/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
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

	tp, err := observability.InitTracerProvider(ctx, cfg.Observability.ServiceName, cfg.Observability.OTelEnabled)
	if err != nil {
		return fmt.Errorf("failed to init tracer provider: %w", err)
	}
	defer shutdownWithTimeout(tp.Shutdown)

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
	dlqQueue := &dlqAdapter{queue}

	server := httpapi.NewServer(dlqQueue, cfg.Queue.URL, cfg.Queue.DLQURL, cfg.Observability.ServiceName)
	router := httpapi.NewRouter(server, cfg.HTTP.APIKey)
	instrumented := otelhttp.NewHandler(router, "submission-pipeline-api")

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      instrumented,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	errResult := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "enqueue API listening", "port", cfg.HTTP.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errResult <- fmt.Errorf("failed to serve HTTP: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.InfoContext(ctx, "shutting down enqueue API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errResult:
		return err
	}
}

func shutdownWithTimeout(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to shut down observability provider", "error", err)
	}
}

// dlqAdapter narrows *pgqueue.Queue's concrete Message type to the
// httpapi package's own Queue interface shape.
type dlqAdapter struct {
	*pgqueue.Queue
}

func (a *dlqAdapter) PeekDeadLetter(ctx context.Context, dlqName string, limit int) ([]httpapi.DeadLetterMessage, error) {
	messages, err := a.Queue.PeekDeadLetter(ctx, dlqName, limit)
	if err != nil {
		return nil, err
	}
	out := make([]httpapi.DeadLetterMessage, len(messages))
	for i, m := range messages {
		out[i] = httpapi.DeadLetterMessage{ID: m.ID, Body: m.Body, ReceiveCount: m.ReceiveCount}
	}
	return out, nil
}
