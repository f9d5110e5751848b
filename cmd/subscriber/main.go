package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/directorybolt/submission-pipeline/internal/advisors"
	"github.com/directorybolt/submission-pipeline/internal/artifacts"
	"github.com/directorybolt/submission-pipeline/internal/config"
	"github.com/directorybolt/submission-pipeline/internal/directorytask"
	"github.com/directorybolt/submission-pipeline/internal/domain"
	"github.com/directorybolt/submission-pipeline/internal/executor"
	"github.com/directorybolt/submission-pipeline/internal/jobflow"
	"github.com/directorybolt/submission-pipeline/internal/planner"
	pgqueue "github.com/directorybolt/submission-pipeline/internal/queue/postgres"
	"github.com/directorybolt/submission-pipeline/internal/storage/postgres"
	"github.com/directorybolt/submission-pipeline/internal/subscriber"
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

	mainQueue := pgqueue.New(store.Pool(), cfg.Queue.URL)

	artifactStore, err := newArtifactStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to init artifact store: %w", err)
	}

	planClient := planner.New(planner.Config{URL: cfg.Planner.URL, Timeout: cfg.Planner.Timeout})

	advisorSet := advisors.DefaultSet()

	workerID := fmt.Sprintf("subscriber-%d", os.Getpid())

	exec := executor.New(newDriver(), artifactStore, advisorSet.FormField)
	task := directorytask.New(store, planClient, exec, advisorSet, workerID)
	flow := jobflow.New(store, task, advisorSet, cfg.Queue.WorkerConcurrency, workerID)

	dispatcher := &flowDispatcher{flow: flow}
	sub := subscriber.New(&queueAdapter{mainQueue}, dispatcher, cfg.Queue.DLQURL)

	slog.InfoContext(ctx, "subscriber starting", "worker_id", workerID, "concurrency", cfg.Queue.WorkerConcurrency)
	if err := sub.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("subscriber stopped: %w", err)
	}
	slog.InfoContext(ctx, "subscriber stopped")
	return nil
}

func shutdownWithTimeout(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to shut down observability provider", "error", err)
	}
}

func newArtifactStore(ctx context.Context, cfg config.StorageConfig) (artifacts.Store, error) {
	switch cfg.Type {
	case "gcs":
		return artifacts.NewGCSStore(ctx, cfg.GCSBucket)
	default:
		return artifacts.NewFSStore(cfg.FSDir)
	}
}

// flowDispatcher runs each dispatched job's flow in its own goroutine
// against a context detached from the triggering receive-loop iteration,
// since a job's lifetime must outlive one subscriber poll (spec §9 Design
// Notes).
type flowDispatcher struct {
	flow *jobflow.Flow
}

func (d *flowDispatcher) Dispatch(_ context.Context, job *domain.Job) {
	go d.flow.ProcessJob(context.Background(), job)
}

// queueAdapter narrows *pgqueue.Queue's concrete Message type to the
// subscriber package's own Queue interface shape.
type queueAdapter struct {
	*pgqueue.Queue
}

func (a *queueAdapter) Receive(ctx context.Context, batchSize, visibilityTimeoutSeconds int) ([]subscriber.Message, error) {
	messages, err := a.Queue.Receive(ctx, batchSize, visibilityTimeoutSeconds)
	if err != nil {
		return nil, err
	}
	out := make([]subscriber.Message, len(messages))
	for i, m := range messages {
		out[i] = subscriber.Message{ID: m.ID, Body: []byte(m.Body), ReceiveCount: m.ReceiveCount}
	}
	return out, nil
}

// newDriver returns the executor.Driver production wiring supplies. No
// headless-browser automation library appears anywhere in this codebase's
// retrieved dependency lineage (see internal/executor/driver.go), so no
// concrete driver ships in this repository; operators deploying this
// service wire a real CDP-backed Driver in before running it. Until one is
// wired, every submission attempt fails fast with a clear error rather
// than silently no-opping.
func newDriver() executor.Driver {
	return unconfiguredDriver{}
}

type unconfiguredDriver struct{}

func (unconfiguredDriver) NewPage(ctx context.Context) (executor.Page, error) {
	return nil, fmt.Errorf("no browser driver configured: wire a concrete executor.Driver before running the subscriber")
}
