// Package config loads the submission pipeline's environment-variable
// configuration (spec §6) using the same reflection-based, struct-tag
// loader the rest of this codebase uses for everything else
// (internal/env).
package config

import (
	"fmt"
	"time"

	"github.com/directorybolt/submission-pipeline/internal/env"
)

// QueueConfig holds the Postgres-backed queue (C8) and DLQ settings. URL,
// DLQURL and WorkerConcurrency are passed on by cmd/*. VisibilityTimeout,
// BatchSize, WaitTime, MaxConsecutiveErr and DLQRetryThreshold are loaded
// and defaulted here but not passed to any component; the subscriber uses
// its own built-in values for them.
type QueueConfig struct {
	URL               string        `env:"QUEUE_URL"`
	DLQURL            string        `env:"DLQ_URL"`
	VisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_SEC"`
	BatchSize         int           `env:"QUEUE_BATCH"`
	WaitTime          time.Duration `env:"QUEUE_WAIT_SEC"`
	MaxConsecutiveErr int           `env:"QUEUE_MAX_ERRORS"`
	DLQRetryThreshold int           `env:"DLQ_RETRY_THRESHOLD"`
	WorkerConcurrency int           `env:"WORKER_CONCURRENCY"`
}

func (c *QueueConfig) applyDefaults() {
	if c.VisibilityTimeout == 0 {
		c.VisibilityTimeout = 600 * time.Second
	}
	if c.BatchSize == 0 {
		c.BatchSize = 5
	}
	if c.WaitTime == 0 {
		c.WaitTime = 20 * time.Second
	}
	if c.MaxConsecutiveErr == 0 {
		c.MaxConsecutiveErr = 10
	}
	if c.DLQRetryThreshold == 0 {
		c.DLQRetryThreshold = 3
	}
	if c.WorkerConcurrency == 0 {
		c.WorkerConcurrency = 5
	}
}

// DLQMonitorConfig holds C10's settings. Only AlertWebhookURL reaches the
// monitor; AlertThreshold and CheckInterval are loaded but not passed on,
// and dlqmonitor.New uses its built-in threshold and period.
type DLQMonitorConfig struct {
	AlertThreshold  int           `env:"DLQ_ALERT_THRESHOLD"`
	CheckInterval   time.Duration `env:"DLQ_CHECK_INTERVAL_SEC"`
	AlertWebhookURL string        `env:"ALERT_WEBHOOK_URL"`
}

func (c *DLQMonitorConfig) applyDefaults() {
	if c.AlertThreshold == 0 {
		c.AlertThreshold = 1
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = 300 * time.Second
	}
}

// StaleJobConfig holds C9's settings. They are loaded but not passed on;
// stalejob.New uses its built-in staleness threshold and period.
type StaleJobConfig struct {
	ThresholdMinutes int           `env:"STALE_THRESHOLD_MIN"`
	CheckInterval    time.Duration `env:"STALE_CHECK_INTERVAL_SEC"`
}

func (c *StaleJobConfig) applyDefaults() {
	if c.ThresholdMinutes == 0 {
		c.ThresholdMinutes = 10
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = 120 * time.Second
	}
}

// PlannerConfig configures C3.
type PlannerConfig struct {
	URL     string        `env:"PLANNER_URL"`
	Timeout time.Duration `env:"PLANNER_TIMEOUT_SEC"`
}

func (c *PlannerConfig) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// DatabaseConfig configures the Postgres connection pool shared by every
// process (C2, the Postgres-backed queue).
type DatabaseConfig struct {
	DSN             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME"`
}

// StorageConfig selects the artifact backend for C4's screenshots and
// response logs, matching the fs/gcs split the teacher's own storage
// config exposes.
type StorageConfig struct {
	Type      string `env:"ARTIFACT_STORAGE_TYPE"` // fs, gcs
	GCSBucket string `env:"ARTIFACT_GCS_BUCKET"`
	FSDir     string `env:"ARTIFACT_FS_DIR"`
}

func (c *StorageConfig) applyDefaults() {
	if c.Type == "" {
		c.Type = "fs"
	}
	if c.Type == "fs" && c.FSDir == "" {
		c.FSDir = "./submission-artifacts"
	}
}

// ObservabilityConfig gates the OpenTelemetry wiring (SPEC_FULL §10.2).
type ObservabilityConfig struct {
	OTelEnabled   bool   `env:"OTEL_ENABLED"`
	OTelCollector string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName   string `env:"OTEL_SERVICE_NAME"`
}

func (c *ObservabilityConfig) applyDefaults() {
	if c.OTelCollector == "" {
		c.OTelCollector = "localhost:4317"
	}
}

// HTTPConfig configures the enqueue API server (cmd/api).
type HTTPConfig struct {
	Port            string        `env:"HTTP_PORT"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT"`
	MaxBodyBytes    int64         `env:"HTTP_MAX_BODY_BYTES"`
	APIKey          string        `env:"API_BEARER_KEY"`
}

func (c *HTTPConfig) applyDefaults() {
	if c.Port == "" {
		c.Port = "8081"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 1 << 20
	}
}

// Config composes every env-var group enumerated in spec §6, plus the
// ambient ones SPEC_FULL §10.1 adds (database, storage, observability,
// HTTP server knobs).
type Config struct {
	Database      DatabaseConfig
	Queue         QueueConfig
	DLQMonitor    DLQMonitorConfig
	StaleJob      StaleJobConfig
	Planner       PlannerConfig
	Storage       StorageConfig
	Observability ObservabilityConfig
	HTTP          HTTPConfig
}

// Load parses environment variables into a Config and applies defaults to
// any field the environment left unset, per internal/env's contract that
// "defaults are the consuming code's job".
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Queue.applyDefaults()
	cfg.DLQMonitor.applyDefaults()
	cfg.StaleJob.applyDefaults()
	cfg.Planner.applyDefaults()
	cfg.Storage.applyDefaults()
	cfg.Observability.applyDefaults()
	cfg.HTTP.applyDefaults()

	return cfg, nil
}
