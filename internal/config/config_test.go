package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearPipelineEnv(t *testing.T) {
	t.Helper()
	vars := []string{
		"QUEUE_URL", "DLQ_URL", "QUEUE_VISIBILITY_SEC", "QUEUE_BATCH",
		"QUEUE_WAIT_SEC", "QUEUE_MAX_ERRORS", "DLQ_RETRY_THRESHOLD",
		"DLQ_ALERT_THRESHOLD", "DLQ_CHECK_INTERVAL_SEC", "ALERT_WEBHOOK_URL",
		"STALE_THRESHOLD_MIN", "STALE_CHECK_INTERVAL_SEC", "PLANNER_URL",
		"PLANNER_TIMEOUT_SEC", "ARTIFACT_STORAGE_TYPE", "ARTIFACT_GCS_BUCKET",
		"ARTIFACT_FS_DIR", "OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT",
		"HTTP_PORT",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}

func TestLoad_DefaultsAppliedWhenUnset(t *testing.T) {
	clearPipelineEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 600*time.Second, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, 5, cfg.Queue.BatchSize)
	assert.Equal(t, 20*time.Second, cfg.Queue.WaitTime)
	assert.Equal(t, 10, cfg.Queue.MaxConsecutiveErr)
	assert.Equal(t, 3, cfg.Queue.DLQRetryThreshold)
	assert.Equal(t, 1, cfg.DLQMonitor.AlertThreshold)
	assert.Equal(t, 300*time.Second, cfg.DLQMonitor.CheckInterval)
	assert.Equal(t, 10, cfg.StaleJob.ThresholdMinutes)
	assert.Equal(t, 120*time.Second, cfg.StaleJob.CheckInterval)
	assert.Equal(t, 30*time.Second, cfg.Planner.Timeout)
	assert.Equal(t, "fs", cfg.Storage.Type)
	assert.Equal(t, "8081", cfg.HTTP.Port)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	clearPipelineEnv(t)
	os.Setenv("QUEUE_BATCH", "20")
	os.Setenv("STALE_THRESHOLD_MIN", "5")
	os.Setenv("ARTIFACT_STORAGE_TYPE", "gcs")
	os.Setenv("ARTIFACT_GCS_BUCKET", "my-bucket")
	defer clearPipelineEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Queue.BatchSize)
	assert.Equal(t, 5, cfg.StaleJob.ThresholdMinutes)
	assert.Equal(t, "gcs", cfg.Storage.Type)
	assert.Equal(t, "my-bucket", cfg.Storage.GCSBucket)
}
