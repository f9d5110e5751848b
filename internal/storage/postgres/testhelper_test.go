package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestStore opens a Store against DATABASE_URL, running embedded
// migrations, and truncates the pipeline tables before and after the test.
// Skips if DATABASE_URL is unset (set it to run these against a real
// Postgres instance).
func setupTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping Postgres-backed test")
	}

	ctx := context.Background()
	store, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)

	truncate := func() {
		_, _ = store.pool.Exec(ctx, "TRUNCATE TABLE worker_heartbeats, history_events, job_results, business_profiles, job_directories, jobs CASCADE")
	}
	truncate()
	t.Cleanup(func() {
		truncate()
		store.Close()
	})

	return store, ctx
}
