package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	pgstore "github.com/directorybolt/submission-pipeline/internal/storage/postgres"
)

// setupTestQueue opens a pool against DATABASE_URL, running the shared
// store's embedded migrations (which own the queue_messages and
// dead_letter_messages tables), and truncates them around the test. Skips
// if DATABASE_URL is unset.
func setupTestQueue(t *testing.T, queueName string) (*Queue, context.Context) {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping Postgres-backed test")
	}

	ctx := context.Background()
	store, err := pgstore.NewPostgresStore(ctx, dsn)
	require.NoError(t, err)

	pool := store.Pool()
	truncate := func() {
		_, _ = pool.Exec(ctx, "TRUNCATE TABLE queue_messages, dead_letter_messages CASCADE")
	}
	truncate()
	t.Cleanup(func() {
		truncate()
		store.Close()
	})

	return New(pool, queueName), ctx
}
