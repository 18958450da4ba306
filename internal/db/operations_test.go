package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := Open(Config{Path: filepath.Join(t.TempDir(), "queue.db")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestStore returns a store whose clock advances one second per call so
// created_at ordering is deterministic.
func newTestStore(t *testing.T) *JobStore {
	t.Helper()
	store := NewJobStore(openTestDB(t))
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return store
}

func TestOpenAppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	conn, err := Open(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	conn, err = Open(Config{Path: path})
	require.NoError(t, err)
	defer conn.Close()

	var count int
	require.NoError(t, conn.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestEnqueueStartsPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Enqueue(ctx, `[{"type":"text","content":"hi"}]`, `{"type":"epson"}`)
	require.NoError(t, err)
	assert.Positive(t, id)

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, 0, job.RetryCount)
	assert.Nil(t, job.PrintedAt)
	assert.Empty(t, job.ErrorMessage)
	assert.False(t, job.CreatedAt.IsZero())
}

func TestGetJobNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetJob(context.Background(), 999)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestFetchPendingBatchIsBoundedAndOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 7; i++ {
		id, err := store.Enqueue(ctx, "[]", "{}")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, store.MarkPrinted(ctx, ids[0]))

	batch, err := store.FetchPendingBatch(ctx, 5)
	require.NoError(t, err)
	require.Len(t, batch, 5)
	for i, job := range batch {
		assert.Equal(t, ids[i+1], job.ID)
		assert.Equal(t, JobStatusPending, job.Status)
	}

	none, err := store.FetchPendingBatch(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMarkTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	printed, _ := store.Enqueue(ctx, "[]", "{}")
	retried, _ := store.Enqueue(ctx, "[]", "{}")
	failed, _ := store.Enqueue(ctx, "[]", "{}")
	errored, _ := store.Enqueue(ctx, "[]", "{}")

	require.NoError(t, store.MarkPrinted(ctx, printed))
	require.NoError(t, store.MarkRetry(ctx, retried, 2))
	require.NoError(t, store.MarkFailed(ctx, failed, 3, "printer offline"))
	require.NoError(t, store.MarkError(ctx, errored, "bad content"))

	job, err := store.GetJob(ctx, printed)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPrinted, job.Status)
	assert.NotNil(t, job.PrintedAt)

	job, err = store.GetJob(ctx, retried)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, 2, job.RetryCount)

	job, err = store.GetJob(ctx, failed)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, 3, job.RetryCount)
	assert.Equal(t, "printer offline", job.ErrorMessage)

	job, err = store.GetJob(ctx, errored)
	require.NoError(t, err)
	assert.Equal(t, JobStatusError, job.Status)
	assert.Equal(t, "bad content", job.ErrorMessage)
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, _ := store.Enqueue(ctx, "[]", "{}")
	require.NoError(t, store.MarkFailed(ctx, id, 3, "gave up"))

	assert.ErrorIs(t, store.MarkRetry(ctx, id, 1), ErrJobNotPending)
	assert.ErrorIs(t, store.MarkPrinted(ctx, id), ErrJobNotPending)
	assert.ErrorIs(t, store.MarkError(ctx, id, "late"), ErrJobNotPending)

	job, err := store.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "gave up", job.ErrorMessage)
}

func TestQueueStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, _ := store.Enqueue(ctx, "[]", "{}")
	b, _ := store.Enqueue(ctx, "[]", "{}")
	c, _ := store.Enqueue(ctx, "[]", "{}")
	_, _ = store.Enqueue(ctx, "[]", "{}")
	require.NoError(t, store.MarkPrinted(ctx, a))
	require.NoError(t, store.MarkFailed(ctx, b, 3, "x"))
	require.NoError(t, store.MarkError(ctx, c, "y"))

	stats, err := store.QueueStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &QueueStats{Total: 4, Pending: 1, Printed: 1, Failed: 1, Error: 1}, stats)
}

func TestListRecentNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := store.Enqueue(ctx, "[]", "{}")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	items, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, ids[2], items[0].ID)
	assert.Equal(t, ids[1], items[1].ID)

	all, err := store.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPurgeTerminalKeepsPendingAndError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	printed, _ := store.Enqueue(ctx, "[]", "{}")
	failed, _ := store.Enqueue(ctx, "[]", "{}")
	errored, _ := store.Enqueue(ctx, "[]", "{}")
	pending, _ := store.Enqueue(ctx, "[]", "{}")
	require.NoError(t, store.MarkPrinted(ctx, printed))
	require.NoError(t, store.MarkFailed(ctx, failed, 3, "x"))
	require.NoError(t, store.MarkError(ctx, errored, "y"))

	removed, err := store.PurgeTerminal(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = store.GetJob(ctx, printed)
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = store.GetJob(ctx, failed)
	assert.ErrorIs(t, err, ErrJobNotFound)

	job, err := store.GetJob(ctx, errored)
	require.NoError(t, err)
	assert.Equal(t, JobStatusError, job.Status)
	job, err = store.GetJob(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)

	removed, err = store.PurgeTerminal(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.True(t, JobStatusPrinted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusError.Terminal())
}
