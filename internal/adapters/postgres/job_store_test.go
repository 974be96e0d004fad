package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/payment-gateway/internal/adapters/postgres"
	"github.com/kevin07696/payment-gateway/internal/queue"
)

func TestJobStore_Lifecycle(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := postgres.NewJobStore(postgres.NewDBExecutor(pool))

	job := &queue.Job{Kind: queue.KindDispatch, ReferenceID: "REF-JOB-1", Payload: []byte(`{"reference_id":"REF-JOB-1"}`)}
	require.NoError(t, store.Enqueue(ctx, job))
	assert.Equal(t, queue.DefaultMaxAttempts, job.MaxAttempts)

	err := store.Enqueue(ctx, &queue.Job{Kind: queue.KindDispatch, ReferenceID: "REF-JOB-1"})
	assert.ErrorIs(t, err, queue.ErrJobExists)

	claimed, err := store.Claim(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, 1, claimed.Attempts)
	assert.Equal(t, queue.StateActive, claimed.State)

	none, err := store.Claim(ctx, "worker-b")
	require.NoError(t, err)
	assert.Nil(t, none)

	assert.ErrorIs(t, store.Complete(ctx, job.ID, "worker-b"), queue.ErrLeaseLost)
	require.NoError(t, store.Heartbeat(ctx, job.ID, "worker-a"))
	require.NoError(t, store.Retry(ctx, job.ID, "worker-a", time.Now().Add(-time.Second), "provider timeout"))

	claimed, err = store.Claim(ctx, "worker-b")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, 2, claimed.Attempts)
	assert.Equal(t, "provider timeout", claimed.LastError)

	require.NoError(t, store.Complete(ctx, job.ID, "worker-b"))

	got, err := store.Get(ctx, queue.KindDispatch, "REF-JOB-1")
	require.NoError(t, err)
	assert.Equal(t, queue.StateCompleted, got.State)
	assert.NotNil(t, got.FinishedAt)
}

func TestJobStore_RequeueStalled(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	store := postgres.NewJobStore(postgres.NewDBExecutor(pool))

	require.NoError(t, store.Enqueue(ctx, &queue.Job{Kind: queue.KindDispatch, ReferenceID: "REF-STALL-1"}))
	require.NoError(t, store.Enqueue(ctx, &queue.Job{Kind: queue.KindDispatch, ReferenceID: "REF-STALL-2", MaxAttempts: 1}))

	for i := 0; i < 2; i++ {
		claimed, err := store.Claim(ctx, "crashed-worker")
		require.NoError(t, err)
		require.NotNil(t, claimed)
	}

	_, err := pool.Exec(ctx, `UPDATE jobs SET heartbeat_at = NOW() - INTERVAL '5 minutes'`)
	require.NoError(t, err)

	requeued, failed, err := store.RequeueStalled(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	require.Len(t, failed, 1)
	assert.Equal(t, "REF-STALL-2", failed[0].ReferenceID)
	assert.Equal(t, queue.StateFailed, failed[0].State)

	failedJobs, err := store.ListByState(ctx, queue.StateFailed, 10)
	require.NoError(t, err)
	assert.Len(t, failedJobs, 1)

	redelivered, err := store.Claim(ctx, "worker-a")
	require.NoError(t, err)
	require.NotNil(t, redelivered)
	assert.Equal(t, "REF-STALL-1", redelivered.ReferenceID)
	assert.Equal(t, 2, redelivered.Attempts)
}
