package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_EnqueueIsKeyedByReference(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Job{Kind: KindDispatch, ReferenceID: "REF1"}))
	assert.ErrorIs(t, q.Enqueue(ctx, &Job{Kind: KindDispatch, ReferenceID: "REF1"}), ErrJobExists)

	job, err := q.Get(ctx, KindDispatch, "REF1")
	require.NoError(t, err)
	assert.Equal(t, StateWaiting, job.State)
	assert.Equal(t, DefaultMaxAttempts, job.MaxAttempts)

	_, err = q.Get(ctx, KindDispatch, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryQueue_ClaimIsExclusive(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, &Job{Kind: KindDispatch, ReferenceID: "REF1"}))

	first, err := q.Claim(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, first.Attempts)

	second, err := q.Claim(ctx, "w2")
	require.NoError(t, err)
	assert.Nil(t, second)

	assert.ErrorIs(t, q.Complete(ctx, first.ID, "w2"), ErrLeaseLost)
	require.NoError(t, q.Complete(ctx, first.ID, "w1"))
}

func TestMemoryQueue_RetryHonoursRunAt(t *testing.T) {
	q := NewMemoryQueue()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Job{Kind: KindDispatch, ReferenceID: "REF1"}))
	job, err := q.Claim(ctx, "w1")
	require.NoError(t, err)
	require.NoError(t, q.Retry(ctx, job.ID, "w1", now.Add(10*time.Second), "timeout"))

	none, err := q.Claim(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, none)

	now = now.Add(10 * time.Second)
	again, err := q.Claim(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, 2, again.Attempts)
	assert.Equal(t, "timeout", again.LastError)
}

func TestMemoryQueue_RequeueStalled(t *testing.T) {
	q := NewMemoryQueue()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, &Job{Kind: KindDispatch, ReferenceID: "REF1"}))
	require.NoError(t, q.Enqueue(ctx, &Job{Kind: KindDispatch, ReferenceID: "REF2", MaxAttempts: 1}))
	for i := 0; i < 2; i++ {
		job, err := q.Claim(ctx, "crashed")
		require.NoError(t, err)
		require.NotNil(t, job)
	}

	now = now.Add(time.Minute)
	requeued, failed, err := q.RequeueStalled(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	require.Len(t, failed, 1)
	assert.Equal(t, "REF2", failed[0].ReferenceID)

	stalled, err := q.ListByState(ctx, StateStalled, 0)
	require.NoError(t, err)
	require.Len(t, stalled, 1)
	assert.Equal(t, "REF1", stalled[0].ReferenceID)

	// The original owner lost its lease
	assert.ErrorIs(t, q.Heartbeat(ctx, stalled[0].ID, "crashed"), ErrLeaseLost)

	redelivered, err := q.Claim(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, redelivered)
	assert.Equal(t, "REF1", redelivered.ReferenceID)
	assert.Equal(t, 2, redelivered.Attempts)
}
