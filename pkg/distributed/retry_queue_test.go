package distributed

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryQueue_EnqueueDequeue(t *testing.T) {
	client := setupRedisClient(t)
	queue := NewRetryQueue(client, "test", time.Second)
	ctx := context.Background()

	task := &Task{
		ID:         "task-1",
		Payload:    json.RawMessage(`{"match_id":"m1"}`),
		MaxRetries: 3,
	}
	require.NoError(t, queue.Enqueue(ctx, task, 0))

	size, err := queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	got, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "task-1", got.ID)
	assert.JSONEq(t, `{"match_id":"m1"}`, string(got.Payload))

	// The task is parked in processing, not gone.
	size, err = queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)

	_, err = queue.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueEmpty)

	require.NoError(t, queue.Complete(ctx, got.ID))
}

func TestRetryQueue_DelayedTaskNotReady(t *testing.T) {
	client := setupRedisClient(t)
	queue := NewRetryQueue(client, "test", time.Second)
	ctx := context.Background()

	task := &Task{ID: "task-1", Payload: json.RawMessage(`{}`)}
	require.NoError(t, queue.Enqueue(ctx, task, time.Hour))

	_, err := queue.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueEmpty, "a delayed task must stay invisible until ready")

	size, err := queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestRetryQueue_RetryBacksOff(t *testing.T) {
	client := setupRedisClient(t)
	queue := NewRetryQueue(client, "test", time.Hour)
	ctx := context.Background()

	task := &Task{ID: "task-1", Payload: json.RawMessage(`{}`), MaxRetries: 3}
	require.NoError(t, queue.Enqueue(ctx, task, 0))

	got, err := queue.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, queue.Retry(ctx, got))
	assert.Equal(t, 1, got.Retries)

	// Re-enqueued with a delay, so not yet ready.
	_, err = queue.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueEmpty)

	size, err := queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestRetryQueue_ExhaustedTaskLandsInDLQ(t *testing.T) {
	client := setupRedisClient(t)
	queue := NewRetryQueue(client, "test", time.Millisecond)
	ctx := context.Background()

	task := &Task{ID: "task-1", Payload: json.RawMessage(`{}`), Retries: 2, MaxRetries: 3}
	require.NoError(t, queue.Enqueue(ctx, task, 0))

	got, err := queue.Dequeue(ctx)
	require.NoError(t, err)

	require.NoError(t, queue.Retry(ctx, got))

	size, err := queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)

	dlqSize, err := queue.DLQSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dlqSize)
}

func TestRetryQueue_RecoverStale(t *testing.T) {
	client := setupRedisClient(t)
	queue := NewRetryQueue(client, "test", time.Millisecond)
	ctx := context.Background()

	task := &Task{ID: "task-1", Payload: json.RawMessage(`{}`), MaxRetries: 5}
	require.NoError(t, queue.Enqueue(ctx, task, 0))

	_, err := queue.Dequeue(ctx)
	require.NoError(t, err)

	// Fresh processing entries are left alone.
	recovered, err := queue.RecoverStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)

	// With a zero timeout everything in processing counts as stale.
	recovered, err = queue.RecoverStale(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	// The task is back in the queue with a retry counted.
	time.Sleep(10 * time.Millisecond)
	got, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "task-1", got.ID)
	assert.Equal(t, 1, got.Retries)
}
