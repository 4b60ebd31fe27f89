package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrQueueEmpty = errors.New("queue is empty")

// Task is one retryable unit of work. Payload is opaque to the queue; the
// worker that owns the queue knows how to decode it.
type Task struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	Retries    int             `json:"retries"`
	MaxRetries int             `json:"max_retries"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// RetryQueue is a Redis-backed delayed retry queue. Tasks live in a sorted
// set scored by the time they become ready; failed tasks go back in with an
// exponentially growing delay until MaxRetries, then land in the DLQ.
type RetryQueue struct {
	client        *redis.Client
	queueKey      string
	processingKey string
	dlqKey        string
	baseDelay     time.Duration
}

func NewRetryQueue(client *redis.Client, queueName string, baseDelay time.Duration) *RetryQueue {
	if baseDelay <= 0 {
		baseDelay = 5 * time.Second
	}
	return &RetryQueue{
		client:        client,
		queueKey:      fmt.Sprintf("queue:%s", queueName),
		processingKey: fmt.Sprintf("queue:%s:processing", queueName),
		dlqKey:        fmt.Sprintf("queue:%s:dlq", queueName),
		baseDelay:     baseDelay,
	}
}

// Enqueue schedules a task. A zero delay makes it ready immediately.
func (q *RetryQueue) Enqueue(ctx context.Context, task *Task, delay time.Duration) error {
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	readyAt := float64(now.Add(delay).Unix())
	if err := q.client.ZAdd(ctx, q.queueKey, redis.Z{
		Score:  readyAt,
		Member: data,
	}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// Dequeue atomically pops the oldest ready task and parks it in the
// processing set until Complete or Retry.
func (q *RetryQueue) Dequeue(ctx context.Context) (*Task, error) {
	script := redis.NewScript(`
		local queue_key = KEYS[1]
		local processing_key = KEYS[2]
		local now = ARGV[1]

		local items = redis.call('ZRANGEBYSCORE', queue_key, '-inf', now, 'LIMIT', 0, 1)
		if #items == 0 then
			return nil
		end

		local task_data = items[1]
		local task_id = cjson.decode(task_data).id

		redis.call('ZREM', queue_key, task_data)
		redis.call('HSET', processing_key, task_id, task_data)

		return task_data
	`)

	result, err := script.Run(ctx, q.client, []string{q.queueKey, q.processingKey}, time.Now().Unix()).Result()
	if err == redis.Nil || result == nil {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	var task Task
	if err := json.Unmarshal([]byte(result.(string)), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// Complete drops a finished task from the processing set.
func (q *RetryQueue) Complete(ctx context.Context, taskID string) error {
	if err := q.client.HDel(ctx, q.processingKey, taskID).Err(); err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	return nil
}

// Retry puts a failed task back with exponential backoff, or moves it to the
// DLQ once MaxRetries is exhausted.
func (q *RetryQueue) Retry(ctx context.Context, task *Task) error {
	task.Retries++
	task.UpdatedAt = time.Now()

	if task.MaxRetries > 0 && task.Retries >= task.MaxRetries {
		return q.MoveToDLQ(ctx, task, "max retries exceeded")
	}

	if err := q.Complete(ctx, task.ID); err != nil {
		return err
	}

	delay := q.baseDelay << uint(task.Retries-1)
	if delay > 5*time.Minute {
		delay = 5 * time.Minute
	}
	return q.Enqueue(ctx, task, delay)
}

// MoveToDLQ parks a task that will never succeed where an operator can find
// it.
func (q *RetryQueue) MoveToDLQ(ctx context.Context, task *Task, reason string) error {
	dlqItem := map[string]interface{}{
		"task":     task,
		"reason":   reason,
		"moved_at": time.Now(),
	}

	data, err := json.Marshal(dlqItem)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ item: %w", err)
	}

	if err := q.client.LPush(ctx, q.dlqKey, data).Err(); err != nil {
		return fmt.Errorf("failed to move to DLQ: %w", err)
	}

	return q.Complete(ctx, task.ID)
}

// RecoverStale requeues tasks whose worker died mid-processing.
func (q *RetryQueue) RecoverStale(ctx context.Context, staleTimeout time.Duration) (int, error) {
	items, err := q.client.HGetAll(ctx, q.processingKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get processing tasks: %w", err)
	}

	recovered := 0
	cutoff := time.Now().Add(-staleTimeout)

	for _, value := range items {
		var task Task
		if err := json.Unmarshal([]byte(value), &task); err != nil {
			continue
		}
		if task.UpdatedAt.After(cutoff) {
			continue
		}
		if err := q.Retry(ctx, &task); err != nil {
			continue
		}
		recovered++
	}

	return recovered, nil
}

func (q *RetryQueue) Size(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.queueKey).Result()
}

func (q *RetryQueue) DLQSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.dlqKey).Result()
}
