package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PassEvent is broadcast over pub/sub whenever a queue mutation wants an
// early matchmaking pass instead of waiting for the next tick.
type PassEvent struct {
	Type       string    `json:"type"`
	InstanceID string    `json:"instance_id"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	passEventTriggered = "pass_triggered"

	passLockKey = "matchmaking:pass:lock"
	passLockTTL = 30 * time.Second
)

// PassCoordinator fans queue activity out to every running instance and
// serializes the actual pass behind a distributed lock, so a multi-instance
// deployment still runs exactly one pairing pass at a time.
type PassCoordinator struct {
	client      *redis.Client
	lockManager *RedisLockManager
	logger      *zap.Logger
	instanceID  string

	eventChannel string
	stopChan     chan struct{}
	cancelSub    context.CancelFunc
}

func NewPassCoordinator(client *redis.Client, logger *zap.Logger) *PassCoordinator {
	return &PassCoordinator{
		client:       client,
		lockManager:  NewRedisLockManager(client),
		logger:       logger,
		instanceID:   uuid.New().String(),
		eventChannel: "matchmaking:pass",
		stopChan:     make(chan struct{}),
	}
}

// Start subscribes to pass events and invokes handler for each one. Blocks
// until Stop is called or the context ends.
func (c *PassCoordinator) Start(ctx context.Context, handler func()) error {
	subCtx, cancel := context.WithCancel(ctx)
	c.cancelSub = cancel

	pubsub := c.client.Subscribe(subCtx, c.eventChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	c.logger.Info("Pass coordinator started",
		zap.String("instanceId", c.instanceID),
		zap.String("channel", c.eventChannel))

	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			if msg == nil {
				continue
			}

			var event PassEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				c.logger.Error("Failed to unmarshal pass event", zap.Error(err))
				continue
			}

			handler()

		case <-c.stopChan:
			c.logger.Info("Pass coordinator stopped")
			return nil

		case <-subCtx.Done():
			return subCtx.Err()
		}
	}
}

func (c *PassCoordinator) Stop() {
	close(c.stopChan)
	if c.cancelSub != nil {
		c.cancelSub()
	}
}

// TriggerPass publishes a pass request to every instance. Best effort; a
// lost event only delays pairing until the next scheduled tick.
func (c *PassCoordinator) TriggerPass(ctx context.Context) {
	event := PassEvent{
		Type:       passEventTriggered,
		InstanceID: c.instanceID,
		Timestamp:  time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("Failed to marshal pass event", zap.Error(err))
		return
	}

	if err := c.client.Publish(ctx, c.eventChannel, data).Err(); err != nil {
		c.logger.Warn("Failed to publish pass event", zap.Error(err))
	}
}

// TryAcquire takes the pass lock without retrying. Another instance holding
// it means a pass is already running; the caller just skips this one.
func (c *PassCoordinator) TryAcquire(ctx context.Context) (func(), bool) {
	lock, err := c.lockManager.AcquireLock(ctx, passLockKey, c.instanceID, passLockTTL)
	if err != nil {
		return nil, false
	}

	release := func() {
		if err := lock.Release(context.Background()); err != nil {
			c.logger.Error("Failed to release pass lock", zap.Error(err))
		}
	}
	return release, true
}
