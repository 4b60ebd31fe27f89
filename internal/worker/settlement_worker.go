package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
	"github.com/grassehh/pso-matchmaker-sub000/pkg/distributed"
)

const (
	settlementMaxRetries  = 10
	settlementStaleAfter  = 2 * time.Minute
	staleRecoveryInterval = 10 // recover stale tasks every N ticks
)

// Settler applies ratings for a decided match. Safe to call repeatedly; an
// already-settled match is a no-op.
type Settler interface {
	SettleMatch(ctx context.Context, matchID string, homeOutcome models.Outcome) error
}

type settlementTask struct {
	MatchID     string         `json:"match_id"`
	HomeOutcome models.Outcome `json:"home_outcome"`
}

// SettlementWorker drains the rating settlement retry queue. Vote resolution
// decides a match exactly once; when applying ratings fails right after, the
// decision is parked here and replayed until it sticks.
type SettlementWorker struct {
	queue    *distributed.RetryQueue
	settler  Settler
	logger   *zap.Logger
	interval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewSettlementWorker(queue *distributed.RetryQueue, settler Settler, interval time.Duration, logger *zap.Logger) *SettlementWorker {
	return &SettlementWorker{
		queue:    queue,
		settler:  settler,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// EnqueueSettlement schedules a failed rating run for replay.
func (w *SettlementWorker) EnqueueSettlement(ctx context.Context, matchID string, homeOutcome models.Outcome) error {
	payload, err := json.Marshal(settlementTask{MatchID: matchID, HomeOutcome: homeOutcome})
	if err != nil {
		return fmt.Errorf("failed to marshal settlement task: %w", err)
	}

	task := &distributed.Task{
		ID:         matchID,
		Payload:    payload,
		MaxRetries: settlementMaxRetries,
	}
	if err := w.queue.Enqueue(ctx, task, 0); err != nil {
		return fmt.Errorf("failed to enqueue settlement: %w", err)
	}

	w.logger.Warn("Settlement parked for retry", zap.String("matchId", matchID))
	return nil
}

func (w *SettlementWorker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("Starting settlement worker", zap.Duration("interval", w.interval))

	w.wg.Add(1)
	go w.loop()
}

func (w *SettlementWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Settlement worker stopped")
}

func (w *SettlementWorker) loop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ticker.C:
			w.drain(context.Background())

			ticks++
			if ticks%staleRecoveryInterval == 0 {
				if recovered, err := w.queue.RecoverStale(context.Background(), settlementStaleAfter); err != nil {
					w.logger.Error("Stale settlement recovery failed", zap.Error(err))
				} else if recovered > 0 {
					w.logger.Info("Recovered stale settlements", zap.Int("count", recovered))
				}
			}
		case <-w.stopChan:
			return
		}
	}
}

// drain processes every ready task in the queue.
func (w *SettlementWorker) drain(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if errors.Is(err, distributed.ErrQueueEmpty) {
			return
		}
		if err != nil {
			w.logger.Error("Failed to dequeue settlement", zap.Error(err))
			return
		}

		var st settlementTask
		if err := json.Unmarshal(task.Payload, &st); err != nil {
			w.logger.Error("Dropping undecodable settlement task",
				zap.String("taskId", task.ID),
				zap.Error(err))
			if err := w.queue.MoveToDLQ(ctx, task, "undecodable payload"); err != nil {
				w.logger.Error("Failed to move task to DLQ", zap.Error(err))
			}
			continue
		}

		if err := w.settler.SettleMatch(ctx, st.MatchID, st.HomeOutcome); err != nil {
			w.logger.Warn("Settlement retry failed",
				zap.String("matchId", st.MatchID),
				zap.Int("retries", task.Retries),
				zap.Error(err))
			if err := w.queue.Retry(ctx, task); err != nil {
				w.logger.Error("Failed to requeue settlement", zap.Error(err))
			}
			continue
		}

		if err := w.queue.Complete(ctx, task.ID); err != nil {
			w.logger.Error("Failed to complete settlement task", zap.Error(err))
		}
		w.logger.Info("Settlement replayed successfully", zap.String("matchId", st.MatchID))
	}
}
