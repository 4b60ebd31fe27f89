package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
)

const (
	localRetryMaxAttempts = 10
	localRetryMaxDelay    = 5 * time.Minute
)

// LocalRetry re-drives failed rating settlements from process memory when no
// redis queue is configured. Pending retries are lost on process exit; the
// settle operation stays replayable by match id, so nothing is decided twice.
type LocalRetry struct {
	settler Settler
	logger  *zap.Logger
	delay   time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewLocalRetry(settler Settler, delay time.Duration, logger *zap.Logger) *LocalRetry {
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &LocalRetry{
		settler:  settler,
		logger:   logger,
		delay:    delay,
		stopChan: make(chan struct{}),
	}
}

// EnqueueSettlement parks a failed rating run and replays it in a goroutine
// with exponential backoff until it sticks or attempts run out.
func (r *LocalRetry) EnqueueSettlement(_ context.Context, matchID string, homeOutcome models.Outcome) error {
	r.wg.Add(1)
	go r.redrive(matchID, homeOutcome)

	r.logger.Warn("Settlement parked for in-process retry", zap.String("matchId", matchID))
	return nil
}

func (r *LocalRetry) redrive(matchID string, homeOutcome models.Outcome) {
	defer r.wg.Done()

	delay := r.delay
	for attempt := 1; attempt <= localRetryMaxAttempts; attempt++ {
		select {
		case <-time.After(delay):
		case <-r.stopChan:
			return
		}

		if err := r.settler.SettleMatch(context.Background(), matchID, homeOutcome); err != nil {
			r.logger.Warn("Settlement retry failed",
				zap.String("matchId", matchID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			delay *= 2
			if delay > localRetryMaxDelay {
				delay = localRetryMaxDelay
			}
			continue
		}

		r.logger.Info("Settlement replayed successfully", zap.String("matchId", matchID))
		return
	}

	r.logger.Error("Giving up on settlement replay",
		zap.String("matchId", matchID),
		zap.Int("attempts", localRetryMaxAttempts))
}

// Stop cancels pending replays and waits for their goroutines.
func (r *LocalRetry) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
}
