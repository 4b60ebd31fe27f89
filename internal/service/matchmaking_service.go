package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
	"github.com/grassehh/pso-matchmaker-sub000/internal/repository"
)

// maxMatchmakingAttempts caps the attempts counter; at the top bucket the
// rating gap is unbounded, so counting further is pointless.
const maxMatchmakingAttempts = 30

// errSkipPass marks an entry that found a candidate but cannot pair with it
// this pass (shared players). No attempt is burned; the conflict is retried
// on the next pass.
var errSkipPass = errors.New("pairing skipped this pass")

// ratingGapThresholds maps the attempts counter to the widest acceptable
// team-rating gap, searched from the highest bucket down. The longer a party
// waits, the wider the accepted skill gap, until anyone is acceptable.
var ratingGapThresholds = []struct {
	minAttempts int
	maxGap      int // < 0 means unlimited
}{
	{30, -1},
	{27, 4450},
	{24, 2750},
	{21, 1050},
	{18, 650},
	{15, 400},
	{12, 250},
	{9, 150},
	{6, 100},
	{0, 40},
}

// MaxRatingGap returns the widest rating gap allowed for a party with the
// given number of failed matchmaking attempts.
func MaxRatingGap(attempts int) int {
	for _, threshold := range ratingGapThresholds {
		if attempts >= threshold.minAttempts {
			return threshold.maxGap
		}
	}
	return ratingGapThresholds[len(ratingGapThresholds)-1].maxGap
}

// PassLock serializes scheduler passes across instances. Nil disables the
// guard; the reservation primitive still prevents double-pairing.
type PassLock interface {
	TryAcquire(ctx context.Context) (release func(), ok bool)
}

// PassTrigger lets queue mutations nudge an early pass instead of waiting a
// full interval.
type PassTrigger interface {
	TriggerPass(ctx context.Context)
}

// MatchmakingService owns the queue and the periodic pairing pass.
type MatchmakingService struct {
	queueStore  repository.QueueStore
	rosterStore repository.RosterStore
	finalizer   *FinalizerService
	passLock    PassLock
	trigger     PassTrigger
	logger      *zap.Logger
	interval    time.Duration

	nudge    chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewMatchmakingService(
	queueStore repository.QueueStore,
	rosterStore repository.RosterStore,
	finalizer *FinalizerService,
	passLock PassLock,
	trigger PassTrigger,
	interval time.Duration,
	logger *zap.Logger,
) *MatchmakingService {
	return &MatchmakingService{
		queueStore:  queueStore,
		rosterStore: rosterStore,
		finalizer:   finalizer,
		passLock:    passLock,
		trigger:     trigger,
		logger:      logger,
		interval:    interval,
		nudge:       make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
	}
}

func (s *MatchmakingService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting matchmaking scheduler", zap.Duration("interval", s.interval))

	s.wg.Add(1)
	go s.loop()
}

func (s *MatchmakingService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	s.logger.Info("Matchmaking scheduler stopped")
}

// Nudge requests an early pass. Safe to call from any goroutine; collapses
// into at most one pending pass.
func (s *MatchmakingService) Nudge() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

func (s *MatchmakingService) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunPass(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunPass(context.Background())
		case <-s.nudge:
			s.RunPass(context.Background())
		case <-s.stopChan:
			return
		}
	}
}

// RunPass executes one full matchmaking pass. Entries are scanned from the
// most recently inserted to the oldest; newer entries get freed quickly and
// the stale head of the list is not re-scanned over and over.
func (s *MatchmakingService) RunPass(ctx context.Context) {
	if s.passLock != nil {
		release, ok := s.passLock.TryAcquire(ctx)
		if !ok {
			s.logger.Debug("Skipping pass, another instance holds the lock")
			return
		}
		defer release()
	}

	entries, err := s.queueStore.ListSearching(ctx)
	if err != nil {
		s.logger.Error("Failed to list queue entries", zap.Error(err))
		return
	}
	if len(entries) == 0 {
		return
	}

	paired := make(map[string]bool)
	matched := 0

	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if paired[entry.ID] {
			continue
		}

		candidate, err := s.findPartner(ctx, entry, paired)
		if errors.Is(err, errSkipPass) {
			continue
		}
		if err != nil {
			s.logger.Error("Candidate search failed",
				zap.String("owner", entry.OwnerID),
				zap.Error(err))
			continue
		}

		if candidate == nil {
			if entry.MatchmakingAttempts < maxMatchmakingAttempts {
				if err := s.queueStore.IncrementAttempts(ctx, entry.ID); err != nil {
					s.logger.Error("Failed to increment attempts",
						zap.String("owner", entry.OwnerID),
						zap.Error(err))
				}
			}
			continue
		}

		if _, err := s.finalizer.Finalize(ctx, entry, candidate, nil, nil); err != nil {
			// A duplicate-player conflict surfacing here means the rosters
			// changed under us; leave both entries for the next pass.
			s.logger.Warn("Failed to finalize scheduled pairing",
				zap.String("home", entry.OwnerID),
				zap.String("away", candidate.OwnerID),
				zap.Error(err))
			continue
		}

		paired[entry.ID] = true
		paired[candidate.ID] = true
		matched++
	}

	if matched > 0 {
		s.logger.Info("Matchmaking pass completed",
			zap.Int("pairs", matched),
			zap.Int("scanned", len(entries)))
	}
}

// findPartner returns the closest-rated compatible entry within the widened
// gap, or nil. A duplicate-player overlap with the best candidate skips the
// pairing for this pass without burning an attempt; the conflict usually
// resolves itself when one roster changes.
func (s *MatchmakingService) findPartner(ctx context.Context, entry *models.QueueEntry, paired map[string]bool) (*models.QueueEntry, error) {
	maxGap := MaxRatingGap(entry.MatchmakingAttempts)

	candidates, err := s.queueStore.FindCandidates(ctx, repository.CandidateFilter{
		Region:       entry.Region,
		Kind:         entry.Kind,
		Size:         entry.Size,
		Ranked:       entry.Ranked,
		ExcludeOwner: entry.OwnerID,
		Rating:       entry.TeamRating,
		MaxRatingGap: maxGap,
	})
	if err != nil {
		return nil, err
	}

	entryRoster, err := s.rosterStore.GetRoster(ctx, entry.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster for %s: %w", entry.OwnerID, err)
	}
	if entryRoster == nil {
		return nil, fmt.Errorf("roster for %s is gone", entry.OwnerID)
	}

	for _, candidate := range candidates {
		if paired[candidate.ID] {
			continue
		}
		candidateRoster, err := s.rosterStore.GetRoster(ctx, candidate.OwnerID)
		if err != nil {
			return nil, err
		}
		if candidateRoster == nil {
			continue
		}
		if entryRoster.SharesPlayerWith(candidateRoster) {
			s.logger.Debug("Skipping pairing with shared players",
				zap.String("entry", entry.OwnerID),
				zap.String("candidate", candidate.OwnerID))
			return nil, errSkipPass
		}
		return candidate, nil
	}
	return nil, nil
}

// EnterQueue creates or refreshes the party's queue entry from its live
// roster and nudges the scheduler.
func (s *MatchmakingService) EnterQueue(ctx context.Context, ownerID string, ranked, autoSearch bool) (*models.QueueEntry, error) {
	roster, err := s.rosterStore.GetRoster(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}
	if roster == nil {
		return nil, ErrRosterNotFound
	}

	// An entry held by a live challenge cannot be re-queued; the challenge
	// has to be resolved or cancelled first.
	existing, err := s.queueStore.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue entry: %w", err)
	}
	if existing != nil && existing.Reserved() {
		return nil, ErrAlreadyNegotiating
	}

	entry := &models.QueueEntry{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Kind:       roster.Kind,
		Region:     roster.Region,
		Size:       roster.Size,
		Ranked:     ranked,
		AutoSearch: autoSearch,
		TeamRating: roster.TeamRating,
	}
	if err := s.queueStore.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to enter queue: %w", err)
	}

	s.logger.Info("Party entered queue",
		zap.String("owner", ownerID),
		zap.String("kind", string(entry.Kind)),
		zap.Bool("ranked", ranked))

	if s.trigger != nil {
		s.trigger.TriggerPass(ctx)
	}
	s.Nudge()
	return entry, nil
}

// StartMixMatch finalizes a mix party against itself: the roster is split
// into two balanced sides and played as one internal match.
func (s *MatchmakingService) StartMixMatch(ctx context.Context, ownerID string) (*models.Match, error) {
	entry, err := s.queueStore.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue entry: %w", err)
	}
	if entry == nil {
		return nil, ErrNotQueued
	}
	if entry.Reserved() {
		return nil, ErrAlreadyNegotiating
	}
	return s.finalizer.FinalizeMix(ctx, entry, nil)
}

// LeaveQueue withdraws the party. A reserved entry belongs to an active
// challenge; that challenge has to be cancelled first.
func (s *MatchmakingService) LeaveQueue(ctx context.Context, ownerID string) error {
	entry, err := s.queueStore.FindByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to load queue entry: %w", err)
	}
	if entry == nil {
		return ErrNotQueued
	}
	if entry.Reserved() {
		return ErrAlreadyNegotiating
	}
	if err := s.queueStore.Remove(ctx, ownerID); err != nil {
		return fmt.Errorf("failed to leave queue: %w", err)
	}
	s.logger.Info("Party left queue", zap.String("owner", ownerID))
	return nil
}
