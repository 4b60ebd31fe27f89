package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
	"github.com/grassehh/pso-matchmaker-sub000/internal/notify"
	"github.com/grassehh/pso-matchmaker-sub000/internal/repository"
)

// VoteResult tells the caller what the submitted vote led to.
type VoteResult string

const (
	VoteResultPending      VoteResult = "pending"       // waiting for the other side
	VoteResultSettled      VoteResult = "settled"       // outcomes agree, ratings applied
	VoteResultVoided       VoteResult = "voided"        // a side voted cancel
	VoteResultInconsistent VoteResult = "inconsistent"  // outcomes clash, both votes reset
)

// SettlementQueue re-drives rating updates that failed after a match was
// marked settled. Best effort; a nil queue means failures are only logged.
type SettlementQueue interface {
	EnqueueSettlement(ctx context.Context, matchID string, homeOutcome models.Outcome) error
}

// VotingService collects one outcome vote per side and, on agreement,
// triggers the rating engine exactly once.
type VotingService struct {
	matchStore    repository.MatchStore
	ratingService *RatingService
	gateway       notify.Gateway
	retryQueue    SettlementQueue
	logger        *zap.Logger
}

func NewVotingService(
	matchStore repository.MatchStore,
	ratingService *RatingService,
	gateway notify.Gateway,
	retryQueue SettlementQueue,
	logger *zap.Logger,
) *VotingService {
	return &VotingService{
		matchStore:    matchStore,
		ratingService: ratingService,
		gateway:       gateway,
		retryQueue:    retryQueue,
		logger:        logger,
	}
}

// SetRetryQueue attaches the settlement retry queue after construction. The
// worker draining the queue calls back into this service, so the two are
// wired in two steps.
func (s *VotingService) SetRetryQueue(queue SettlementQueue) {
	s.retryQueue = queue
}

// SubmitVote records one side's outcome. The store enforces one vote per
// side atomically, so two players on the same side racing each other cannot
// both land a vote.
func (s *VotingService) SubmitVote(ctx context.Context, matchID string, side models.Side, voterID string, outcome models.Outcome) (VoteResult, error) {
	switch outcome {
	case models.OutcomeWin, models.OutcomeDraw, models.OutcomeLoss, models.OutcomeCancel:
	default:
		return "", ErrInvalidOutcome
	}

	match, err := s.matchStore.GetMatch(ctx, matchID)
	if err != nil {
		return "", fmt.Errorf("failed to load match: %w", err)
	}
	if match == nil {
		return "", ErrMatchNotFound
	}
	if match.Status != models.MatchStatusAwaitingResult {
		return "", ErrAlreadyDecided
	}
	if !snapshotHasPlayer(match.Snapshot(side), voterID) {
		return "", ErrVoterNotInMatch
	}

	vote := models.Vote{VoterID: voterID, Outcome: outcome, CastAt: time.Now()}
	if err := s.matchStore.CastVote(ctx, matchID, side, vote); err != nil {
		switch {
		case errors.Is(err, repository.ErrVoteSlotTaken):
			return "", ErrAlreadyVoted
		case errors.Is(err, repository.ErrMatchDecided):
			return "", ErrAlreadyDecided
		case errors.Is(err, repository.ErrMatchNotFound):
			return "", ErrMatchNotFound
		}
		return "", fmt.Errorf("failed to cast vote: %w", err)
	}

	match, err = s.matchStore.GetMatch(ctx, matchID)
	if err != nil {
		return "", fmt.Errorf("failed to reload match: %w", err)
	}
	if match == nil || !match.BothVoted() {
		return VoteResultPending, nil
	}
	return s.resolve(ctx, match)
}

// resolve runs the consistency check once both votes are in. Every terminal
// transition goes through a conditional store update, so racing resolvers
// agree on a single winner.
func (s *VotingService) resolve(ctx context.Context, match *models.Match) (VoteResult, error) {
	home, away := match.HomeVote.Outcome, match.AwayVote.Outcome

	if home == models.OutcomeCancel || away == models.OutcomeCancel {
		won, err := s.matchStore.SetStatus(ctx, match.ID, models.MatchStatusVoided)
		if err != nil {
			return "", fmt.Errorf("failed to void match: %w", err)
		}
		if won {
			s.logger.Info("Match voided by cancel vote", zap.String("matchId", match.ID))
			s.notifyBoth(ctx, match, notify.EventMatchVoided, "Match cancelled, no rating change")
		}
		return VoteResultVoided, nil
	}

	if models.ConsistentVotes(home, away) {
		won, err := s.matchStore.SetStatus(ctx, match.ID, models.MatchStatusSettled)
		if err != nil {
			return "", fmt.Errorf("failed to settle match: %w", err)
		}
		if won {
			s.settle(ctx, match, home)
		}
		return VoteResultSettled, nil
	}

	cleared, err := s.matchStore.ClearVotes(ctx, match.ID)
	if err != nil {
		return "", fmt.Errorf("failed to reset votes: %w", err)
	}
	if cleared {
		s.logger.Info("Inconsistent votes, revote requested",
			zap.String("matchId", match.ID),
			zap.String("home", string(home)),
			zap.String("away", string(away)))
		s.notifyBoth(ctx, match, notify.EventRevoteRequested, "Reported outcomes do not agree, please vote again")
	}
	return VoteResultInconsistent, nil
}

// settle applies ratings after winning the settled transition. This is the
// single code path that invokes the rating engine for a match; a failure is
// handed to the retry queue, never re-run from a vote submission.
func (s *VotingService) settle(ctx context.Context, match *models.Match, homeOutcome models.Outcome) {
	if err := s.ratingService.ApplyMatch(ctx, match, homeOutcome); err != nil {
		s.logger.Error("Rating update failed, queueing retry",
			zap.String("matchId", match.ID),
			zap.Error(err))
		if s.retryQueue != nil {
			if qerr := s.retryQueue.EnqueueSettlement(ctx, match.ID, homeOutcome); qerr != nil {
				s.logger.Error("Failed to enqueue settlement retry",
					zap.String("matchId", match.ID),
					zap.Error(qerr))
			}
		}
		return
	}

	if err := s.matchStore.MarkRatingsApplied(ctx, match.ID); err != nil {
		s.logger.Error("Failed to mark ratings applied",
			zap.String("matchId", match.ID),
			zap.Error(err))
	}

	s.logger.Info("Match settled",
		zap.String("matchId", match.ID),
		zap.String("homeOutcome", string(homeOutcome)))
	s.notifyBoth(ctx, match, notify.EventMatchSettled, "Match result recorded, ratings updated")
}

func (s *VotingService) notifyBoth(ctx context.Context, match *models.Match, eventType, message string) {
	event := notify.Event{Type: eventType, MatchID: match.ID, Message: message}
	s.gateway.Notify(ctx, match.Home.OwnerID, event)
	s.gateway.Notify(ctx, match.Away.OwnerID, event)
}

// RequestSub appends a substitution request to the match and broadcasts it.
func (s *VotingService) RequestSub(ctx context.Context, matchID, playerID, position string) error {
	match, err := s.matchStore.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("failed to load match: %w", err)
	}
	if match == nil {
		return ErrMatchNotFound
	}

	sub := models.SubRequest{PlayerID: playerID, Position: position, RequestedAt: time.Now()}
	if err := s.matchStore.AppendSubRequest(ctx, matchID, sub); err != nil {
		return fmt.Errorf("failed to record sub request: %w", err)
	}

	s.notifyBoth(ctx, match, notify.EventSubRequested, fmt.Sprintf("Substitute needed at %s", position))
	return nil
}

// GetMatch exposes a match record to the presentation layer.
func (s *VotingService) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	match, err := s.matchStore.GetMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match: %w", err)
	}
	if match == nil {
		return nil, ErrMatchNotFound
	}
	return match, nil
}

// SettleMatch re-runs the rating update for an already settled match whose
// first run failed partway. Driven by the settlement worker, keyed by match
// id; does nothing once ratings are recorded as applied.
func (s *VotingService) SettleMatch(ctx context.Context, matchID string, homeOutcome models.Outcome) error {
	match, err := s.matchStore.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("failed to load match: %w", err)
	}
	if match == nil {
		return ErrMatchNotFound
	}
	if match.Status != models.MatchStatusSettled || match.RatingsApplied {
		return nil
	}

	if err := s.ratingService.ApplyMatch(ctx, match, homeOutcome); err != nil {
		return err
	}
	return s.matchStore.MarkRatingsApplied(ctx, match.ID)
}

func snapshotHasPlayer(snapshot *models.RosterSnapshot, playerID string) bool {
	for _, slot := range snapshot.Slots {
		if slot.PlayerID == playerID && playerID != models.FillerPlayerID {
			return true
		}
	}
	return false
}
