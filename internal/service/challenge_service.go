package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
	"github.com/grassehh/pso-matchmaker-sub000/internal/notify"
	"github.com/grassehh/pso-matchmaker-sub000/internal/repository"
)

// ChallengeService negotiates direct challenges between two specific queue
// entries. A challenge holds the exclusive reservation over both entries
// until it is resolved; the same reservation primitive keeps the scheduler
// away from them.
type ChallengeService struct {
	queueStore     repository.QueueStore
	challengeStore repository.ChallengeStore
	rosterStore    repository.RosterStore
	finalizer      *FinalizerService
	gateway        notify.Gateway
	logger         *zap.Logger
}

func NewChallengeService(
	queueStore repository.QueueStore,
	challengeStore repository.ChallengeStore,
	rosterStore repository.RosterStore,
	finalizer *FinalizerService,
	gateway notify.Gateway,
	logger *zap.Logger,
) *ChallengeService {
	return &ChallengeService{
		queueStore:     queueStore,
		challengeStore: challengeStore,
		rosterStore:    rosterStore,
		finalizer:      finalizer,
		gateway:        gateway,
		logger:         logger,
	}
}

// Propose creates a challenge from the initiator's party against a specific
// queue entry, reserving both entries atomically.
func (s *ChallengeService) Propose(ctx context.Context, initiatorID, initiatorPartyID, targetEntryID string) (*models.Challenge, error) {
	target, err := s.queueStore.FindByID(ctx, targetEntryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load target entry: %w", err)
	}
	if target == nil {
		return nil, ErrTargetNotQueued
	}
	if target.Reserved() {
		return nil, ErrAlreadyNegotiating
	}

	initiatorRoster, err := s.rosterStore.GetRoster(ctx, initiatorPartyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load initiator roster: %w", err)
	}
	if initiatorRoster == nil {
		return nil, ErrRosterNotFound
	}

	targetRoster, err := s.rosterStore.GetRoster(ctx, target.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load target roster: %w", err)
	}
	if targetRoster == nil {
		return nil, ErrTargetNotQueued
	}

	if initiatorRoster.Size != target.Size {
		return nil, ErrSizeMismatch
	}
	if initiatorRoster.SharesPlayerWith(targetRoster) {
		return nil, ErrDuplicatePlayers
	}

	// Reuse the initiator's queue entry if it exists, otherwise create one
	// just for this challenge (no auto search).
	entry, err := s.queueStore.FindByOwner(ctx, initiatorPartyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load initiator entry: %w", err)
	}
	if entry != nil && entry.Reserved() {
		return nil, ErrAlreadyNegotiating
	}
	if entry == nil {
		entry = &models.QueueEntry{
			ID:         uuid.New().String(),
			OwnerID:    initiatorPartyID,
			Kind:       initiatorRoster.Kind,
			Region:     initiatorRoster.Region,
			Size:       initiatorRoster.Size,
			Ranked:     target.Ranked,
			AutoSearch: false,
			TeamRating: initiatorRoster.TeamRating,
		}
		if err := s.queueStore.Upsert(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to queue initiator: %w", err)
		}
	}

	challengeID := uuid.New().String()
	if err := s.queueStore.Reserve(ctx, []string{entry.ID, target.ID}, challengeID); err != nil {
		if errors.Is(err, repository.ErrAlreadyReserved) {
			return nil, ErrAlreadyNegotiating
		}
		if errors.Is(err, repository.ErrEntryNotFound) {
			return nil, ErrTargetNotQueued
		}
		return nil, fmt.Errorf("failed to reserve entries: %w", err)
	}

	challenge := &models.Challenge{
		ID:               challengeID,
		InitiatorID:      initiatorID,
		InitiatorEntryID: entry.ID,
		TargetEntryID:    target.ID,
		Status:           models.ChallengeStatusProposed,
	}
	if err := s.challengeStore.Create(ctx, challenge); err != nil {
		// Roll the reservation back so the entries are not stuck.
		if rerr := s.queueStore.Release(ctx, challengeID); rerr != nil {
			s.logger.Error("Failed to release reservation after create failure",
				zap.String("challengeId", challengeID),
				zap.Error(rerr))
		}
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	s.logger.Info("Challenge proposed",
		zap.String("challengeId", challengeID),
		zap.String("initiator", initiatorPartyID),
		zap.String("target", target.OwnerID))

	s.gateway.Notify(ctx, target.OwnerID, notify.Event{
		Type:        notify.EventChallengeReceived,
		ChallengeID: challengeID,
		Message:     fmt.Sprintf("%s challenges you to a %dv%d", initiatorRoster.Name, initiatorRoster.Size, initiatorRoster.Size),
	})
	return challenge, nil
}

// AttachPrompt records an opaque handle to an outward-facing prompt message
// so the presentation layer can clean it up on resolution.
func (s *ChallengeService) AttachPrompt(ctx context.Context, challengeID, promptRef string) error {
	return s.challengeStore.AttachPrompt(ctx, challengeID, promptRef)
}

// Decide resolves a proposed challenge. Accepting hands the pairing to the
// finalizer, which also deletes the challenge and frees both reservations;
// refusing dissolves it directly.
func (s *ChallengeService) Decide(ctx context.Context, challengeID string, accept bool) (*models.Match, error) {
	challenge, err := s.challengeStore.Get(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	if challenge == nil {
		return nil, ErrChallengeNotFound
	}

	initiatorEntry, err := s.queueStore.FindByID(ctx, challenge.InitiatorEntryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load initiator entry: %w", err)
	}
	targetEntry, err := s.queueStore.FindByID(ctx, challenge.TargetEntryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load target entry: %w", err)
	}
	if initiatorEntry == nil || targetEntry == nil {
		// A withdrawn party invalidates the challenge.
		s.dissolve(ctx, challenge, models.ChallengeStatusCancelled)
		return nil, ErrTargetNotQueued
	}

	if !accept {
		if !s.dissolve(ctx, challenge, models.ChallengeStatusRefused) {
			return nil, ErrChallengeNotFound
		}
		s.notifyResolution(ctx, challenge, initiatorEntry, targetEntry, notify.EventChallengeRefused, "Challenge refused")
		return nil, nil
	}

	// The finalizer deletes the challenge and releases both reservations
	// after the match is durably created. A duplicate-player failure leaves
	// the challenge intact so the parties can fix their rosters or cancel.
	match, err := s.finalizer.Finalize(ctx, targetEntry, initiatorEntry, &challenge.ID, nil)
	if err != nil {
		return nil, err
	}
	return match, nil
}

// Cancel withdraws a proposed challenge, either on the initiator's request
// or from the roster collaborator when a party becomes ineligible. A race
// with a concurrent accept is decided by whoever deletes the challenge
// first; the loser gets ErrChallengeNotFound.
func (s *ChallengeService) Cancel(ctx context.Context, challengeID string) error {
	challenge, err := s.challengeStore.Get(ctx, challengeID)
	if err != nil {
		return fmt.Errorf("failed to load challenge: %w", err)
	}
	if challenge == nil {
		return ErrChallengeNotFound
	}

	initiatorEntry, _ := s.queueStore.FindByID(ctx, challenge.InitiatorEntryID)
	targetEntry, _ := s.queueStore.FindByID(ctx, challenge.TargetEntryID)

	if !s.dissolve(ctx, challenge, models.ChallengeStatusCancelled) {
		return ErrChallengeNotFound
	}
	s.notifyResolution(ctx, challenge, initiatorEntry, targetEntry, notify.EventChallengeCancelled, "Challenge cancelled")
	return nil
}

// dissolve deletes the challenge and releases both reservations. Reports
// false when another resolution already consumed it.
func (s *ChallengeService) dissolve(ctx context.Context, challenge *models.Challenge, status models.ChallengeStatus) bool {
	deleted, err := s.challengeStore.Delete(ctx, challenge.ID)
	if err != nil {
		s.logger.Error("Failed to delete challenge",
			zap.String("challengeId", challenge.ID),
			zap.Error(err))
		return false
	}
	if !deleted {
		return false
	}
	if err := s.queueStore.Release(ctx, challenge.ID); err != nil {
		s.logger.Error("Failed to release reservation",
			zap.String("challengeId", challenge.ID),
			zap.Error(err))
	}
	s.logger.Info("Challenge dissolved",
		zap.String("challengeId", challenge.ID),
		zap.String("status", string(status)))
	return true
}

func (s *ChallengeService) notifyResolution(ctx context.Context, challenge *models.Challenge, initiatorEntry, targetEntry *models.QueueEntry, eventType, message string) {
	event := notify.Event{Type: eventType, ChallengeID: challenge.ID, Message: message}
	if initiatorEntry != nil {
		s.gateway.Notify(ctx, initiatorEntry.OwnerID, event)
	}
	if targetEntry != nil {
		s.gateway.Notify(ctx, targetEntry.OwnerID, event)
	}
}
