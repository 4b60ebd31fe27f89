package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
	"github.com/grassehh/pso-matchmaker-sub000/internal/notify"
	"github.com/grassehh/pso-matchmaker-sub000/internal/repository"
)

// FinalizerService turns a resolved pairing into an immutable match record.
// It is the only creator of roster snapshots and the only place queue
// reservations are released after a successful pairing.
type FinalizerService struct {
	queueStore     repository.QueueStore
	challengeStore repository.ChallengeStore
	matchStore     repository.MatchStore
	rosterStore    repository.RosterStore
	ratingStore    repository.RatingStore
	gateway        notify.Gateway
	logger         *zap.Logger
}

func NewFinalizerService(
	queueStore repository.QueueStore,
	challengeStore repository.ChallengeStore,
	matchStore repository.MatchStore,
	rosterStore repository.RosterStore,
	ratingStore repository.RatingStore,
	gateway notify.Gateway,
	logger *zap.Logger,
) *FinalizerService {
	return &FinalizerService{
		queueStore:     queueStore,
		challengeStore: challengeStore,
		matchStore:     matchStore,
		rosterStore:    rosterStore,
		ratingStore:    ratingStore,
		gateway:        gateway,
		logger:         logger,
	}
}

// Finalize snapshots both rosters into a match, then releases the
// originating reservations and queue entries. The reservation release only
// happens after the match row exists, so a crash in between can be recovered
// by checking for a match referencing the challenge.
func (s *FinalizerService) Finalize(ctx context.Context, home, away *models.QueueEntry, challengeID *string, rankedOverride *bool) (*models.Match, error) {
	homeRoster, err := s.rosterStore.GetRoster(ctx, home.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load home roster: %w", err)
	}
	awayRoster, err := s.rosterStore.GetRoster(ctx, away.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load away roster: %w", err)
	}
	if homeRoster == nil || awayRoster == nil {
		return nil, ErrRosterNotFound
	}

	// Rosters may have changed since the pairing was proposed; the overlap
	// check at proposal time is not enough.
	if homeRoster.SharesPlayerWith(awayRoster) {
		return nil, ErrDuplicatePlayers
	}

	ranked := home.Ranked
	if rankedOverride != nil {
		ranked = *rankedOverride
	}

	match := &models.Match{
		ID:            newMatchID(),
		Home:          snapshotRoster(homeRoster),
		Away:          snapshotRoster(awayRoster),
		Ranked:        ranked,
		ChallengeID:   challengeID,
		Status:        models.MatchStatusAwaitingResult,
		CreatedAt:     time.Now(),
	}
	match.LobbyName, match.LobbyPassword = lobbyCredentials(match.ID)

	if err := s.matchStore.CreateMatch(ctx, match); err != nil {
		return nil, fmt.Errorf("failed to persist match: %w", err)
	}

	s.releasePairing(ctx, challengeID, home.OwnerID, away.OwnerID)
	s.resetRoster(ctx, homeRoster)
	s.resetRoster(ctx, awayRoster)

	s.logger.Info("Match finalized",
		zap.String("matchId", match.ID),
		zap.String("home", homeRoster.Name),
		zap.String("away", awayRoster.Name),
		zap.Bool("ranked", ranked))

	s.notifyMatchReady(ctx, match)
	return match, nil
}

// FinalizeMix splits a pool-style party into two balanced halves instead of
// consuming a second queue entry.
func (s *FinalizerService) FinalizeMix(ctx context.Context, entry *models.QueueEntry, rankedOverride *bool) (*models.Match, error) {
	roster, err := s.rosterStore.GetRoster(ctx, entry.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mix roster: %w", err)
	}
	if roster == nil {
		return nil, ErrRosterNotFound
	}

	homeSnapshot, awaySnapshot, err := s.splitRoster(ctx, roster)
	if err != nil {
		return nil, err
	}

	ranked := entry.Ranked
	if rankedOverride != nil {
		ranked = *rankedOverride
	}

	match := &models.Match{
		ID:        newMatchID(),
		Home:      homeSnapshot,
		Away:      awaySnapshot,
		Ranked:    ranked,
		Status:    models.MatchStatusAwaitingResult,
		CreatedAt: time.Now(),
	}
	match.LobbyName, match.LobbyPassword = lobbyCredentials(match.ID)

	if err := s.matchStore.CreateMatch(ctx, match); err != nil {
		return nil, fmt.Errorf("failed to persist mix match: %w", err)
	}

	s.releasePairing(ctx, nil, entry.OwnerID, "")
	s.resetRoster(ctx, roster)

	s.logger.Info("Mix match finalized",
		zap.String("matchId", match.ID),
		zap.String("owner", roster.OwnerID),
		zap.Bool("draft", roster.DraftEnabled || roster.Kind == models.PartyDraftMix))

	s.notifyMatchReady(ctx, match)
	return match, nil
}

// releasePairing deletes the originating challenge, frees the reservations
// it held and removes the consumed queue entries.
func (s *FinalizerService) releasePairing(ctx context.Context, challengeID *string, homeOwner, awayOwner string) {
	if challengeID != nil {
		if _, err := s.challengeStore.Delete(ctx, *challengeID); err != nil {
			s.logger.Error("Failed to delete challenge after finalize",
				zap.String("challengeId", *challengeID),
				zap.Error(err))
		}
		if err := s.queueStore.Release(ctx, *challengeID); err != nil {
			s.logger.Error("Failed to release reservation after finalize",
				zap.String("challengeId", *challengeID),
				zap.Error(err))
		}
	}
	for _, owner := range []string{homeOwner, awayOwner} {
		if owner == "" {
			continue
		}
		if err := s.queueStore.Remove(ctx, owner); err != nil {
			s.logger.Error("Failed to remove paired queue entry",
				zap.String("owner", owner),
				zap.Error(err))
		}
	}
}

// resetRoster promotes bench players into freed slots so the party can head
// straight back into a new search cycle.
func (s *FinalizerService) resetRoster(ctx context.Context, roster *models.Roster) {
	roster.PromoteBench()
	if err := s.rosterStore.SaveRoster(ctx, roster); err != nil {
		s.logger.Error("Failed to reset roster",
			zap.String("owner", roster.OwnerID),
			zap.Error(err))
	}
}

func (s *FinalizerService) notifyMatchReady(ctx context.Context, match *models.Match) {
	event := notify.Event{
		Type:    notify.EventMatchReady,
		MatchID: match.ID,
		Message: fmt.Sprintf("Lobby %s / password %s", match.LobbyName, match.LobbyPassword),
	}
	s.gateway.Notify(ctx, match.Home.OwnerID, event)
	if match.Away.OwnerID != match.Home.OwnerID {
		s.gateway.Notify(ctx, match.Away.OwnerID, event)
	}
}

// splitRoster distributes the pool's players over two sides, greedily
// assigning each player (strongest first, by positional rating) to the
// weaker side so far. With draft mode the two strongest players head a side
// each as captains; the remaining order is the same.
func (s *FinalizerService) splitRoster(ctx context.Context, roster *models.Roster) (models.RosterSnapshot, models.RosterSnapshot, error) {
	type pick struct {
		slot   models.RosterSlot
		rating int
	}

	var picks []pick
	for _, slot := range roster.Slots {
		if slot.Player == nil {
			continue
		}
		rating := models.DefaultRating
		if !slot.Player.IsFiller() {
			record, err := s.ratingStore.GetRating(ctx, slot.Player.ID, roster.Region, slot.Category)
			if err != nil {
				return models.RosterSnapshot{}, models.RosterSnapshot{}, fmt.Errorf("failed to load rating for split: %w", err)
			}
			if record != nil {
				rating = record.Rating
			}
		}
		picks = append(picks, pick{slot: slot, rating: rating})
	}

	sort.Slice(picks, func(i, j int) bool { return picks[i].rating > picks[j].rating })

	base := snapshotRoster(roster)
	home := base
	away := base
	home.Slots = nil
	away.Slots = nil
	away.Name = roster.Name + " B"

	homeCap := (len(picks) + 1) / 2
	awayCap := len(picks) / 2
	homeSum, awaySum := 0, 0
	for _, p := range picks {
		slot := models.SnapshotSlot{
			Position:   p.slot.Position,
			Category:   p.slot.Category,
			PlayerID:   p.slot.Player.ID,
			PlayerName: p.slot.Player.Name,
		}
		toHome := homeSum <= awaySum
		if len(home.Slots) >= homeCap {
			toHome = false
		} else if len(away.Slots) >= awayCap {
			toHome = true
		}
		if toHome {
			home.Slots = append(home.Slots, slot)
			homeSum += p.rating
		} else {
			away.Slots = append(away.Slots, slot)
			awaySum += p.rating
		}
	}
	home.Size = len(home.Slots)
	away.Size = len(away.Slots)
	return home, away, nil
}

func snapshotRoster(roster *models.Roster) models.RosterSnapshot {
	snapshot := models.RosterSnapshot{
		OwnerID:    roster.OwnerID,
		Name:       roster.Name,
		Kind:       roster.Kind,
		Region:     roster.Region,
		Size:       roster.Size,
		TeamRating: roster.TeamRating,
		Slots:      make([]models.SnapshotSlot, 0, len(roster.Slots)),
	}
	for _, slot := range roster.Slots {
		if slot.Player == nil {
			continue
		}
		snapshot.Slots = append(snapshot.Slots, models.SnapshotSlot{
			Position:   slot.Position,
			Category:   slot.Category,
			PlayerID:   slot.Player.ID,
			PlayerName: slot.Player.Name,
		})
	}
	return snapshot
}

// newMatchID returns a short, url-safe match identifier.
func newMatchID() string {
	return uuid.New().String()[:8]
}

func lobbyCredentials(matchID string) (name, password string) {
	buf := make([]byte, 3)
	_, _ = rand.Read(buf)
	return "PSO-" + strings.ToUpper(matchID), hex.EncodeToString(buf)
}
