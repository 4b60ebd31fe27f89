package service

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
	"github.com/grassehh/pso-matchmaker-sub000/internal/repository"
)

// Rating tuning values. Empirically chosen; kept as configuration rather
// than re-derived.
const (
	TeamKFactor     = 50.0
	DampeningFactor = 0.3
	eloDivisor      = 400.0
)

// RatingService updates team and per-player positional ratings once a match
// outcome is agreed. It is only ever invoked from the vote-consensus edge in
// the voting coordinator, or from the settlement retry worker re-driving a
// failed run.
type RatingService struct {
	ratingStore repository.RatingStore
	rosterStore repository.RosterStore
	logger      *zap.Logger
}

func NewRatingService(ratingStore repository.RatingStore, rosterStore repository.RosterStore, logger *zap.Logger) *RatingService {
	return &RatingService{
		ratingStore: ratingStore,
		rosterStore: rosterStore,
		logger:      logger,
	}
}

// KFactor picks the base K from the player's games-played bucket. Newer
// players move faster; veterans are stable.
func (s *RatingService) KFactor(games int) float64 {
	switch {
	case games < 25:
		return 30.0
	case games < 250:
		return 25.0
	case games < 800:
		return 20.0
	}
	return 15.0
}

func expectedScore(rating, opponent float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (opponent-rating)/eloDivisor))
}

// dampenedK suppresses rating volatility for players far above or below the
// in-match population mean. A statistical outlier grouped with much weaker
// teammates would otherwise inflate or deflate quickly on small samples.
func dampenedK(base, zScore float64) float64 {
	return base / math.Max(1.0, DampeningFactor*math.Exp(math.Abs(zScore)))
}

type ratedPlayer struct {
	side   models.Side
	slot   models.SnapshotSlot
	record *models.RatingRecord
}

// ApplyMatch runs both rating updates for an agreed outcome, given from the
// home side's perspective. Safe to re-run for the same match if a previous
// run failed partway; the settlement worker re-drives it by match id.
func (s *RatingService) ApplyMatch(ctx context.Context, match *models.Match, homeOutcome models.Outcome) error {
	awayOutcome := invert(homeOutcome)

	if err := s.applyTeamRatings(ctx, match, homeOutcome, awayOutcome); err != nil {
		return err
	}
	return s.applyPlayerRatings(ctx, match, homeOutcome, awayOutcome)
}

func invert(outcome models.Outcome) models.Outcome {
	switch outcome {
	case models.OutcomeWin:
		return models.OutcomeLoss
	case models.OutcomeLoss:
		return models.OutcomeWin
	}
	return outcome
}

// applyTeamRatings runs a plain Elo step between the two parties' team
// ratings as frozen in the snapshots. Anonymous pools carry no team rating.
func (s *RatingService) applyTeamRatings(ctx context.Context, match *models.Match, homeOutcome, awayOutcome models.Outcome) error {
	home, away := float64(match.Home.TeamRating), float64(match.Away.TeamRating)

	if match.Home.Kind == models.PartyTeam {
		updated := home + TeamKFactor*(homeOutcome.Score()-expectedScore(home, away))
		if err := s.rosterStore.UpdateTeamRating(ctx, match.Home.OwnerID, int(math.Round(updated))); err != nil {
			return fmt.Errorf("failed to update home team rating: %w", err)
		}
	}
	if match.Away.Kind == models.PartyTeam {
		updated := away + TeamKFactor*(awayOutcome.Score()-expectedScore(away, home))
		if err := s.rosterStore.UpdateTeamRating(ctx, match.Away.OwnerID, int(math.Round(updated))); err != nil {
			return fmt.Errorf("failed to update away team rating: %w", err)
		}
	}
	return nil
}

func (s *RatingService) applyPlayerRatings(ctx context.Context, match *models.Match, homeOutcome, awayOutcome models.Outcome) error {
	region := match.Home.Region

	players, err := s.gatherPlayers(ctx, match, region)
	if err != nil {
		return err
	}
	if len(players) == 0 {
		return nil
	}

	mean, stddev := ratingDistribution(players)
	homeAvg := sideAverage(players, models.SideHome)
	awayAvg := sideAverage(players, models.SideAway)

	for _, player := range players {
		outcome := homeOutcome
		opposingAvg := awayAvg
		if player.side == models.SideAway {
			outcome = awayOutcome
			opposingAvg = homeAvg
		}

		rating := float64(player.record.Rating)
		zScore := 0.0
		if stddev > 0 {
			zScore = (rating - mean) / stddev
		}

		k := dampenedK(s.KFactor(player.record.Games()), zScore)
		updated := rating + k*(outcome.Score()-expectedScore(rating, opposingAvg))

		player.record.Rating = int(math.Round(updated))
		player.record.RecordOutcome(outcome)

		if err := s.ratingStore.UpsertRating(ctx, player.record); err != nil {
			return fmt.Errorf("failed to persist rating for %s: %w", player.record.PlayerID, err)
		}

		s.logger.Debug("Player rating updated",
			zap.String("matchId", match.ID),
			zap.String("playerId", player.record.PlayerID),
			zap.String("category", string(player.record.Category)),
			zap.Float64("z", zScore),
			zap.Float64("k", k),
			zap.Int("rating", player.record.Rating))
	}
	return nil
}

// gatherPlayers loads or initializes the positional rating record for every
// non-filler player on both sides.
func (s *RatingService) gatherPlayers(ctx context.Context, match *models.Match, region models.Region) ([]*ratedPlayer, error) {
	var players []*ratedPlayer
	for _, side := range []models.Side{models.SideHome, models.SideAway} {
		for _, slot := range match.Snapshot(side).Slots {
			if slot.PlayerID == "" || slot.PlayerID == models.FillerPlayerID {
				continue
			}
			record, err := s.ratingStore.GetRating(ctx, slot.PlayerID, region, slot.Category)
			if err != nil {
				return nil, fmt.Errorf("failed to load rating for %s: %w", slot.PlayerID, err)
			}
			if record == nil {
				record = &models.RatingRecord{
					PlayerID: slot.PlayerID,
					Region:   region,
					Category: slot.Category,
					Rating:   models.DefaultRating,
				}
			}
			players = append(players, &ratedPlayer{side: side, slot: slot, record: record})
		}
	}
	return players, nil
}

// ratingDistribution computes mean and standard deviation over the
// positional ratings of everyone in this match, both sides combined.
func ratingDistribution(players []*ratedPlayer) (mean, stddev float64) {
	for _, player := range players {
		mean += float64(player.record.Rating)
	}
	mean /= float64(len(players))

	var variance float64
	for _, player := range players {
		diff := float64(player.record.Rating) - mean
		variance += diff * diff
	}
	variance /= float64(len(players))
	return mean, math.Sqrt(variance)
}

func sideAverage(players []*ratedPlayer, side models.Side) float64 {
	sum, count := 0.0, 0
	for _, player := range players {
		if player.side == side {
			sum += float64(player.record.Rating)
			count++
		}
	}
	if count == 0 {
		return models.DefaultRating
	}
	return sum / float64(count)
}
