package service

import (
	"context"
	"fmt"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
	"github.com/grassehh/pso-matchmaker-sub000/internal/repository"
)

const defaultLeaderboardSize = 20

// LeaderboardService reads ranked standings per region.
type LeaderboardService struct {
	ratingStore repository.RatingStore
	rosterStore repository.RosterStore
}

func NewLeaderboardService(ratingStore repository.RatingStore, rosterStore repository.RosterStore) *LeaderboardService {
	return &LeaderboardService{
		ratingStore: ratingStore,
		rosterStore: rosterStore,
	}
}

// TopPlayers lists the best players of a region for one position category.
func (s *LeaderboardService) TopPlayers(ctx context.Context, region models.Region, category models.PositionCategory, limit int) ([]*models.RatingRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultLeaderboardSize
	}
	records, err := s.ratingStore.TopPlayers(ctx, region, category, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load player leaderboard: %w", err)
	}
	return records, nil
}

// TopTeams lists the best-rated teams of a region.
func (s *LeaderboardService) TopTeams(ctx context.Context, region models.Region, limit int) ([]*models.Roster, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultLeaderboardSize
	}
	teams, err := s.rosterStore.TopTeams(ctx, region, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load team leaderboard: %w", err)
	}
	return teams, nil
}
