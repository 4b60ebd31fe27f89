package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
)

func TestTopPlayers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	for i, rating := range []int{1500, 1300, 1700} {
		record := &models.RatingRecord{
			PlayerID: fmt.Sprintf("p%d", i+1),
			Region:   models.RegionEurope,
			Category: models.CategoryMidfield,
			Rating:   rating,
		}
		if err := f.store.UpsertRating(ctx, record); err != nil {
			t.Fatalf("UpsertRating: %v", err)
		}
	}
	// A different category stays out of this board.
	f.store.UpsertRating(ctx, &models.RatingRecord{
		PlayerID: "keeper", Region: models.RegionEurope, Category: models.CategoryKeeper, Rating: 1900,
	})

	svc := NewLeaderboardService(f.store, f.store)
	records, err := svc.TopPlayers(ctx, models.RegionEurope, models.CategoryMidfield, 2)
	if err != nil {
		t.Fatalf("TopPlayers: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].PlayerID != "p3" || records[1].PlayerID != "p1" {
		t.Errorf("order = [%s %s], want highest rating first", records[0].PlayerID, records[1].PlayerID)
	}
}

func TestTopTeams(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.saveRoster(t, testRoster("strong", models.PartyTeam, 5, 1600, "s"))
	f.saveRoster(t, testRoster("weak", models.PartyTeam, 5, 1100, "w"))
	f.saveRoster(t, testRoster("pool", models.PartyMix, 5, 2000, "p"))

	svc := NewLeaderboardService(f.store, f.store)
	teams, err := svc.TopTeams(ctx, models.RegionEurope, 10)
	if err != nil {
		t.Fatalf("TopTeams: %v", err)
	}
	if len(teams) != 2 {
		t.Fatalf("got %d teams, want 2 (mix parties excluded)", len(teams))
	}
	if teams[0].OwnerID != "strong" {
		t.Errorf("leader = %s, want strong", teams[0].OwnerID)
	}
}

func TestLeaderboard_LimitClamped(t *testing.T) {
	f := newFixture()
	svc := NewLeaderboardService(f.store, f.store)

	// Out-of-range limits fall back to the default size rather than erroring.
	if _, err := svc.TopPlayers(context.Background(), models.RegionEurope, models.CategoryKeeper, -5); err != nil {
		t.Errorf("TopPlayers with negative limit: %v", err)
	}
	if _, err := svc.TopTeams(context.Background(), models.RegionEurope, 9999); err != nil {
		t.Errorf("TopTeams with oversized limit: %v", err)
	}
}
