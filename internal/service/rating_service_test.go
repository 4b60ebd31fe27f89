package service

import (
	"context"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
)

func TestKFactor(t *testing.T) {
	svc := NewRatingService(nil, nil, zap.NewNop())

	tests := []struct {
		games int
		want  float64
	}{
		{0, 30},
		{24, 30},
		{25, 25},
		{249, 25},
		{250, 20},
		{799, 20},
		{800, 15},
		{5000, 15},
	}
	for _, tt := range tests {
		if got := svc.KFactor(tt.games); got != tt.want {
			t.Errorf("KFactor(%d) = %v, want %v", tt.games, got, tt.want)
		}
	}
}

func TestExpectedScore(t *testing.T) {
	if got := expectedScore(1200, 1200); got != 0.5 {
		t.Errorf("expectedScore for equal ratings = %v, want 0.5", got)
	}
	if got := expectedScore(1400, 1200); got <= 0.5 {
		t.Errorf("the stronger side should be favored, got %v", got)
	}
	sum := expectedScore(1500, 1100) + expectedScore(1100, 1500)
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("expected scores should be complementary, sum = %v", sum)
	}
}

func TestDampenedK(t *testing.T) {
	// Near the population mean the base K passes through untouched.
	if got := dampenedK(30, 0); got != 30 {
		t.Errorf("dampenedK(30, 0) = %v, want 30", got)
	}
	if got := dampenedK(30, 1); got != 30 {
		t.Errorf("dampenedK(30, 1) = %v, want 30 (dampening below 1 is clamped)", got)
	}

	// Outliers move slower, monotonically in |z|.
	k2 := dampenedK(30, 2)
	k3 := dampenedK(30, 3)
	if k2 >= 30 || k3 >= k2 {
		t.Errorf("dampening should shrink K with distance: k(2)=%v k(3)=%v", k2, k3)
	}
	if got := dampenedK(30, -2); got != k2 {
		t.Errorf("dampening must be symmetric, k(-2)=%v k(2)=%v", got, k2)
	}
}

func TestApplyMatch_Draw(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	match := seedMatch(t, f, models.PartyMix)

	if err := f.rating.ApplyMatch(ctx, match, models.OutcomeDraw); err != nil {
		t.Fatalf("ApplyMatch: %v", err)
	}

	// Everyone starts equal; a draw moves nobody.
	for _, playerID := range []string{"a1", "a2", "b1", "b2"} {
		record, _ := f.store.GetRating(ctx, playerID, models.RegionEurope, models.CategoryKeeper)
		if playerID == "a2" || playerID == "b2" {
			record, _ = f.store.GetRating(ctx, playerID, models.RegionEurope, models.CategoryDefense)
		}
		if record == nil {
			t.Fatalf("no record for %s", playerID)
		}
		if record.Rating != models.DefaultRating || record.Draws != 1 {
			t.Errorf("record for %s = %+v, want unchanged rating with 1 draw", playerID, record)
		}
	}
}

func TestApplyMatch_TeamRatingOnlyForTeams(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	match := seedMatch(t, f, models.PartyMix)

	if err := f.rating.ApplyMatch(ctx, match, models.OutcomeWin); err != nil {
		t.Fatalf("ApplyMatch: %v", err)
	}

	for _, owner := range []string{"team-a", "team-b"} {
		roster, _ := f.store.GetRoster(ctx, owner)
		if roster.TeamRating != 1200 {
			t.Errorf("mix party %s team rating = %d, anonymous pools carry no team Elo", owner, roster.TeamRating)
		}
	}
}

func TestApplyMatch_OutlierMovesSlower(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	match := seedMatch(t, f, models.PartyMix)

	// a1 sits far above the in-match population.
	if err := f.store.UpsertRating(ctx, &models.RatingRecord{
		PlayerID: "a1",
		Region:   models.RegionEurope,
		Category: models.CategoryKeeper,
		Rating:   2000,
	}); err != nil {
		t.Fatalf("UpsertRating: %v", err)
	}

	if err := f.rating.ApplyMatch(ctx, match, models.OutcomeWin); err != nil {
		t.Fatalf("ApplyMatch: %v", err)
	}

	outlier, _ := f.store.GetRating(ctx, "a1", models.RegionEurope, models.CategoryKeeper)
	teammate, _ := f.store.GetRating(ctx, "a2", models.RegionEurope, models.CategoryDefense)

	outlierGain := outlier.Rating - 2000
	teammateGain := teammate.Rating - models.DefaultRating
	if outlierGain < 0 || teammateGain <= 0 {
		t.Fatalf("winners should not lose points: outlier %+d, teammate %+d", outlierGain, teammateGain)
	}
	if outlierGain >= teammateGain {
		t.Errorf("the outlier should gain less than the teammate: %+d vs %+d", outlierGain, teammateGain)
	}
}

func TestApplyMatch_SkipsFillers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	home := testRoster("team-a", models.PartyMix, 2, 1200, "a")
	home.Slots[1].Player = &models.Player{ID: models.FillerPlayerID, Name: "Filler"}
	f.saveRoster(t, home)
	f.saveRoster(t, testRoster("team-b", models.PartyMix, 2, 1200, "b"))

	match, err := f.finalizer.Finalize(ctx,
		&models.QueueEntry{OwnerID: "team-a"},
		&models.QueueEntry{OwnerID: "team-b"},
		nil, nil)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if err := f.rating.ApplyMatch(ctx, match, models.OutcomeWin); err != nil {
		t.Fatalf("ApplyMatch: %v", err)
	}

	if record, _ := f.store.GetRating(ctx, models.FillerPlayerID, models.RegionEurope, models.CategoryDefense); record != nil {
		t.Error("fillers never accumulate a rating")
	}
	if record, _ := f.store.GetRating(ctx, "a1", models.RegionEurope, models.CategoryKeeper); record == nil || record.Wins != 1 {
		t.Errorf("real players still get rated alongside a filler, got %+v", record)
	}
}
