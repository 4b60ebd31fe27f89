package service

import (
	"context"
	"strings"
	"testing"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
)

func TestFinalize_CreatesMatchAndReleasesPairing(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	home := testRoster("team-a", models.PartyTeam, 5, 1340, "a")
	away := testRoster("team-b", models.PartyTeam, 5, 1295, "b")
	f.saveRoster(t, home)
	f.saveRoster(t, away)
	homeEntry := f.enqueue(t, "team-a")
	awayEntry := f.enqueue(t, "team-b")

	challengeID := "challenge-1"
	if err := f.store.Reserve(ctx, []string{homeEntry.ID, awayEntry.ID}, challengeID); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := f.store.Create(ctx, &models.Challenge{
		ID:               challengeID,
		InitiatorEntryID: homeEntry.ID,
		TargetEntryID:    awayEntry.ID,
		Status:           models.ChallengeStatusProposed,
	}); err != nil {
		t.Fatalf("Create challenge: %v", err)
	}

	match, err := f.finalizer.Finalize(ctx, homeEntry, awayEntry, &challengeID, nil)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	if match.Home.OwnerID != "team-a" || match.Away.OwnerID != "team-b" {
		t.Errorf("sides = %s vs %s", match.Home.OwnerID, match.Away.OwnerID)
	}
	if match.Home.TeamRating != 1340 || match.Away.TeamRating != 1295 {
		t.Errorf("snapshot ratings = %d vs %d", match.Home.TeamRating, match.Away.TeamRating)
	}
	if !strings.HasPrefix(match.LobbyName, "PSO-") || match.LobbyPassword == "" {
		t.Errorf("lobby credentials = %q / %q", match.LobbyName, match.LobbyPassword)
	}

	if got, _ := f.store.Get(ctx, challengeID); got != nil {
		t.Error("originating challenge should be deleted")
	}
	for _, owner := range []string{"team-a", "team-b"} {
		if entry, _ := f.store.FindByOwner(ctx, owner); entry != nil {
			t.Errorf("queue entry for %s should be removed", owner)
		}
	}
}

func TestFinalize_SnapshotIsFrozen(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.saveRoster(t, testRoster("team-a", models.PartyTeam, 2, 1200, "a"))
	f.saveRoster(t, testRoster("team-b", models.PartyTeam, 2, 1200, "b"))

	match, err := f.finalizer.Finalize(ctx,
		&models.QueueEntry{OwnerID: "team-a"},
		&models.QueueEntry{OwnerID: "team-b"},
		nil, nil)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	// The live roster changes after the match is created.
	changed := testRoster("team-a", models.PartyTeam, 2, 1200, "x")
	f.saveRoster(t, changed)

	got, _ := f.store.GetMatch(ctx, match.ID)
	if got.Home.Slots[0].PlayerID != "a1" {
		t.Errorf("snapshot changed with the live roster: %+v", got.Home.Slots)
	}
}

func TestFinalize_RosterDriftRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.saveRoster(t, testRoster("team-a", models.PartyTeam, 2, 1200, "a"))
	drifted := testRoster("team-b", models.PartyTeam, 2, 1200, "b")
	drifted.Slots[0].Player = &models.Player{ID: "a1", Name: "a 1"}
	f.saveRoster(t, drifted)
	homeEntry := f.enqueue(t, "team-a")
	awayEntry := f.enqueue(t, "team-b")

	_, err := f.finalizer.Finalize(ctx, homeEntry, awayEntry, nil, nil)
	if err != ErrDuplicatePlayers {
		t.Fatalf("Finalize with shared player = %v, want ErrDuplicatePlayers", err)
	}

	// Nothing was consumed; the parties stay queued.
	for _, owner := range []string{"team-a", "team-b"} {
		if entry, _ := f.store.FindByOwner(ctx, owner); entry == nil {
			t.Errorf("entry for %s should survive a rejected finalize", owner)
		}
	}
}

func TestFinalize_BenchPromotedAfterMatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	home := testRoster("team-a", models.PartyTeam, 3, 1200, "a")
	home.Slots[2].Player = nil
	home.Bench = []models.Player{{ID: "a9", Name: "a 9"}}
	f.saveRoster(t, home)
	f.saveRoster(t, testRoster("team-b", models.PartyTeam, 3, 1200, "b"))

	if _, err := f.finalizer.Finalize(ctx,
		&models.QueueEntry{OwnerID: "team-a"},
		&models.QueueEntry{OwnerID: "team-b"},
		nil, nil); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	roster, _ := f.store.GetRoster(ctx, "team-a")
	if roster.Slots[2].Player == nil || roster.Slots[2].Player.ID != "a9" {
		t.Errorf("bench player should take the open slot, got %+v", roster.Slots[2].Player)
	}
	if len(roster.Bench) != 0 {
		t.Errorf("bench should be drained, got %v", roster.Bench)
	}
}

func TestFinalizeMix_BalancedSplit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	pool := testRoster("pool", models.PartyMix, 4, 1200, "p")
	f.saveRoster(t, pool)

	ratings := map[string]int{"p1": 1600, "p2": 1400, "p3": 1200, "p4": 1000}
	for i, slot := range pool.Slots {
		playerID := slot.Player.ID
		if err := f.store.UpsertRating(ctx, &models.RatingRecord{
			PlayerID: playerID,
			Region:   models.RegionEurope,
			Category: categoryCycle[i%len(categoryCycle)],
			Rating:   ratings[playerID],
		}); err != nil {
			t.Fatalf("UpsertRating(%s): %v", playerID, err)
		}
	}

	match, err := f.finalizer.FinalizeMix(ctx, &models.QueueEntry{OwnerID: "pool"}, nil)
	if err != nil {
		t.Fatalf("FinalizeMix: %v", err)
	}

	if match.Home.Size != 2 || match.Away.Size != 2 {
		t.Fatalf("split = %d vs %d, want 2 vs 2", match.Home.Size, match.Away.Size)
	}

	sideSum := func(snapshot models.RosterSnapshot) int {
		sum := 0
		for _, slot := range snapshot.Slots {
			sum += ratings[slot.PlayerID]
		}
		return sum
	}
	homeSum, awaySum := sideSum(match.Home), sideSum(match.Away)
	if homeSum != awaySum {
		t.Errorf("greedy split should balance these ratings exactly: %d vs %d", homeSum, awaySum)
	}
}

func TestFinalizeMix_OddPool(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.saveRoster(t, testRoster("pool", models.PartyMix, 5, 1200, "p"))

	match, err := f.finalizer.FinalizeMix(ctx, &models.QueueEntry{OwnerID: "pool"}, nil)
	if err != nil {
		t.Fatalf("FinalizeMix: %v", err)
	}
	if match.Home.Size != 3 || match.Away.Size != 2 {
		t.Errorf("odd pool split = %d vs %d, want 3 vs 2", match.Home.Size, match.Away.Size)
	}
}
