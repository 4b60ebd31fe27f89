package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
)

func queuedEntry(id, owner string, rating int) *models.QueueEntry {
	return &models.QueueEntry{
		ID:         id,
		OwnerID:    owner,
		Kind:       models.PartyTeam,
		Region:     models.RegionEurope,
		Size:       5,
		AutoSearch: true,
		TeamRating: rating,
	}
}

func mustUpsert(t *testing.T, store *MemoryStore, entry *models.QueueEntry) {
	t.Helper()
	if err := store.Upsert(context.Background(), entry); err != nil {
		t.Fatalf("Upsert(%s): %v", entry.OwnerID, err)
	}
}

func TestUpsert_OneEntryPerOwner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	mustUpsert(t, store, queuedEntry("e1", "alpha", 1200))
	first, _ := store.FindByOwner(ctx, "alpha")

	replacement := queuedEntry("different-id", "alpha", 1300)
	replacement.Ranked = true
	mustUpsert(t, store, replacement)

	second, _ := store.FindByOwner(ctx, "alpha")
	if second.ID != first.ID {
		t.Errorf("entry id changed on re-queue: %s -> %s", first.ID, second.ID)
	}
	if !second.InsertedAt.Equal(first.InsertedAt) {
		t.Error("queue age should be preserved on re-queue")
	}
	if second.TeamRating != 1300 || !second.Ranked {
		t.Errorf("updated fields not applied: %+v", second)
	}
}

func TestUpsert_KeepsReservationAndAttempts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	mustUpsert(t, store, queuedEntry("e1", "alpha", 1200))
	if err := store.Reserve(ctx, []string{"e1"}, "c1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := store.IncrementAttempts(ctx, "e1"); err != nil {
		t.Fatalf("IncrementAttempts: %v", err)
	}

	replacement := queuedEntry("fresh-id", "alpha", 1300)
	mustUpsert(t, store, replacement)

	got, _ := store.FindByOwner(ctx, "alpha")
	if !got.Reserved() || *got.ReservedByChallenge != "c1" {
		t.Errorf("re-queue cleared the reservation: %+v", got)
	}
	if got.MatchmakingAttempts != 1 {
		t.Errorf("attempts = %d, want 1 after re-queue", got.MatchmakingAttempts)
	}
	if got.TeamRating != 1300 {
		t.Errorf("updated rating not applied, got %d", got.TeamRating)
	}
}

func TestReserve_AllOrNothing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	mustUpsert(t, store, queuedEntry("e1", "alpha", 1200))
	mustUpsert(t, store, queuedEntry("e2", "beta", 1200))

	if err := store.Reserve(ctx, []string{"e1"}, "c1"); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	err := store.Reserve(ctx, []string{"e2", "e1"}, "c2")
	if !errors.Is(err, ErrAlreadyReserved) {
		t.Fatalf("Reserve over a held entry = %v, want ErrAlreadyReserved", err)
	}

	// The failed reservation must not touch the free entry.
	e2, _ := store.FindByID(ctx, "e2")
	if e2.Reserved() {
		t.Error("partial reservation leaked onto e2")
	}
	e1, _ := store.FindByID(ctx, "e1")
	if !e1.Reserved() || *e1.ReservedByChallenge != "c1" {
		t.Errorf("original reservation disturbed: %+v", e1)
	}

	if err := store.Reserve(ctx, []string{"e2", "missing"}, "c3"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Reserve with missing entry = %v, want ErrEntryNotFound", err)
	}
}

func TestRelease_OnlyMatchingChallenge(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	mustUpsert(t, store, queuedEntry("e1", "alpha", 1200))
	mustUpsert(t, store, queuedEntry("e2", "beta", 1200))
	store.Reserve(ctx, []string{"e1"}, "c1")
	store.Reserve(ctx, []string{"e2"}, "c2")

	if err := store.Release(ctx, "c1"); err != nil {
		t.Fatalf("Release: %v", err)
	}

	e1, _ := store.FindByID(ctx, "e1")
	e2, _ := store.FindByID(ctx, "e2")
	if e1.Reserved() {
		t.Error("e1 should be released")
	}
	if !e2.Reserved() {
		t.Error("e2 belongs to another challenge and must stay reserved")
	}
}

func TestListSearching_FiltersAndOrders(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	oldest := queuedEntry("e1", "alpha", 1200)
	oldest.InsertedAt = time.Now().Add(-2 * time.Minute)
	newest := queuedEntry("e2", "beta", 1200)
	newest.InsertedAt = time.Now().Add(-1 * time.Minute)
	manual := queuedEntry("e3", "gamma", 1200)
	manual.AutoSearch = false
	reserved := queuedEntry("e4", "delta", 1200)

	for _, entry := range []*models.QueueEntry{oldest, newest, manual, reserved} {
		mustUpsert(t, store, entry)
	}
	store.Reserve(ctx, []string{"e4"}, "c1")

	entries, err := store.ListSearching(ctx)
	if err != nil {
		t.Fatalf("ListSearching: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (manual and reserved excluded)", len(entries))
	}
	if entries[0].ID != "e1" || entries[1].ID != "e2" {
		t.Errorf("order = [%s %s], want oldest first", entries[0].ID, entries[1].ID)
	}
}

func TestFindCandidates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	mustUpsert(t, store, queuedEntry("e1", "self", 1200))
	mustUpsert(t, store, queuedEntry("e2", "close", 1230))
	mustUpsert(t, store, queuedEntry("e3", "closer", 1210))
	mustUpsert(t, store, queuedEntry("e4", "far", 1500))
	wrongSize := queuedEntry("e5", "small", 1200)
	wrongSize.Size = 4
	mustUpsert(t, store, wrongSize)

	filter := CandidateFilter{
		Region:       models.RegionEurope,
		Kind:         models.PartyTeam,
		Size:         5,
		ExcludeOwner: "self",
		Rating:       1200,
		MaxRatingGap: 40,
	}
	candidates, err := store.FindCandidates(ctx, filter)
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[0].OwnerID != "closer" || candidates[1].OwnerID != "close" {
		t.Errorf("order = [%s %s], want closest rating first", candidates[0].OwnerID, candidates[1].OwnerID)
	}

	// A negative gap disables the limit.
	filter.MaxRatingGap = -1
	candidates, _ = store.FindCandidates(ctx, filter)
	if len(candidates) != 3 {
		t.Errorf("unlimited gap should include the 1500 entry, got %d", len(candidates))
	}
}

func seedAwaitingMatch(t *testing.T, store *MemoryStore, id string) {
	t.Helper()
	err := store.CreateMatch(context.Background(), &models.Match{
		ID:     id,
		Home:   models.RosterSnapshot{OwnerID: "team-a"},
		Away:   models.RosterSnapshot{OwnerID: "team-b"},
		Status: models.MatchStatusAwaitingResult,
	})
	if err != nil {
		t.Fatalf("CreateMatch: %v", err)
	}
}

func TestCastVote_OnePerSide(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedAwaitingMatch(t, store, "m1")

	vote := models.Vote{VoterID: "a1", Outcome: models.OutcomeWin, CastAt: time.Now()}
	if err := store.CastVote(ctx, "m1", models.SideHome, vote); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	err := store.CastVote(ctx, "m1", models.SideHome, models.Vote{VoterID: "a2", Outcome: models.OutcomeLoss})
	if !errors.Is(err, ErrVoteSlotTaken) {
		t.Errorf("second home vote = %v, want ErrVoteSlotTaken", err)
	}

	if err := store.CastVote(ctx, "m1", models.SideAway, models.Vote{VoterID: "b1", Outcome: models.OutcomeLoss}); err != nil {
		t.Fatalf("away vote: %v", err)
	}
	err = store.CastVote(ctx, "m1", models.SideAway, models.Vote{VoterID: "b2", Outcome: models.OutcomeWin})
	if !errors.Is(err, ErrMatchDecided) {
		t.Errorf("vote after both slots filled = %v, want ErrMatchDecided", err)
	}

	if err := store.CastVote(ctx, "missing", models.SideHome, vote); !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("vote on missing match = %v, want ErrMatchNotFound", err)
	}
}

func TestCastVote_ConcurrentSingleWinner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedAwaitingMatch(t, store, "m1")

	const voters = 8
	var wg sync.WaitGroup
	results := make([]error, voters)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.CastVote(ctx, "m1", models.SideHome, models.Vote{VoterID: "racer", Outcome: models.OutcomeWin})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrVoteSlotTaken) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d votes landed, want exactly 1", succeeded)
	}
}

func TestClearVotes_OnlyWithBothVotes(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedAwaitingMatch(t, store, "m1")

	store.CastVote(ctx, "m1", models.SideHome, models.Vote{VoterID: "a1", Outcome: models.OutcomeWin})

	cleared, err := store.ClearVotes(ctx, "m1")
	if err != nil || cleared {
		t.Errorf("ClearVotes with one vote = %v, %v, want false", cleared, err)
	}

	store.CastVote(ctx, "m1", models.SideAway, models.Vote{VoterID: "b1", Outcome: models.OutcomeWin})

	cleared, err = store.ClearVotes(ctx, "m1")
	if err != nil || !cleared {
		t.Fatalf("ClearVotes with both votes = %v, %v, want true", cleared, err)
	}
	// A racing second reset finds nothing to clear.
	cleared, _ = store.ClearVotes(ctx, "m1")
	if cleared {
		t.Error("second ClearVotes should report false")
	}
}

func TestSetStatus_SingleWinner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedAwaitingMatch(t, store, "m1")

	won, err := store.SetStatus(ctx, "m1", models.MatchStatusSettled)
	if err != nil || !won {
		t.Fatalf("first SetStatus = %v, %v, want true", won, err)
	}
	won, err = store.SetStatus(ctx, "m1", models.MatchStatusVoided)
	if err != nil || won {
		t.Errorf("second SetStatus = %v, %v, want false", won, err)
	}

	match, _ := store.GetMatch(ctx, "m1")
	if match.Status != models.MatchStatusSettled {
		t.Errorf("status = %s, the losing transition must not apply", match.Status)
	}
}

func TestGetMatch_ReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedAwaitingMatch(t, store, "m1")

	first, _ := store.GetMatch(ctx, "m1")
	first.Status = models.MatchStatusVoided
	first.Home.OwnerID = "hijacked"

	second, _ := store.GetMatch(ctx, "m1")
	if second.Status != models.MatchStatusAwaitingResult || second.Home.OwnerID != "team-a" {
		t.Error("mutating a returned match leaked into the store")
	}
}
