package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
	"github.com/grassehh/pso-matchmaker-sub000/internal/notify"
	"github.com/grassehh/pso-matchmaker-sub000/internal/repository"
)

// recordingGateway captures delivered events so tests can assert on them.
type recordingGateway struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	recipient string
	event     notify.Event
}

func (g *recordingGateway) Notify(_ context.Context, recipientID string, event notify.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, recordedEvent{recipient: recipientID, event: event})
}

func (g *recordingGateway) byType(eventType string) []recordedEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []recordedEvent
	for _, recorded := range g.events {
		if recorded.event.Type == eventType {
			out = append(out, recorded)
		}
	}
	return out
}

var categoryCycle = []models.PositionCategory{
	models.CategoryKeeper,
	models.CategoryDefense,
	models.CategoryMidfield,
	models.CategoryAttack,
}

// testRoster builds a full roster of the given kind whose player ids are
// prefix1..prefixN.
func testRoster(ownerID string, kind models.PartyKind, size, rating int, prefix string) *models.Roster {
	slots := make([]models.RosterSlot, size)
	for i := range slots {
		category := categoryCycle[i%len(categoryCycle)]
		slots[i] = models.RosterSlot{
			Position: string(category),
			Category: category,
			Player:   &models.Player{ID: fmt.Sprintf("%s%d", prefix, i+1), Name: fmt.Sprintf("%s %d", prefix, i+1)},
		}
	}
	return &models.Roster{
		OwnerID:    ownerID,
		Name:       ownerID,
		Kind:       kind,
		Region:     models.RegionEurope,
		Size:       size,
		TeamRating: rating,
		Slots:      slots,
	}
}

type fixture struct {
	store       *repository.MemoryStore
	gateway     *recordingGateway
	rating      *RatingService
	finalizer   *FinalizerService
	matchmaking *MatchmakingService
	challenges  *ChallengeService
	voting      *VotingService
}

func newFixture() *fixture {
	store := repository.NewMemoryStore()
	gateway := &recordingGateway{}
	log := zap.NewNop()

	rating := NewRatingService(store, store, log)
	finalizer := NewFinalizerService(store, store, store, store, store, gateway, log)

	return &fixture{
		store:       store,
		gateway:     gateway,
		rating:      rating,
		finalizer:   finalizer,
		matchmaking: NewMatchmakingService(store, store, finalizer, nil, nil, 0, log),
		challenges:  NewChallengeService(store, store, store, finalizer, gateway, log),
		voting:      NewVotingService(store, rating, gateway, nil, log),
	}
}

func (f *fixture) saveRoster(t interface{ Fatalf(string, ...any) }, roster *models.Roster) {
	if err := f.store.SaveRoster(context.Background(), roster); err != nil {
		t.Fatalf("SaveRoster(%s): %v", roster.OwnerID, err)
	}
}

func (f *fixture) enqueue(t interface{ Fatalf(string, ...any) }, ownerID string) *models.QueueEntry {
	entry, err := f.matchmaking.EnterQueue(context.Background(), ownerID, false, true)
	if err != nil {
		t.Fatalf("EnterQueue(%s): %v", ownerID, err)
	}
	return entry
}

// latestMatch resolves the most recently finalized match through the
// match-ready notification.
func (f *fixture) latestMatch(t interface{ Fatalf(string, ...any) }) *models.Match {
	ready := f.gateway.byType(notify.EventMatchReady)
	if len(ready) == 0 {
		t.Fatalf("no match_ready event delivered")
	}
	match, err := f.store.GetMatch(context.Background(), ready[len(ready)-1].event.MatchID)
	if err != nil || match == nil {
		t.Fatalf("GetMatch(%s): %v, %v", ready[len(ready)-1].event.MatchID, match, err)
	}
	return match
}
