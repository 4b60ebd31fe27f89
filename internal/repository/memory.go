package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
)

// MemoryStore implements every store interface with in-process state. It is
// the development-mode backend and the substrate for service tests. All
// compare-and-set semantics of the postgres implementations are preserved
// under a single mutex.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*models.QueueEntry // by entry id
	challenges map[string]*models.Challenge
	matches    map[string]*models.Match
	ratings    map[string]*models.RatingRecord // playerID|region|category
	rosters    map[string]*models.Roster       // by owner id
	seq        int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]*models.QueueEntry),
		challenges: make(map[string]*models.Challenge),
		matches:    make(map[string]*models.Match),
		ratings:    make(map[string]*models.RatingRecord),
		rosters:    make(map[string]*models.Roster),
	}
}

func shortID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func ratingKey(playerID string, region models.Region, category models.PositionCategory) string {
	return playerID + "|" + string(region) + "|" + string(category)
}

func copyEntry(e *models.QueueEntry) *models.QueueEntry {
	if e == nil {
		return nil
	}
	clone := *e
	if e.ReservedByChallenge != nil {
		id := *e.ReservedByChallenge
		clone.ReservedByChallenge = &id
	}
	return &clone
}

func copyChallenge(c *models.Challenge) *models.Challenge {
	if c == nil {
		return nil
	}
	clone := *c
	clone.PromptRefs = append([]string(nil), c.PromptRefs...)
	return &clone
}

func copyMatch(m *models.Match) *models.Match {
	if m == nil {
		return nil
	}
	clone := *m
	if m.ChallengeID != nil {
		id := *m.ChallengeID
		clone.ChallengeID = &id
	}
	if m.HomeVote != nil {
		v := *m.HomeVote
		clone.HomeVote = &v
	}
	if m.AwayVote != nil {
		v := *m.AwayVote
		clone.AwayVote = &v
	}
	clone.Home.Slots = append([]models.SnapshotSlot(nil), m.Home.Slots...)
	clone.Away.Slots = append([]models.SnapshotSlot(nil), m.Away.Slots...)
	clone.SubRequests = append([]models.SubRequest(nil), m.SubRequests...)
	return &clone
}

// --- QueueStore ---

func (s *MemoryStore) Upsert(_ context.Context, entry *models.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// One entry per owning party: replace in place, keep identity and age.
	// Reservation state and the attempts counter survive a re-queue, same as
	// the SQL upsert which never writes those columns on conflict.
	for _, existing := range s.entries {
		if existing.OwnerID == entry.OwnerID {
			entry.ID = existing.ID
			entry.InsertedAt = existing.InsertedAt
			entry.ReservedByChallenge = existing.ReservedByChallenge
			entry.MatchmakingAttempts = existing.MatchmakingAttempts
			s.entries[existing.ID] = copyEntry(entry)
			return nil
		}
	}
	if entry.ID == "" {
		entry.ID = shortID()
	}
	if entry.InsertedAt.IsZero() {
		s.seq++
		entry.InsertedAt = time.Now().Add(time.Duration(s.seq) * time.Microsecond)
	}
	s.entries[entry.ID] = copyEntry(entry)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.entries {
		if entry.OwnerID == ownerID {
			delete(s.entries, id)
		}
	}
	return nil
}

func (s *MemoryStore) FindByOwner(_ context.Context, ownerID string) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.OwnerID == ownerID {
			return copyEntry(entry), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyEntry(s.entries[id]), nil
}

func (s *MemoryStore) ListSearching(_ context.Context) ([]*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.QueueEntry
	for _, entry := range s.entries {
		if entry.AutoSearch && entry.ReservedByChallenge == nil {
			out = append(out, copyEntry(entry))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].InsertedAt.Before(out[j].InsertedAt)
	})
	return out, nil
}

func (s *MemoryStore) FindCandidates(_ context.Context, filter CandidateFilter) ([]*models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.QueueEntry
	for _, entry := range s.entries {
		if entry.ReservedByChallenge != nil || entry.OwnerID == filter.ExcludeOwner {
			continue
		}
		if entry.Region != filter.Region || entry.Kind != filter.Kind ||
			entry.Size != filter.Size || entry.Ranked != filter.Ranked {
			continue
		}
		gap := entry.TeamRating - filter.Rating
		if gap < 0 {
			gap = -gap
		}
		if filter.MaxRatingGap >= 0 && gap > filter.MaxRatingGap {
			continue
		}
		out = append(out, copyEntry(entry))
	}
	sort.Slice(out, func(i, j int) bool {
		gi := absInt(out[i].TeamRating - filter.Rating)
		gj := absInt(out[j].TeamRating - filter.Rating)
		if gi != gj {
			return gi < gj
		}
		return out[i].MatchmakingAttempts > out[j].MatchmakingAttempts
	})
	return out, nil
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func (s *MemoryStore) Reserve(_ context.Context, entryIDs []string, challengeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range entryIDs {
		entry, ok := s.entries[id]
		if !ok {
			return ErrEntryNotFound
		}
		if entry.ReservedByChallenge != nil {
			return ErrAlreadyReserved
		}
	}
	for _, id := range entryIDs {
		cid := challengeID
		s.entries[id].ReservedByChallenge = &cid
	}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, challengeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.ReservedByChallenge != nil && *entry.ReservedByChallenge == challengeID {
			entry.ReservedByChallenge = nil
		}
	}
	return nil
}

func (s *MemoryStore) IncrementAttempts(_ context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[entryID]
	if !ok {
		return ErrEntryNotFound
	}
	entry.MatchmakingAttempts++
	return nil
}

// --- ChallengeStore ---

func (s *MemoryStore) Create(_ context.Context, challenge *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = time.Now()
	}
	s.challenges[challenge.ID] = copyChallenge(challenge)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyChallenge(s.challenges[id]), nil
}

func (s *MemoryStore) FindByEntry(_ context.Context, entryID string) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, challenge := range s.challenges {
		if challenge.References(entryID) {
			return copyChallenge(challenge), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) AttachPrompt(_ context.Context, id, promptRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	challenge, ok := s.challenges[id]
	if !ok {
		return nil
	}
	challenge.PromptRefs = append(challenge.PromptRefs, promptRef)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[id]; !ok {
		return false, nil
	}
	delete(s.challenges, id)
	return true, nil
}

// --- MatchStore ---

func (s *MemoryStore) CreateMatch(_ context.Context, match *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if match.CreatedAt.IsZero() {
		match.CreatedAt = time.Now()
	}
	s.matches[match.ID] = copyMatch(match)
	return nil
}

func (s *MemoryStore) GetMatch(_ context.Context, id string) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMatch(s.matches[id]), nil
}

func (s *MemoryStore) CastVote(_ context.Context, matchID string, side models.Side, vote models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[matchID]
	if !ok {
		return ErrMatchNotFound
	}
	if match.Status != models.MatchStatusAwaitingResult || match.BothVoted() {
		return ErrMatchDecided
	}
	if match.Vote(side) != nil {
		return ErrVoteSlotTaken
	}
	v := vote
	if side == models.SideHome {
		match.HomeVote = &v
	} else {
		match.AwayVote = &v
	}
	return nil
}

func (s *MemoryStore) ClearVotes(_ context.Context, matchID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[matchID]
	if !ok {
		return false, ErrMatchNotFound
	}
	if !match.BothVoted() {
		return false, nil
	}
	match.HomeVote = nil
	match.AwayVote = nil
	return true, nil
}

func (s *MemoryStore) SetStatus(_ context.Context, matchID string, status models.MatchStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[matchID]
	if !ok {
		return false, ErrMatchNotFound
	}
	if match.Status != models.MatchStatusAwaitingResult {
		return false, nil
	}
	match.Status = status
	return true, nil
}

func (s *MemoryStore) MarkRatingsApplied(_ context.Context, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[matchID]
	if !ok {
		return ErrMatchNotFound
	}
	match.RatingsApplied = true
	return nil
}

func (s *MemoryStore) AppendSubRequest(_ context.Context, matchID string, sub models.SubRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[matchID]
	if !ok {
		return ErrMatchNotFound
	}
	match.SubRequests = append(match.SubRequests, sub)
	return nil
}

// --- RatingStore ---

func (s *MemoryStore) GetRating(_ context.Context, playerID string, region models.Region, category models.PositionCategory) (*models.RatingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.ratings[ratingKey(playerID, region, category)]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryStore) UpsertRating(_ context.Context, record *models.RatingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	clone.UpdatedAt = time.Now()
	s.ratings[ratingKey(record.PlayerID, record.Region, record.Category)] = &clone
	return nil
}

func (s *MemoryStore) TopPlayers(_ context.Context, region models.Region, category models.PositionCategory, limit int) ([]*models.RatingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.RatingRecord
	for _, record := range s.ratings {
		if record.Region == region && record.Category == category {
			clone := *record
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- RosterStore ---

func (s *MemoryStore) GetRoster(_ context.Context, ownerID string) (*models.Roster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rosters[ownerID].Clone(), nil
}

func (s *MemoryStore) SaveRoster(_ context.Context, roster *models.Roster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rosters[roster.OwnerID] = roster.Clone()
	return nil
}

func (s *MemoryStore) UpdateTeamRating(_ context.Context, ownerID string, rating int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	roster, ok := s.rosters[ownerID]
	if !ok {
		return nil
	}
	roster.TeamRating = rating
	return nil
}

func (s *MemoryStore) TopTeams(_ context.Context, region models.Region, limit int) ([]*models.Roster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Roster
	for _, roster := range s.rosters {
		if roster.Kind == models.PartyTeam && roster.Region == region {
			out = append(out, roster.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TeamRating > out[j].TeamRating })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
