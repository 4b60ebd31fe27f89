package repository

import (
	"context"
	"errors"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
)

// Storage-level errors. Services translate these into user-facing ones.
var (
	ErrAlreadyReserved = errors.New("queue entry already reserved")
	ErrEntryNotFound   = errors.New("queue entry not found")
	ErrVoteSlotTaken   = errors.New("vote already recorded for this side")
	ErrMatchDecided    = errors.New("match already has both votes")
	ErrMatchNotFound   = errors.New("match not found")
)

// CandidateFilter narrows the queue to entries a given party could be paired
// with. MaxRatingGap < 0 means unlimited.
type CandidateFilter struct {
	Region       models.Region
	Kind         models.PartyKind
	Size         int
	Ranked       bool
	ExcludeOwner string
	Rating       int
	MaxRatingGap int
}

// QueueStore holds the parties currently seeking a match. Reserve and
// Release are the single mutual-exclusion primitive shared by the scheduler
// and the challenge coordinator: Reserve is all-or-nothing and fails if any
// of the entries is already reserved.
type QueueStore interface {
	Upsert(ctx context.Context, entry *models.QueueEntry) error
	Remove(ctx context.Context, ownerID string) error
	FindByOwner(ctx context.Context, ownerID string) (*models.QueueEntry, error)
	FindByID(ctx context.Context, id string) (*models.QueueEntry, error)
	// ListSearching returns unreserved auto-search entries in insertion order.
	ListSearching(ctx context.Context) ([]*models.QueueEntry, error)
	// FindCandidates returns matching unreserved entries sorted by rating gap
	// ascending, then matchmaking attempts descending.
	FindCandidates(ctx context.Context, filter CandidateFilter) ([]*models.QueueEntry, error)
	Reserve(ctx context.Context, entryIDs []string, challengeID string) error
	Release(ctx context.Context, challengeID string) error
	IncrementAttempts(ctx context.Context, entryID string) error
}

type ChallengeStore interface {
	Create(ctx context.Context, challenge *models.Challenge) error
	Get(ctx context.Context, id string) (*models.Challenge, error)
	// FindByEntry returns the active challenge reserving the given queue
	// entry, or nil.
	FindByEntry(ctx context.Context, entryID string) (*models.Challenge, error)
	AttachPrompt(ctx context.Context, id, promptRef string) error
	// Delete removes the challenge and reports whether this call removed it.
	// Racing resolutions are decided by whoever deletes first.
	Delete(ctx context.Context, id string) (bool, error)
}

type MatchStore interface {
	CreateMatch(ctx context.Context, match *models.Match) error
	GetMatch(ctx context.Context, id string) (*models.Match, error)
	// CastVote records a side's vote if and only if that slot is still empty
	// and the match is still awaiting its result. Returns ErrVoteSlotTaken or
	// ErrMatchDecided otherwise.
	CastVote(ctx context.Context, matchID string, side models.Side, vote models.Vote) error
	// ClearVotes empties both vote slots if both are currently set. Returns
	// false when another caller already cleared them.
	ClearVotes(ctx context.Context, matchID string) (bool, error)
	// SetStatus moves the match out of awaiting_result. Returns false when
	// the match was already decided, so the transition fires exactly once.
	SetStatus(ctx context.Context, matchID string, status models.MatchStatus) (bool, error)
	MarkRatingsApplied(ctx context.Context, matchID string) error
	AppendSubRequest(ctx context.Context, matchID string, sub models.SubRequest) error
}

type RatingStore interface {
	GetRating(ctx context.Context, playerID string, region models.Region, category models.PositionCategory) (*models.RatingRecord, error)
	UpsertRating(ctx context.Context, record *models.RatingRecord) error
	TopPlayers(ctx context.Context, region models.Region, category models.PositionCategory, limit int) ([]*models.RatingRecord, error)
}

// RosterStore is the persistence side of the roster collaborator. Roster
// CRUD itself lives upstream; the matchmaking core only reads rosters,
// resets them after finalization and writes team ratings.
type RosterStore interface {
	GetRoster(ctx context.Context, ownerID string) (*models.Roster, error)
	SaveRoster(ctx context.Context, roster *models.Roster) error
	UpdateTeamRating(ctx context.Context, ownerID string, rating int) error
	TopTeams(ctx context.Context, region models.Region, limit int) ([]*models.Roster, error)
}
