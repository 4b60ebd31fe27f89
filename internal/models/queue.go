package models

import "time"

// QueueEntry is a party actively looking for a match. At most one entry
// exists per owning party. An entry reserved by a challenge is invisible to
// the scheduler and cannot be challenged again until the reservation is
// released.
type QueueEntry struct {
	ID                  string    `json:"id" db:"id"`
	OwnerID             string    `json:"ownerId" db:"owner_id"`
	Kind                PartyKind `json:"kind" db:"kind"`
	Region              Region    `json:"region" db:"region"`
	Size                int       `json:"size" db:"size"`
	Ranked              bool      `json:"ranked" db:"ranked"`
	AutoSearch          bool      `json:"autoSearch" db:"auto_search"`
	TeamRating          int       `json:"teamRating" db:"team_rating"`
	MatchmakingAttempts int       `json:"matchmakingAttempts" db:"matchmaking_attempts"`
	ReservedByChallenge *string   `json:"reservedByChallenge,omitempty" db:"reserved_by_challenge"`
	InsertedAt          time.Time `json:"insertedAt" db:"inserted_at"`
}

func (e *QueueEntry) Reserved() bool {
	return e.ReservedByChallenge != nil
}
