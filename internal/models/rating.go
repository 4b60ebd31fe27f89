package models

import "time"

// DefaultRating is the starting rating for unrated players and teams.
const DefaultRating = 1200

// RatingRecord is a player's persisted skill rating for one region and one
// position category, with running result counters. Mutated only by the
// rating engine after a vote consensus.
type RatingRecord struct {
	PlayerID  string           `json:"playerId" db:"player_id"`
	Region    Region           `json:"region" db:"region"`
	Category  PositionCategory `json:"category" db:"category"`
	Rating    int              `json:"rating" db:"rating"`
	Wins      int              `json:"wins" db:"wins"`
	Draws     int              `json:"draws" db:"draws"`
	Losses    int              `json:"losses" db:"losses"`
	UpdatedAt time.Time        `json:"updatedAt" db:"updated_at"`
}

// Games is the number of rated matches on record, used to pick the K-factor
// bucket.
func (r *RatingRecord) Games() int {
	return r.Wins + r.Draws + r.Losses
}

func (r *RatingRecord) RecordOutcome(outcome Outcome) {
	switch outcome {
	case OutcomeWin:
		r.Wins++
	case OutcomeDraw:
		r.Draws++
	case OutcomeLoss:
		r.Losses++
	}
}
