package models

import "time"

type MatchStatus string

const (
	MatchStatusAwaitingResult MatchStatus = "awaiting_result"
	MatchStatusSettled        MatchStatus = "settled"
	MatchStatusVoided         MatchStatus = "voided"
)

type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

func (s Side) Opposite() Side {
	if s == SideHome {
		return SideAway
	}
	return SideHome
}

type Outcome string

const (
	OutcomeWin    Outcome = "win"
	OutcomeDraw   Outcome = "draw"
	OutcomeLoss   Outcome = "loss"
	OutcomeCancel Outcome = "cancel"
)

// Score maps an outcome to the Elo score of the side that reported it.
func (o Outcome) Score() float64 {
	switch o {
	case OutcomeWin:
		return 1.0
	case OutcomeDraw:
		return 0.5
	default:
		return 0.0
	}
}

// Vote is a single side's reported outcome. One per side, first write wins.
type Vote struct {
	VoterID string    `json:"voterId"`
	Outcome Outcome   `json:"outcome"`
	CastAt  time.Time `json:"castAt"`
}

type SnapshotSlot struct {
	Position   string           `json:"position"`
	Category   PositionCategory `json:"category"`
	PlayerID   string           `json:"playerId"`
	PlayerName string           `json:"playerName"`
}

// RosterSnapshot is the frozen copy of a party's lineup at match creation
// time. It is written once by the finalizer and never mutated; later edits to
// the live roster do not reach it.
type RosterSnapshot struct {
	OwnerID    string         `json:"ownerId"`
	Name       string         `json:"name"`
	Kind       PartyKind      `json:"kind"`
	Region     Region         `json:"region"`
	Size       int            `json:"size"`
	TeamRating int            `json:"teamRating"`
	Slots      []SnapshotSlot `json:"slots"`
}

// PlayerIDs returns the ids of all snapshotted players, fillers excluded.
func (s *RosterSnapshot) PlayerIDs() []string {
	ids := make([]string, 0, len(s.Slots))
	for _, slot := range s.Slots {
		if slot.PlayerID != "" && slot.PlayerID != FillerPlayerID {
			ids = append(ids, slot.PlayerID)
		}
	}
	return ids
}

type SubRequest struct {
	PlayerID    string    `json:"playerId"`
	Position    string    `json:"position"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Match is the immutable artifact of a successful pairing. After creation
// only the vote slots (set at most once each, cleared together on an
// inconsistent pair), the status, the ratings-applied marker and the
// append-only sub request list ever change.
type Match struct {
	ID             string         `json:"id" db:"id"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	LobbyName      string         `json:"lobbyName" db:"lobby_name"`
	LobbyPassword  string         `json:"lobbyPassword" db:"lobby_password"`
	Home           RosterSnapshot `json:"home"`
	Away           RosterSnapshot `json:"away"`
	Ranked         bool           `json:"ranked" db:"ranked"`
	ChallengeID    *string        `json:"challengeId,omitempty" db:"challenge_id"`
	Status         MatchStatus    `json:"status" db:"status"`
	HomeVote       *Vote          `json:"homeVote,omitempty"`
	AwayVote       *Vote          `json:"awayVote,omitempty"`
	RatingsApplied bool           `json:"ratingsApplied" db:"ratings_applied"`
	SubRequests    []SubRequest   `json:"subRequests,omitempty"`
}

func (m *Match) Vote(side Side) *Vote {
	if side == SideHome {
		return m.HomeVote
	}
	return m.AwayVote
}

func (m *Match) BothVoted() bool {
	return m.HomeVote != nil && m.AwayVote != nil
}

func (m *Match) Snapshot(side Side) *RosterSnapshot {
	if side == SideHome {
		return &m.Home
	}
	return &m.Away
}

// SideOf returns which side the given party owner played on.
func (m *Match) SideOf(ownerID string) (Side, bool) {
	switch ownerID {
	case m.Home.OwnerID:
		return SideHome, true
	case m.Away.OwnerID:
		return SideAway, true
	}
	return "", false
}

// ConsistentVotes reports whether two recorded outcomes agree. Only
// (win,loss), (loss,win) and (draw,draw) settle a match; cancel is handled
// separately and voids it.
func ConsistentVotes(home, away Outcome) bool {
	switch {
	case home == OutcomeWin && away == OutcomeLoss:
		return true
	case home == OutcomeLoss && away == OutcomeWin:
		return true
	case home == OutcomeDraw && away == OutcomeDraw:
		return true
	}
	return false
}
