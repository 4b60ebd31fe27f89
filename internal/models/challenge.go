package models

import "time"

type ChallengeStatus string

const (
	ChallengeStatusProposed  ChallengeStatus = "proposed"
	ChallengeStatusAccepted  ChallengeStatus = "accepted"
	ChallengeStatusRefused   ChallengeStatus = "refused"
	ChallengeStatusCancelled ChallengeStatus = "cancelled"
)

// Challenge is a direct pairing proposal between two specific queue entries.
// For its whole lifetime it holds the exclusive reservation over both
// entries; every deletion path must release that reservation.
//
// PromptRefs are opaque handles to the outward-facing prompt messages. They
// are owned by the presentation layer and only stored here so the prompts can
// be cleaned up when the challenge is resolved.
type Challenge struct {
	ID               string          `json:"id" db:"id"`
	InitiatorID      string          `json:"initiatorId" db:"initiator_id"`
	InitiatorEntryID string          `json:"initiatorEntryId" db:"initiator_entry_id"`
	TargetEntryID    string          `json:"targetEntryId" db:"target_entry_id"`
	Status           ChallengeStatus `json:"status" db:"status"`
	PromptRefs       []string        `json:"promptRefs,omitempty"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
}

// References reports whether the challenge reserves the given queue entry.
func (c *Challenge) References(entryID string) bool {
	return c.InitiatorEntryID == entryID || c.TargetEntryID == entryID
}
