package notify

import "context"

// Event types pushed to parties and players during the match lifecycle.
const (
	EventChallengeReceived  = "challenge_received"
	EventChallengeRefused   = "challenge_refused"
	EventChallengeCancelled = "challenge_cancelled"
	EventMatchReady         = "match_ready"
	EventVoteRecorded       = "vote_recorded"
	EventRevoteRequested    = "revote_requested"
	EventMatchSettled       = "match_settled"
	EventMatchVoided        = "match_voided"
	EventSubRequested       = "sub_requested"
)

type Event struct {
	Type        string         `json:"type"`
	MatchID     string         `json:"matchId,omitempty"`
	ChallengeID string         `json:"challengeId,omitempty"`
	Message     string         `json:"message,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// Gateway delivers events to a recipient (a party owner or a player).
// Delivery is best effort: implementations log failures instead of returning
// them, and no core operation ever blocks on delivery.
type Gateway interface {
	Notify(ctx context.Context, recipientID string, event Event)
}

// Noop discards every event. Used when no delivery backend is configured.
type Noop struct{}

func (Noop) Notify(context.Context, string, Event) {}

// Multi fans an event out to several gateways.
type Multi []Gateway

func (m Multi) Notify(ctx context.Context, recipientID string, event Event) {
	for _, gateway := range m {
		gateway.Notify(ctx, recipientID, event)
	}
}
