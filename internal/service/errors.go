package service

import "errors"

// Queue errors
var (
	ErrRosterNotFound = errors.New("roster not found")
	ErrNotQueued      = errors.New("party is not in the queue")
)

// Challenge errors
var (
	ErrTargetNotQueued    = errors.New("challenged party is no longer in the queue")
	ErrAlreadyNegotiating = errors.New("a challenge is already in progress")
	ErrSizeMismatch       = errors.New("party sizes do not match")
	ErrDuplicatePlayers   = errors.New("both rosters share a player")
	ErrChallengeNotFound  = errors.New("challenge not found")
)

// Voting errors
var (
	ErrMatchNotFound   = errors.New("match not found")
	ErrAlreadyVoted    = errors.New("this side already voted")
	ErrAlreadyDecided  = errors.New("match result is already decided")
	ErrInvalidOutcome  = errors.New("invalid outcome")
	ErrVoterNotInMatch = errors.New("voter is not part of this match")
)
