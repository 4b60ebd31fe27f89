package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
	"github.com/grassehh/pso-matchmaker-sub000/pkg/database"
)

type MatchRepository struct {
	db *database.DB
}

func NewMatchRepository(db *database.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// Roster snapshots, votes and sub requests are stored as JSONB. Snapshots
// are written once at creation and never updated; vote columns carry the
// first-write-wins guard in their WHERE clauses.
func (r *MatchRepository) CreateMatch(ctx context.Context, match *models.Match) error {
	home, err := json.Marshal(match.Home)
	if err != nil {
		return fmt.Errorf("failed to marshal home snapshot: %w", err)
	}
	away, err := json.Marshal(match.Away)
	if err != nil {
		return fmt.Errorf("failed to marshal away snapshot: %w", err)
	}

	query := `
		INSERT INTO matches (id, lobby_name, lobby_password, home_snapshot, away_snapshot,
		                     ranked, challenge_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err = r.db.QueryRowContext(ctx, query,
		match.ID,
		match.LobbyName,
		match.LobbyPassword,
		home,
		away,
		match.Ranked,
		match.ChallengeID,
		match.Status,
	).Scan(&match.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}

func (r *MatchRepository) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	query := `
		SELECT id, created_at, lobby_name, lobby_password, home_snapshot, away_snapshot,
		       ranked, challenge_id, status, home_vote, away_vote, ratings_applied, sub_requests
		FROM matches
		WHERE id = $1
	`
	match := &models.Match{}
	var home, away []byte
	var homeVote, awayVote, subRequests []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&match.ID,
		&match.CreatedAt,
		&match.LobbyName,
		&match.LobbyPassword,
		&home,
		&away,
		&match.Ranked,
		&match.ChallengeID,
		&match.Status,
		&homeVote,
		&awayVote,
		&match.RatingsApplied,
		&subRequests,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}

	if err := json.Unmarshal(home, &match.Home); err != nil {
		return nil, fmt.Errorf("failed to unmarshal home snapshot: %w", err)
	}
	if err := json.Unmarshal(away, &match.Away); err != nil {
		return nil, fmt.Errorf("failed to unmarshal away snapshot: %w", err)
	}
	if homeVote != nil {
		match.HomeVote = &models.Vote{}
		if err := json.Unmarshal(homeVote, match.HomeVote); err != nil {
			return nil, fmt.Errorf("failed to unmarshal home vote: %w", err)
		}
	}
	if awayVote != nil {
		match.AwayVote = &models.Vote{}
		if err := json.Unmarshal(awayVote, match.AwayVote); err != nil {
			return nil, fmt.Errorf("failed to unmarshal away vote: %w", err)
		}
	}
	if subRequests != nil {
		if err := json.Unmarshal(subRequests, &match.SubRequests); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sub requests: %w", err)
		}
	}
	return match, nil
}

func (r *MatchRepository) CastVote(ctx context.Context, matchID string, side models.Side, vote models.Vote) error {
	payload, err := json.Marshal(vote)
	if err != nil {
		return fmt.Errorf("failed to marshal vote: %w", err)
	}

	column := "home_vote"
	if side == models.SideAway {
		column = "away_vote"
	}

	// The column guard makes the write first-wins; two near-simultaneous
	// votes for the same side cannot both land.
	query := fmt.Sprintf(`
		UPDATE matches
		SET %s = $2
		WHERE id = $1
		  AND %s IS NULL
		  AND status = 'awaiting_result'
	`, column, column)

	result, err := r.db.ExecContext(ctx, query, matchID, payload)
	if err != nil {
		return fmt.Errorf("failed to cast vote: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read vote result: %w", err)
	}
	if affected > 0 {
		return nil
	}

	match, err := r.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if match == nil {
		return ErrMatchNotFound
	}
	if match.Status != models.MatchStatusAwaitingResult || match.BothVoted() {
		return ErrMatchDecided
	}
	return ErrVoteSlotTaken
}

// ClearVotes resets both vote slots only while both are populated, so a
// detected inconsistency is reset exactly once even if both sides race to
// trigger the check.
func (r *MatchRepository) ClearVotes(ctx context.Context, matchID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE matches
		SET home_vote = NULL, away_vote = NULL
		WHERE id = $1
		  AND home_vote IS NOT NULL
		  AND away_vote IS NOT NULL
	`, matchID)
	if err != nil {
		return false, fmt.Errorf("failed to clear votes: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read clear result: %w", err)
	}
	return affected > 0, nil
}

func (r *MatchRepository) SetStatus(ctx context.Context, matchID string, status models.MatchStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE matches
		SET status = $2
		WHERE id = $1
		  AND status = 'awaiting_result'
	`, matchID, status)
	if err != nil {
		return false, fmt.Errorf("failed to set match status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read status result: %w", err)
	}
	return affected > 0, nil
}

func (r *MatchRepository) MarkRatingsApplied(ctx context.Context, matchID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE matches
		SET ratings_applied = TRUE
		WHERE id = $1
	`, matchID)
	if err != nil {
		return fmt.Errorf("failed to mark ratings applied: %w", err)
	}
	return nil
}

func (r *MatchRepository) AppendSubRequest(ctx context.Context, matchID string, sub models.SubRequest) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal sub request: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE matches
		SET sub_requests = COALESCE(sub_requests, '[]'::jsonb) || $2::jsonb
		WHERE id = $1
	`, matchID, payload)
	if err != nil {
		return fmt.Errorf("failed to append sub request: %w", err)
	}
	return nil
}
