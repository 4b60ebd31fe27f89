package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
	"github.com/grassehh/pso-matchmaker-sub000/pkg/database"
)

type ChallengeRepository struct {
	db *database.DB
}

func NewChallengeRepository(db *database.DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

func (r *ChallengeRepository) Create(ctx context.Context, challenge *models.Challenge) error {
	query := `
		INSERT INTO challenges (id, initiator_id, initiator_entry_id, target_entry_id, status, prompt_refs)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		challenge.ID,
		challenge.InitiatorID,
		challenge.InitiatorEntryID,
		challenge.TargetEntryID,
		challenge.Status,
		pq.Array(challenge.PromptRefs),
	).Scan(&challenge.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create challenge: %w", err)
	}
	return nil
}

func scanChallenge(row interface{ Scan(...any) error }) (*models.Challenge, error) {
	challenge := &models.Challenge{}
	var refs pq.StringArray
	err := row.Scan(
		&challenge.ID,
		&challenge.InitiatorID,
		&challenge.InitiatorEntryID,
		&challenge.TargetEntryID,
		&challenge.Status,
		&refs,
		&challenge.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	challenge.PromptRefs = refs
	return challenge, nil
}

func (r *ChallengeRepository) Get(ctx context.Context, id string) (*models.Challenge, error) {
	query := `
		SELECT id, initiator_id, initiator_entry_id, target_entry_id, status, prompt_refs, created_at
		FROM challenges
		WHERE id = $1
	`
	challenge, err := scanChallenge(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return challenge, nil
}

func (r *ChallengeRepository) FindByEntry(ctx context.Context, entryID string) (*models.Challenge, error) {
	query := `
		SELECT id, initiator_id, initiator_entry_id, target_entry_id, status, prompt_refs, created_at
		FROM challenges
		WHERE initiator_entry_id = $1 OR target_entry_id = $1
	`
	challenge, err := scanChallenge(r.db.QueryRowContext(ctx, query, entryID))
	if err != nil {
		return nil, fmt.Errorf("failed to find challenge by entry: %w", err)
	}
	return challenge, nil
}

func (r *ChallengeRepository) AttachPrompt(ctx context.Context, id, promptRef string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE challenges
		SET prompt_refs = array_append(prompt_refs, $2)
		WHERE id = $1
	`, id, promptRef)
	if err != nil {
		return fmt.Errorf("failed to attach prompt: %w", err)
	}
	return nil
}

// Delete reports whether this call removed the challenge; a concurrent
// accept/refuse/cancel race is decided by whichever delete lands first.
func (r *ChallengeRepository) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM challenges WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete challenge: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected > 0, nil
}
