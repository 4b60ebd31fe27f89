package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
	"github.com/grassehh/pso-matchmaker-sub000/pkg/database"
)

type QueueRepository struct {
	db *database.DB
}

func NewQueueRepository(db *database.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

const queueColumns = `id, owner_id, kind, region, size, ranked, auto_search,
       team_rating, matchmaking_attempts, reserved_by_challenge, inserted_at`

func scanQueueEntry(row interface{ Scan(...any) error }) (*models.QueueEntry, error) {
	entry := &models.QueueEntry{}
	err := row.Scan(
		&entry.ID,
		&entry.OwnerID,
		&entry.Kind,
		&entry.Region,
		&entry.Size,
		&entry.Ranked,
		&entry.AutoSearch,
		&entry.TeamRating,
		&entry.MatchmakingAttempts,
		&entry.ReservedByChallenge,
		&entry.InsertedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *QueueRepository) Upsert(ctx context.Context, entry *models.QueueEntry) error {
	query := `
		INSERT INTO queue_entries (id, owner_id, kind, region, size, ranked, auto_search,
		                           team_rating, matchmaking_attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (owner_id)
		DO UPDATE SET
			kind = EXCLUDED.kind,
			region = EXCLUDED.region,
			size = EXCLUDED.size,
			ranked = EXCLUDED.ranked,
			auto_search = EXCLUDED.auto_search,
			team_rating = EXCLUDED.team_rating
		RETURNING id, inserted_at
	`
	err := r.db.QueryRowContext(ctx, query,
		entry.ID,
		entry.OwnerID,
		entry.Kind,
		entry.Region,
		entry.Size,
		entry.Ranked,
		entry.AutoSearch,
		entry.TeamRating,
		entry.MatchmakingAttempts,
	).Scan(&entry.ID, &entry.InsertedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert queue entry: %w", err)
	}
	return nil
}

func (r *QueueRepository) Remove(ctx context.Context, ownerID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE owner_id = $1`, ownerID)
	if err != nil {
		return fmt.Errorf("failed to remove queue entry: %w", err)
	}
	return nil
}

func (r *QueueRepository) FindByOwner(ctx context.Context, ownerID string) (*models.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_entries WHERE owner_id = $1`
	entry, err := scanQueueEntry(r.db.QueryRowContext(ctx, query, ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to find queue entry by owner: %w", err)
	}
	return entry, nil
}

func (r *QueueRepository) FindByID(ctx context.Context, id string) (*models.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_entries WHERE id = $1`
	entry, err := scanQueueEntry(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to find queue entry: %w", err)
	}
	return entry, nil
}

func (r *QueueRepository) ListSearching(ctx context.Context) ([]*models.QueueEntry, error) {
	query := `
		SELECT ` + queueColumns + `
		FROM queue_entries
		WHERE auto_search = TRUE
		  AND reserved_by_challenge IS NULL
		ORDER BY inserted_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list searching entries: %w", err)
	}
	defer rows.Close()
	return collectQueueEntries(rows)
}

func (r *QueueRepository) FindCandidates(ctx context.Context, filter CandidateFilter) ([]*models.QueueEntry, error) {
	// MaxRatingGap < 0 disables the gap bound (attempts >= 30).
	query := `
		SELECT ` + queueColumns + `
		FROM queue_entries
		WHERE region = $1
		  AND kind = $2
		  AND size = $3
		  AND ranked = $4
		  AND owner_id != $5
		  AND reserved_by_challenge IS NULL
		  AND ($7 < 0 OR ABS(team_rating - $6) <= $7)
		ORDER BY ABS(team_rating - $6) ASC, matchmaking_attempts DESC
	`
	rows, err := r.db.QueryContext(ctx, query,
		filter.Region,
		filter.Kind,
		filter.Size,
		filter.Ranked,
		filter.ExcludeOwner,
		filter.Rating,
		filter.MaxRatingGap,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find candidates: %w", err)
	}
	defer rows.Close()
	return collectQueueEntries(rows)
}

func collectQueueEntries(rows *sql.Rows) ([]*models.QueueEntry, error) {
	var entries []*models.QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Reserve marks all entries as held by the challenge in a single conditional
// update. If any entry is missing or already reserved, nothing is changed.
func (r *QueueRepository) Reserve(ctx context.Context, entryIDs []string, challengeID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reserve tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE queue_entries
		SET reserved_by_challenge = $1
		WHERE id = ANY($2)
		  AND reserved_by_challenge IS NULL
	`, challengeID, pq.Array(entryIDs))
	if err != nil {
		return fmt.Errorf("failed to reserve queue entries: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read reserve result: %w", err)
	}
	if int(affected) != len(entryIDs) {
		return ErrAlreadyReserved
	}
	return tx.Commit()
}

func (r *QueueRepository) Release(ctx context.Context, challengeID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE queue_entries
		SET reserved_by_challenge = NULL
		WHERE reserved_by_challenge = $1
	`, challengeID)
	if err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}
	return nil
}

func (r *QueueRepository) IncrementAttempts(ctx context.Context, entryID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE queue_entries
		SET matchmaking_attempts = matchmaking_attempts + 1
		WHERE id = $1
	`, entryID)
	if err != nil {
		return fmt.Errorf("failed to increment attempts: %w", err)
	}
	return nil
}
