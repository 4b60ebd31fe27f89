package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
	"github.com/grassehh/pso-matchmaker-sub000/pkg/database"
)

type RatingRepository struct {
	db *database.DB
}

func NewRatingRepository(db *database.DB) *RatingRepository {
	return &RatingRepository{db: db}
}

func (r *RatingRepository) GetRating(ctx context.Context, playerID string, region models.Region, category models.PositionCategory) (*models.RatingRecord, error) {
	query := `
		SELECT player_id, region, category, rating, wins, draws, losses, updated_at
		FROM player_ratings
		WHERE player_id = $1 AND region = $2 AND category = $3
	`
	record := &models.RatingRecord{}
	err := r.db.QueryRowContext(ctx, query, playerID, region, category).Scan(
		&record.PlayerID,
		&record.Region,
		&record.Category,
		&record.Rating,
		&record.Wins,
		&record.Draws,
		&record.Losses,
		&record.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rating: %w", err)
	}
	return record, nil
}

func (r *RatingRepository) UpsertRating(ctx context.Context, record *models.RatingRecord) error {
	query := `
		INSERT INTO player_ratings (player_id, region, category, rating, wins, draws, losses, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (player_id, region, category)
		DO UPDATE SET
			rating = EXCLUDED.rating,
			wins = EXCLUDED.wins,
			draws = EXCLUDED.draws,
			losses = EXCLUDED.losses,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query,
		record.PlayerID,
		record.Region,
		record.Category,
		record.Rating,
		record.Wins,
		record.Draws,
		record.Losses,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}
	return nil
}

func (r *RatingRepository) TopPlayers(ctx context.Context, region models.Region, category models.PositionCategory, limit int) ([]*models.RatingRecord, error) {
	query := `
		SELECT player_id, region, category, rating, wins, draws, losses, updated_at
		FROM player_ratings
		WHERE region = $1 AND category = $2
		ORDER BY rating DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, region, category, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top players: %w", err)
	}
	defer rows.Close()

	var records []*models.RatingRecord
	for rows.Next() {
		record := &models.RatingRecord{}
		err := rows.Scan(
			&record.PlayerID,
			&record.Region,
			&record.Category,
			&record.Rating,
			&record.Wins,
			&record.Draws,
			&record.Losses,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rating: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
