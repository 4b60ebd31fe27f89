package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/grassehh/pso-matchmaker-sub000/internal/models"
	"github.com/grassehh/pso-matchmaker-sub000/pkg/database"
)

// RosterRepository reads and resets live rosters. Roster composition is
// edited by the upstream team-management service; this side only touches the
// pieces the matchmaking core owns (post-match reset, team rating).
type RosterRepository struct {
	db *database.DB
}

func NewRosterRepository(db *database.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

func (r *RosterRepository) GetRoster(ctx context.Context, ownerID string) (*models.Roster, error) {
	query := `
		SELECT owner_id, name, kind, region, size, team_rating, slots, bench, draft_enabled
		FROM rosters
		WHERE owner_id = $1
	`
	roster := &models.Roster{}
	var slots, bench []byte
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(
		&roster.OwnerID,
		&roster.Name,
		&roster.Kind,
		&roster.Region,
		&roster.Size,
		&roster.TeamRating,
		&slots,
		&bench,
		&roster.DraftEnabled,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get roster: %w", err)
	}

	if err := json.Unmarshal(slots, &roster.Slots); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roster slots: %w", err)
	}
	if bench != nil {
		if err := json.Unmarshal(bench, &roster.Bench); err != nil {
			return nil, fmt.Errorf("failed to unmarshal roster bench: %w", err)
		}
	}
	return roster, nil
}

func (r *RosterRepository) SaveRoster(ctx context.Context, roster *models.Roster) error {
	slots, err := json.Marshal(roster.Slots)
	if err != nil {
		return fmt.Errorf("failed to marshal roster slots: %w", err)
	}
	bench, err := json.Marshal(roster.Bench)
	if err != nil {
		return fmt.Errorf("failed to marshal roster bench: %w", err)
	}
	query := `
		INSERT INTO rosters (owner_id, name, kind, region, size, team_rating, slots, bench, draft_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (owner_id)
		DO UPDATE SET
			name = EXCLUDED.name,
			kind = EXCLUDED.kind,
			region = EXCLUDED.region,
			size = EXCLUDED.size,
			team_rating = EXCLUDED.team_rating,
			slots = EXCLUDED.slots,
			bench = EXCLUDED.bench,
			draft_enabled = EXCLUDED.draft_enabled
	`
	_, err = r.db.ExecContext(ctx, query,
		roster.OwnerID,
		roster.Name,
		roster.Kind,
		roster.Region,
		roster.Size,
		roster.TeamRating,
		slots,
		bench,
		roster.DraftEnabled,
	)
	if err != nil {
		return fmt.Errorf("failed to save roster: %w", err)
	}
	return nil
}

func (r *RosterRepository) UpdateTeamRating(ctx context.Context, ownerID string, rating int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE rosters
		SET team_rating = $2
		WHERE owner_id = $1
	`, ownerID, rating)
	if err != nil {
		return fmt.Errorf("failed to update team rating: %w", err)
	}
	return nil
}

func (r *RosterRepository) TopTeams(ctx context.Context, region models.Region, limit int) ([]*models.Roster, error) {
	query := `
		SELECT owner_id, name, kind, region, size, team_rating, slots, bench, draft_enabled
		FROM rosters
		WHERE kind = 'team' AND region = $1
		ORDER BY team_rating DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, region, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top teams: %w", err)
	}
	defer rows.Close()

	var rosters []*models.Roster
	for rows.Next() {
		roster := &models.Roster{}
		var slots, bench []byte
		err := rows.Scan(
			&roster.OwnerID,
			&roster.Name,
			&roster.Kind,
			&roster.Region,
			&roster.Size,
			&roster.TeamRating,
			&slots,
			&bench,
			&roster.DraftEnabled,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan roster: %w", err)
		}
		if err := json.Unmarshal(slots, &roster.Slots); err != nil {
			return nil, fmt.Errorf("failed to unmarshal roster slots: %w", err)
		}
		if bench != nil {
			if err := json.Unmarshal(bench, &roster.Bench); err != nil {
				return nil, fmt.Errorf("failed to unmarshal roster bench: %w", err)
			}
		}
		rosters = append(rosters, roster)
	}
	return rosters, rows.Err()
}
