package postgres

import (
	"context"
	"errors"
	"fmt"

	"acquiring-gateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const teamColumns = `id, team_slug, password_hash, display_name, active, success_url, fail_url,
	notification_url, currencies, min_amount, max_amount, daily_limit, created_at, updated_at`

// TeamRepo implements ports.TeamRepository.
type TeamRepo struct {
	pool Pool
}

// NewTeamRepo creates a new TeamRepo.
func NewTeamRepo(pool Pool) *TeamRepo {
	return &TeamRepo{pool: pool}
}

// Create inserts a new team.
func (r *TeamRepo) Create(ctx context.Context, t *domain.Team) error {
	query := `INSERT INTO teams (` + teamColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.Slug, t.PasswordHash, t.DisplayName, t.Active, t.SuccessURL, t.FailURL,
		t.NotificationURL, t.Currencies, t.MinAmount, t.MaxAmount, t.DailyLimit, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

// GetBySlug fetches a team by its slug; unknown slugs return nil.
func (r *TeamRepo) GetBySlug(ctx context.Context, slug string) (*domain.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE team_slug = $1`

	t := &domain.Team{}
	err := r.pool.QueryRow(ctx, query, slug).Scan(
		&t.ID, &t.Slug, &t.PasswordHash, &t.DisplayName, &t.Active, &t.SuccessURL, &t.FailURL,
		&t.NotificationURL, &t.Currencies, &t.MinAmount, &t.MaxAmount, &t.DailyLimit, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get team by slug: %w", err)
	}
	return t, nil
}

// Update rewrites the mutable team columns.
func (r *TeamRepo) Update(ctx context.Context, t *domain.Team) error {
	query := `UPDATE teams SET display_name = $1, active = $2, success_url = $3, fail_url = $4,
		notification_url = $5, currencies = $6, min_amount = $7, max_amount = $8, daily_limit = $9, updated_at = $10
		WHERE team_slug = $11`

	tag, err := r.pool.Exec(ctx, query,
		t.DisplayName, t.Active, t.SuccessURL, t.FailURL,
		t.NotificationURL, t.Currencies, t.MinAmount, t.MaxAmount, t.DailyLimit, t.UpdatedAt, t.Slug,
	)
	if err != nil {
		return fmt.Errorf("update team: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("team not found: %s", t.Slug)
	}
	return nil
}
