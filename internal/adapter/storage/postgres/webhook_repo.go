package postgres

import (
	"context"
	"fmt"
	"time"

	"acquiring-gateway/internal/core/domain"
)

const webhookColumns = `id, payment_ref, team_slug, url, payload, event_at, attempt, http_status,
	status, next_attempt_at, last_error, created_at, updated_at`

// WebhookRepo implements ports.WebhookRepository.
type WebhookRepo struct {
	pool Pool
}

// NewWebhookRepo creates a new WebhookRepo.
func NewWebhookRepo(pool Pool) *WebhookRepo {
	return &WebhookRepo{pool: pool}
}

// Create inserts a pending delivery record.
func (r *WebhookRepo) Create(ctx context.Context, d *domain.WebhookDelivery) error {
	query := `INSERT INTO webhook_deliveries (` + webhookColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.PaymentRef, d.TeamSlug, d.URL, d.Payload, d.EventAt, d.Attempt, d.HTTPStatus,
		d.Status, d.NextAttemptAt, d.LastError, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

// Update rewrites the delivery progress columns.
func (r *WebhookRepo) Update(ctx context.Context, d *domain.WebhookDelivery) error {
	query := `UPDATE webhook_deliveries SET attempt = $1, http_status = $2, status = $3,
		next_attempt_at = $4, last_error = $5, updated_at = $6 WHERE id = $7`

	tag, err := r.pool.Exec(ctx, query,
		d.Attempt, d.HTTPStatus, d.Status, d.NextAttemptAt, d.LastError, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook delivery not found: %s", d.ID)
	}
	return nil
}

// ListDue returns pending deliveries whose next attempt is due, ordered by
// event timestamp so per-payment notifications stay in causal order.
func (r *WebhookRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhook_deliveries
		WHERE status = 'PENDING' AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		ORDER BY payment_ref, event_at ASC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due webhooks: %w", err)
	}
	defer rows.Close()

	var out []domain.WebhookDelivery
	for rows.Next() {
		var d domain.WebhookDelivery
		err := rows.Scan(
			&d.ID, &d.PaymentRef, &d.TeamSlug, &d.URL, &d.Payload, &d.EventAt, &d.Attempt, &d.HTTPStatus,
			&d.Status, &d.NextAttemptAt, &d.LastError, &d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan webhook row: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook rows: %w", err)
	}
	return out, nil
}
