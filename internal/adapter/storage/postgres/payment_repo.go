package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"acquiring-gateway/internal/core/domain"
	"acquiring-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const paymentColumns = `id, payment_id, order_id, team_slug, amount, confirmed_amount, refunded_amount, currency, pay_type,
	status, success_url, fail_url, notification_url, customer_email, customer_phone, receipt, description,
	masked_pan, card_data_enc, version, created_at, updated_at, expires_at, authorized_at, confirmed_at, cancelled_at`

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// Create inserts a payment in its initial status. A unique violation on
// (team_slug, order_id) maps to ports.ErrDuplicateOrder.
func (r *PaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	query := `INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.PaymentID, p.OrderID, p.TeamSlug, p.Amount, p.ConfirmedAmount, p.RefundedAmount, p.Currency, p.PayType,
		p.Status, p.SuccessURL, p.FailURL, p.NotificationURL, p.CustomerEmail, p.CustomerPhone, p.Receipt, p.Description,
		p.MaskedPAN, p.CardDataEnc, p.Version, p.CreatedAt, p.UpdatedAt, p.ExpiresAt, p.AuthorizedAt, p.ConfirmedAt, p.CancelledAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ports.ErrDuplicateOrder
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByPaymentID fetches a payment by its external identifier.
func (r *PaymentRepo) GetByPaymentID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id = $1`
	return scanPayment(r.pool.QueryRow(ctx, query, paymentID))
}

// GetByOrderKey fetches a payment by its merchant-scoped order key.
func (r *PaymentRepo) GetByOrderKey(ctx context.Context, teamSlug, orderID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE team_slug = $1 AND order_id = $2`
	return scanPayment(r.pool.QueryRow(ctx, query, teamSlug, orderID))
}

// Transition performs the version-checked status update and appends the
// transition row in one database transaction. The per-payment lock is the
// primary serialization mechanism; the version check is the backstop.
func (r *PaymentRepo) Transition(ctx context.Context, id uuid.UUID, expectedVersion int64, to domain.PaymentStatus, meta ports.TransitionMeta) (*domain.Payment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current domain.PaymentStatus
	var version int64
	err = tx.QueryRow(ctx, `SELECT status, version FROM payments WHERE id = $1 FOR UPDATE`, id).
		Scan(&current, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payment not found: %s", id)
		}
		return nil, fmt.Errorf("lock payment row: %w", err)
	}
	if version != expectedVersion {
		return nil, ports.ErrConcurrencyConflict
	}

	now := time.Now().UTC()

	sets := []string{"status = $1", "version = version + 1", "updated_at = $2"}
	args := []any{to, now}
	argIdx := 3

	switch to {
	case domain.StatusAuthorized:
		sets = append(sets, fmt.Sprintf("authorized_at = $%d", argIdx))
		args = append(args, now)
		argIdx++
	case domain.StatusConfirmed:
		sets = append(sets, fmt.Sprintf("confirmed_at = $%d", argIdx))
		args = append(args, now)
		argIdx++
	case domain.StatusCancelled, domain.StatusReversed:
		sets = append(sets, fmt.Sprintf("cancelled_at = $%d", argIdx))
		args = append(args, now)
		argIdx++
	}
	if meta.ConfirmedAmount != nil {
		sets = append(sets, fmt.Sprintf("confirmed_amount = $%d", argIdx))
		args = append(args, *meta.ConfirmedAmount)
		argIdx++
	}
	if meta.RefundedAmount != nil {
		sets = append(sets, fmt.Sprintf("refunded_amount = $%d", argIdx))
		args = append(args, *meta.RefundedAmount)
		argIdx++
	}
	if meta.MaskedPAN != nil {
		sets = append(sets, fmt.Sprintf("masked_pan = $%d", argIdx))
		args = append(args, *meta.MaskedPAN)
		argIdx++
	}
	if meta.CardDataEnc != nil {
		sets = append(sets, fmt.Sprintf("card_data_enc = $%d", argIdx))
		args = append(args, *meta.CardDataEnc)
		argIdx++
	}

	query := fmt.Sprintf(`UPDATE payments SET %s WHERE id = $%d AND version = $%d RETURNING %s`,
		strings.Join(sets, ", "), argIdx, argIdx+1, paymentColumns)
	args = append(args, id, expectedVersion)

	updated, err := scanPayment(tx.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ports.ErrConcurrencyConflict
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO payment_transitions (id, payment_ref, from_status, to_status, actor, reason, correlation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), id, current, to, meta.Actor, meta.Reason, meta.CorrelationID, now)
	if err != nil {
		return nil, fmt.Errorf("insert transition: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return updated, nil
}

// ListTransitions returns the append-only audit trail for one payment,
// oldest first.
func (r *PaymentRepo) ListTransitions(ctx context.Context, paymentRef uuid.UUID) ([]domain.PaymentTransition, error) {
	query := `SELECT id, payment_ref, from_status, to_status, actor, reason, correlation_id, created_at
		FROM payment_transitions WHERE payment_ref = $1 ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query, paymentRef)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentTransition
	for rows.Next() {
		var t domain.PaymentTransition
		if err := rows.Scan(&t.ID, &t.PaymentRef, &t.FromStatus, &t.ToStatus, &t.Actor, &t.Reason, &t.CorrelationID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transition row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transition rows: %w", err)
	}
	return out, nil
}

// DailyConfirmedNet returns confirmed volume minus refunds for the team on
// the UTC calendar day containing t.
func (r *PaymentRepo) DailyConfirmedNet(ctx context.Context, teamSlug string, t time.Time) (int64, error) {
	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `SELECT COALESCE(SUM(confirmed_amount - refunded_amount), 0) FROM payments
		WHERE team_slug = $1 AND confirmed_at >= $2 AND confirmed_at < $3
		AND status IN ('CONFIRMED', 'REFUNDING', 'REFUNDED', 'PARTIAL_REFUNDED')`

	var total int64
	if err := r.pool.QueryRow(ctx, query, teamSlug, dayStart, dayEnd).Scan(&total); err != nil {
		return 0, fmt.Errorf("daily confirmed net: %w", err)
	}
	return total, nil
}

// ListExpired returns non-terminal payments past their deadline.
func (r *PaymentRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE expires_at <= $1 AND status NOT IN
		('CONFIRMED', 'CANCELLED', 'REVERSED', 'REFUNDED', 'AUTH_FAIL', 'REJECTED', 'DEADLINE_EXPIRED', 'FAILED')
		ORDER BY expires_at ASC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired: %w", err)
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPaymentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired rows: %w", err)
	}
	return out, nil
}

// GetStats retrieves aggregated counters for one team, or all teams when
// teamSlug is empty.
func (r *PaymentRepo) GetStats(ctx context.Context, teamSlug string) (*ports.PaymentStats, error) {
	condition := "TRUE"
	var args []any
	if teamSlug != "" {
		condition = "team_slug = $1"
		args = append(args, teamSlug)
	}

	query := fmt.Sprintf(`SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE status IN ('CONFIRMED', 'REFUNDED', 'PARTIAL_REFUNDED')) AS confirmed,
		COUNT(*) FILTER (WHERE status IN ('CANCELLED', 'REVERSED')) AS cancelled,
		COUNT(*) FILTER (WHERE status IN ('AUTH_FAIL', 'REJECTED', 'DEADLINE_EXPIRED', 'FAILED')) AS failed,
		COALESCE(SUM(amount) FILTER (WHERE confirmed_at IS NOT NULL), 0) AS confirmed_volume,
		COALESCE(SUM(refunded_amount), 0) AS refunded_volume
		FROM payments WHERE %s`, condition)

	stats := &ports.PaymentStats{}
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&stats.Total, &stats.Confirmed, &stats.Cancelled, &stats.Failed,
		&stats.ConfirmedVolume, &stats.RefundedVolume,
	)
	if err != nil {
		return nil, fmt.Errorf("get payment stats: %w", err)
	}
	return stats, nil
}

// scanPayment scans a single row into a Payment; pgx.ErrNoRows maps to nil.
func scanPayment(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := row.Scan(
		&p.ID, &p.PaymentID, &p.OrderID, &p.TeamSlug, &p.Amount, &p.ConfirmedAmount, &p.RefundedAmount, &p.Currency, &p.PayType,
		&p.Status, &p.SuccessURL, &p.FailURL, &p.NotificationURL, &p.CustomerEmail, &p.CustomerPhone, &p.Receipt, &p.Description,
		&p.MaskedPAN, &p.CardDataEnc, &p.Version, &p.CreatedAt, &p.UpdatedAt, &p.ExpiresAt, &p.AuthorizedAt, &p.ConfirmedAt, &p.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return p, nil
}

func scanPaymentRow(rows pgx.Rows) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := rows.Scan(
		&p.ID, &p.PaymentID, &p.OrderID, &p.TeamSlug, &p.Amount, &p.ConfirmedAmount, &p.RefundedAmount, &p.Currency, &p.PayType,
		&p.Status, &p.SuccessURL, &p.FailURL, &p.NotificationURL, &p.CustomerEmail, &p.CustomerPhone, &p.Receipt, &p.Description,
		&p.MaskedPAN, &p.CardDataEnc, &p.Version, &p.CreatedAt, &p.UpdatedAt, &p.ExpiresAt, &p.AuthorizedAt, &p.ConfirmedAt, &p.CancelledAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan payment row: %w", err)
	}
	return p, nil
}
