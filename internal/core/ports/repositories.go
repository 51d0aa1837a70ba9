package ports

import (
	"context"
	"errors"
	"time"

	"acquiring-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Sentinel errors surfaced by repositories. The coordinator maps them to
// apperror codes; ErrConcurrencyConflict is retried and never reaches callers.
var (
	ErrDuplicateOrder      = errors.New("duplicate (team_slug, order_id)")
	ErrConcurrencyConflict = errors.New("payment version conflict")
)

// TransitionMeta carries the audit fields and column updates persisted
// together with a status change.
type TransitionMeta struct {
	Actor         domain.TransitionActor
	Reason        string
	CorrelationID string

	// Optional column updates applied in the same transaction.
	ConfirmedAmount *int64
	RefundedAmount  *int64
	MaskedPAN       *string
	CardDataEnc     *string
}

// PaymentRepository defines persistence operations for payments and their
// append-only transition log.
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	GetByPaymentID(ctx context.Context, paymentID string) (*domain.Payment, error)
	GetByOrderKey(ctx context.Context, teamSlug, orderID string) (*domain.Payment, error)
	// Transition atomically checks the version, writes the new status,
	// increments the version, stamps the status-specific timestamp, and
	// appends a PaymentTransition row in the same database transaction.
	// Returns ErrConcurrencyConflict on version mismatch.
	Transition(ctx context.Context, id uuid.UUID, expectedVersion int64, to domain.PaymentStatus, meta TransitionMeta) (*domain.Payment, error)
	ListTransitions(ctx context.Context, paymentRef uuid.UUID) ([]domain.PaymentTransition, error)
	// DailyConfirmedNet returns confirmed volume minus refunds for the
	// team on the calendar day containing t (UTC).
	DailyConfirmedNet(ctx context.Context, teamSlug string, t time.Time) (int64, error)
	// ListExpired returns non-terminal payments whose deadline passed
	// before now, up to limit rows.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Payment, error)
	GetStats(ctx context.Context, teamSlug string) (*PaymentStats, error)
}

// PaymentStats holds aggregated counters for the admin endpoint.
type PaymentStats struct {
	Total           int64
	Confirmed       int64
	Cancelled       int64
	Failed          int64
	ConfirmedVolume int64
	RefundedVolume  int64
}

// TeamRepository defines persistence operations for merchant teams.
type TeamRepository interface {
	Create(ctx context.Context, team *domain.Team) error
	GetBySlug(ctx context.Context, slug string) (*domain.Team, error)
	Update(ctx context.Context, team *domain.Team) error
}

// WebhookRepository defines persistence for webhook delivery records.
type WebhookRepository interface {
	Create(ctx context.Context, d *domain.WebhookDelivery) error
	Update(ctx context.Context, d *domain.WebhookDelivery) error
	// ListDue returns pending deliveries whose next attempt is due at or
	// before now, ordered by event timestamp within each payment.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error)
}

// AuditRepository defines persistence for the audit trail.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
