package ports

import (
	"context"
	"errors"
	"time"

	"acquiring-gateway/internal/core/domain"
)

// --- Authentication (C1) ---

// TokenVerifier checks merchant request signatures.
type TokenVerifier interface {
	// Compute builds the token over the scalar request parameters plus the
	// merchant password hash: sort by key, concatenate values, SHA-256.
	Compute(params map[string]any, passwordHash string) string
	// Verify recomputes the token and compares constant-time,
	// case-insensitively.
	Verify(params map[string]any, providedToken, passwordHash string) bool
}

// --- Merchant store (C2) ---

// TeamStore is the read-through cached view of merchant teams.
type TeamStore interface {
	// Lookup returns the team or nil when unknown. Results are cached
	// with a bounded TTL; writes invalidate.
	Lookup(ctx context.Context, slug string) (*domain.Team, error)
	Register(ctx context.Context, team *domain.Team) error
	Invalidate(slug string)
}

// --- Card acquirer (external collaborator) ---

// ErrAcquirerUnavailable indicates a transport-level failure talking to the
// card network; the caller retries within its idempotent budget.
var ErrAcquirerUnavailable = errors.New("acquirer unavailable")

// AcquirerRequest is one operation against the card network.
type AcquirerRequest struct {
	PaymentID      string
	Amount         int64
	Currency       string
	CardData       string // opaque card reference, only for Authorize
	IdempotencyKey string // derived from PaymentID + transition sequence
}

// AcquirerResult is the card network's decision.
type AcquirerResult struct {
	Approved      bool
	RequiresThreeDS bool
	Reason        string // network response code / decline reason
}

// CardAcquirer abstracts the external card network adapter.
type CardAcquirer interface {
	Authorize(ctx context.Context, req AcquirerRequest) (*AcquirerResult, error)
	Capture(ctx context.Context, req AcquirerRequest) (*AcquirerResult, error)
	Cancel(ctx context.Context, req AcquirerRequest) (*AcquirerResult, error)
	Reverse(ctx context.Context, req AcquirerRequest) (*AcquirerResult, error)
	Refund(ctx context.Context, req AcquirerRequest) (*AcquirerResult, error)
}

// --- Lock service (C5) ---

// ErrLockTimeout indicates the wait budget elapsed before a lease was granted.
var ErrLockTimeout = errors.New("lock acquisition timeout")

// LockLease is the right, held for a bounded duration, to mutate a locked
// resource. Owned by the acquirer until released or expired.
type LockLease struct {
	Key        string
	Holder     string
	Token      string // fencing token, checked on release
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// LockService grants per-key exclusive leases with timeout and expiry.
// At most one live lease exists per key; waiters are served in FIFO order.
type LockService interface {
	Acquire(ctx context.Context, key, holder string, lease, wait time.Duration) (*LockLease, error)
	// Release is idempotent; releasing an expired or foreign lease is a no-op.
	Release(ctx context.Context, lease *LockLease) error
}

// LockWaiter describes one queued acquirer, for deadlock analysis.
type LockWaiter struct {
	Holder  string
	Since   time.Time
}

// LockSnapshot is a point-in-time view of the lock table.
type LockSnapshot struct {
	// Holders maps key -> current lease.
	Holders map[string]LockLease
	// Waiters maps key -> queued holders in arrival order.
	Waiters map[string][]LockWaiter
}

// LockIntrospector exposes the wait-for metadata the deadlock detector walks.
type LockIntrospector interface {
	Snapshot() LockSnapshot
	// ForceRelease evicts the live lease on key, waking the next waiter.
	// Returns false when no live lease exists.
	ForceRelease(key string) bool
}

// --- Rate limiter (C6) ---

// RateDecision is the outcome of a rate-limit check.
type RateDecision struct {
	Allowed    bool
	RetryAfter time.Duration // time until the next whole token when denied
}

// RateLimiter applies policy-keyed token buckets.
type RateLimiter interface {
	TryAcquire(policy, scope string, cost float64) RateDecision
}

// --- Payment queue (C7) ---

// ErrQueueFull indicates the bounded queue rejected an enqueue.
var ErrQueueFull = errors.New("payment queue full")

// Job is one unit of background work.
type Job struct {
	ID   string
	Kind string
	// Idempotent jobs may be retried after cancellation mid-flight;
	// non-idempotent jobs are dropped instead.
	Idempotent bool
	Run        func(ctx context.Context) error
}

// PaymentQueue is a bounded FIFO executed by a fixed worker pool.
type PaymentQueue interface {
	Enqueue(job Job) error
}

// --- Coordinator (C9) ---

// InitRequest creates a payment intent. Inputs are already validated and
// authenticated by the HTTP layer.
type InitRequest struct {
	TeamSlug        string
	OrderID         string
	Amount          int64
	Currency        string
	PayType         domain.PayType
	Description     *string
	CustomerEmail   *string
	CustomerPhone   *string
	SuccessURL      string
	FailURL         string
	NotificationURL string
	Receipt         []byte
	CorrelationID   string
}

// InitResult is returned to the merchant after a successful init.
type InitResult struct {
	PaymentID  string
	Status     domain.PaymentStatus
	PaymentURL string // one-time hosted form URL
}

// StatusResult is the read-only payment view.
type StatusResult struct {
	PaymentID      string
	OrderID        string
	Status         domain.PaymentStatus
	Amount         int64
	RefundedAmount int64
	Currency       string
}

// PaymentCoordinator is the public lifecycle contract.
type PaymentCoordinator interface {
	Init(ctx context.Context, req InitRequest) (*InitResult, error)
	ShowForm(ctx context.Context, paymentID, correlationID string) (*domain.Payment, error)
	SubmitCard(ctx context.Context, paymentID, cardRef, correlationID string) (*StatusResult, error)
	Complete3DS(ctx context.Context, paymentID string, passed bool, correlationID string) (*StatusResult, error)
	Confirm(ctx context.Context, teamSlug, paymentID string, amount *int64, correlationID string) (*StatusResult, error)
	Cancel(ctx context.Context, teamSlug, paymentID, correlationID string) (*StatusResult, error)
	Refund(ctx context.Context, teamSlug, paymentID string, amount int64, correlationID string) (*StatusResult, error)
	Status(ctx context.Context, teamSlug, paymentID string) (*StatusResult, error)
}

// --- Webhooks (C10) ---

// WebhookNotifier delivers state-change notifications at least once.
type WebhookNotifier interface {
	// Enqueue records a delivery for the payment's current state. eventAt
	// orders deliveries within one payment.
	Enqueue(ctx context.Context, payment *domain.Payment, eventAt time.Time) error
}

// --- Observability ---

// MetricsSink receives gateway metrics; injected into the coordinator
// instead of global counters.
type MetricsSink interface {
	IncPayment(terminalStatus string)
	IncTransition(from, to string)
	IncRateLimited(policy string)
	IncLockTimeout()
	IncDeadlock()
	IncWebhook(result string)
	ObserveOperation(op string, d time.Duration)
}

// --- Admin / dashboard ---

// AdminClaims holds the parsed admin JWT claims.
type AdminClaims struct {
	Subject string
}

// TokenService issues and validates admin bearer tokens.
type TokenService interface {
	Generate(subject string) (string, time.Time, error)
	Validate(tokenString string) (*AdminClaims, error)
}

// HashService verifies operator passwords (argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// AdminAuthService authenticates the gateway operator.
type AdminAuthService interface {
	Login(ctx context.Context, username, password string) (string, time.Time, error)
}

// EncryptionService handles AES-256-GCM encryption of card data at rest.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AuditService records audited actions without blocking the request path.
type AuditService interface {
	Record(ctx context.Context, entry domain.AuditLog)
}
