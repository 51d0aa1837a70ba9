package integration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"acquiring-gateway/internal/core/domain"
	"acquiring-gateway/internal/core/ports"

	"github.com/google/uuid"
)

// --- In-memory payment repository ---

type inMemoryPaymentRepo struct {
	mu          sync.Mutex
	byID        map[uuid.UUID]*domain.Payment
	byPaymentID map[string]uuid.UUID
	byOrderKey  map[string]uuid.UUID
	transitions map[uuid.UUID][]domain.PaymentTransition
}

func newInMemoryPaymentRepo() *inMemoryPaymentRepo {
	return &inMemoryPaymentRepo{
		byID:        make(map[uuid.UUID]*domain.Payment),
		byPaymentID: make(map[string]uuid.UUID),
		byOrderKey:  make(map[string]uuid.UUID),
		transitions: make(map[uuid.UUID][]domain.PaymentTransition),
	}
}

func orderKey(team, order string) string { return team + "/" + order }

func (r *inMemoryPaymentRepo) Create(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byOrderKey[orderKey(p.TeamSlug, p.OrderID)]; exists {
		return ports.ErrDuplicateOrder
	}
	cp := *p
	r.byID[p.ID] = &cp
	r.byPaymentID[p.PaymentID] = p.ID
	r.byOrderKey[orderKey(p.TeamSlug, p.OrderID)] = p.ID
	return nil
}

func (r *inMemoryPaymentRepo) GetByPaymentID(_ context.Context, paymentID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPaymentID[paymentID]
	if !ok {
		return nil, nil
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *inMemoryPaymentRepo) GetByOrderKey(_ context.Context, teamSlug, orderID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byOrderKey[orderKey(teamSlug, orderID)]
	if !ok {
		return nil, nil
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *inMemoryPaymentRepo) Transition(_ context.Context, id uuid.UUID, expectedVersion int64, to domain.PaymentStatus, meta ports.TransitionMeta) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("payment not found: %s", id)
	}
	if p.Version != expectedVersion {
		return nil, ports.ErrConcurrencyConflict
	}

	from := p.Status
	now := time.Now().UTC()
	p.Status = to
	p.Version++
	p.UpdatedAt = now
	switch to {
	case domain.StatusAuthorized:
		p.AuthorizedAt = &now
	case domain.StatusConfirmed:
		p.ConfirmedAt = &now
	case domain.StatusCancelled, domain.StatusReversed:
		p.CancelledAt = &now
	}
	if meta.ConfirmedAmount != nil {
		p.ConfirmedAmount = *meta.ConfirmedAmount
	}
	if meta.RefundedAmount != nil {
		p.RefundedAmount = *meta.RefundedAmount
	}
	if meta.MaskedPAN != nil {
		p.MaskedPAN = meta.MaskedPAN
	}
	if meta.CardDataEnc != nil {
		p.CardDataEnc = meta.CardDataEnc
	}

	r.transitions[id] = append(r.transitions[id], domain.PaymentTransition{
		ID:            uuid.New(),
		PaymentRef:    id,
		FromStatus:    from,
		ToStatus:      to,
		Actor:         meta.Actor,
		Reason:        meta.Reason,
		CorrelationID: meta.CorrelationID,
		CreatedAt:     now,
	})

	cp := *p
	return &cp, nil
}

func (r *inMemoryPaymentRepo) ListTransitions(_ context.Context, paymentRef uuid.UUID) ([]domain.PaymentTransition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PaymentTransition(nil), r.transitions[paymentRef]...), nil
}

func (r *inMemoryPaymentRepo) DailyConfirmedNet(_ context.Context, teamSlug string, _ time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, p := range r.byID {
		if p.TeamSlug == teamSlug && p.ConfirmedAt != nil {
			total += p.ConfirmedAmount - p.RefundedAmount
		}
	}
	return total, nil
}

func (r *inMemoryPaymentRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Payment
	for _, p := range r.byID {
		if !p.Status.IsTerminal() && !p.ExpiresAt.After(now) && len(out) < limit {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *inMemoryPaymentRepo) GetStats(_ context.Context, teamSlug string) (*ports.PaymentStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &ports.PaymentStats{}
	for _, p := range r.byID {
		if teamSlug != "" && p.TeamSlug != teamSlug {
			continue
		}
		stats.Total++
		switch p.Status {
		case domain.StatusConfirmed, domain.StatusRefunded, domain.StatusPartialRefunded:
			stats.Confirmed++
		case domain.StatusCancelled, domain.StatusReversed:
			stats.Cancelled++
		case domain.StatusAuthFail, domain.StatusRejected, domain.StatusDeadlineExpired, domain.StatusFailed:
			stats.Failed++
		}
		if p.ConfirmedAt != nil {
			stats.ConfirmedVolume += p.ConfirmedAmount
		}
		stats.RefundedVolume += p.RefundedAmount
	}
	return stats, nil
}

// pathOf returns the persisted status walk for assertions.
func (r *inMemoryPaymentRepo) pathOf(paymentID string) []domain.PaymentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byPaymentID[paymentID]
	if !ok {
		return nil
	}
	path := []domain.PaymentStatus{domain.StatusNew}
	for _, tr := range r.transitions[id] {
		path = append(path, tr.ToStatus)
	}
	return path
}

// --- In-memory team repository ---

type inMemoryTeamRepo struct {
	mu    sync.RWMutex
	teams map[string]*domain.Team
}

func newInMemoryTeamRepo() *inMemoryTeamRepo {
	return &inMemoryTeamRepo{teams: make(map[string]*domain.Team)}
}

func (r *inMemoryTeamRepo) Create(_ context.Context, t *domain.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.teams[t.Slug]; exists {
		return fmt.Errorf("team already exists: %s", t.Slug)
	}
	cp := *t
	r.teams[t.Slug] = &cp
	return nil
}

func (r *inMemoryTeamRepo) GetBySlug(_ context.Context, slug string) (*domain.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.teams[slug]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *inMemoryTeamRepo) Update(_ context.Context, t *domain.Team) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.teams[t.Slug] = &cp
	return nil
}

// --- In-memory webhook repository ---

type inMemoryWebhookRepo struct {
	mu         sync.Mutex
	deliveries map[uuid.UUID]*domain.WebhookDelivery
}

func newInMemoryWebhookRepo() *inMemoryWebhookRepo {
	return &inMemoryWebhookRepo{deliveries: make(map[uuid.UUID]*domain.WebhookDelivery)}
}

func (r *inMemoryWebhookRepo) Create(_ context.Context, d *domain.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.deliveries[d.ID] = &cp
	return nil
}

func (r *inMemoryWebhookRepo) Update(_ context.Context, d *domain.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.deliveries[d.ID] = &cp
	return nil
}

func (r *inMemoryWebhookRepo) ListDue(_ context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.WebhookDelivery
	for _, d := range r.deliveries {
		if d.Status == domain.WebhookStatusPending && (d.NextAttemptAt == nil || !d.NextAttemptAt.After(now)) && len(out) < limit {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *inMemoryWebhookRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deliveries)
}

// --- In-memory audit repository ---

type inMemoryAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

// --- Stub acquirer ---

// stubAcquirer approves everything by default; tests flip the knobs.
type stubAcquirer struct {
	mu            sync.Mutex
	requireThreeDS bool
	decline       bool
	declineReason string
	calls         []string
}

func (a *stubAcquirer) result() *ports.AcquirerResult {
	if a.decline {
		return &ports.AcquirerResult{Approved: false, Reason: a.declineReason}
	}
	return &ports.AcquirerResult{Approved: true, Reason: "00"}
}

func (a *stubAcquirer) record(op string) {
	a.calls = append(a.calls, op)
}

func (a *stubAcquirer) Authorize(_ context.Context, _ ports.AcquirerRequest) (*ports.AcquirerResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("authorize")
	if a.requireThreeDS {
		return &ports.AcquirerResult{RequiresThreeDS: true}, nil
	}
	return a.result(), nil
}

func (a *stubAcquirer) Capture(_ context.Context, _ ports.AcquirerRequest) (*ports.AcquirerResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("capture")
	return a.result(), nil
}

func (a *stubAcquirer) Cancel(_ context.Context, _ ports.AcquirerRequest) (*ports.AcquirerResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("cancel")
	return a.result(), nil
}

func (a *stubAcquirer) Reverse(_ context.Context, _ ports.AcquirerRequest) (*ports.AcquirerResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("reverse")
	return a.result(), nil
}

func (a *stubAcquirer) Refund(_ context.Context, _ ports.AcquirerRequest) (*ports.AcquirerResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record("refund")
	return a.result(), nil
}
