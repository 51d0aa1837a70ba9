package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"acquiring-gateway/config"
	"acquiring-gateway/internal/core/domain"
	"acquiring-gateway/internal/core/fsm"
	"acquiring-gateway/internal/core/ports"
	"acquiring-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// transitionRetries bounds re-read-and-retry on version conflicts. The
// per-payment lock makes conflicts rare; the bound keeps them invisible to
// callers.
const transitionRetries = 3

// expirySweepBatch bounds one ExpireOverdue pass.
const expirySweepBatch = 100

// CoordinatorConfig collects the tunables the lifecycle coordinator needs.
type CoordinatorConfig struct {
	LockTimeout     time.Duration
	LeaseDuration   time.Duration
	PaymentTTL      time.Duration
	MinAmount       int64
	MaxAmount       int64
	BaseURL         string
	AcquirerRetries int
}

// PaymentCoordinator orchestrates the payment lifecycle: admission checks,
// per-payment locking, state-machine proposals, audited persistence,
// acquirer calls, and webhook fan-out.
type PaymentCoordinator struct {
	payments ports.PaymentRepository
	teams    ports.TeamStore
	acquirer ports.CardAcquirer
	locks    ports.LockService
	limiter  ports.RateLimiter
	notifier ports.WebhookNotifier
	encSvc   ports.EncryptionService
	metrics  ports.MetricsSink
	cfg      CoordinatorConfig
	log      zerolog.Logger
	now      func() time.Time
}

// NewPaymentCoordinator wires the coordinator from its collaborators.
func NewPaymentCoordinator(
	payments ports.PaymentRepository,
	teams ports.TeamStore,
	acquirer ports.CardAcquirer,
	locks ports.LockService,
	limiter ports.RateLimiter,
	notifier ports.WebhookNotifier,
	encSvc ports.EncryptionService,
	metrics ports.MetricsSink,
	cfg CoordinatorConfig,
	log zerolog.Logger,
) *PaymentCoordinator {
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 30 * time.Second
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 60 * time.Second
	}
	if cfg.PaymentTTL <= 0 {
		cfg.PaymentTTL = 24 * time.Hour
	}
	if cfg.AcquirerRetries <= 0 {
		cfg.AcquirerRetries = 2
	}
	return &PaymentCoordinator{
		payments: payments,
		teams:    teams,
		acquirer: acquirer,
		locks:    locks,
		limiter:  limiter,
		notifier: notifier,
		encSvc:   encSvc,
		metrics:  metrics,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Init creates a payment in NEW and returns its identifier and form URL.
// Duplicate (TeamSlug, OrderId) fails with DuplicateOrder: init is not
// idempotent here, the unique index arbitrates racing calls.
func (c *PaymentCoordinator) Init(ctx context.Context, req ports.InitRequest) (*ports.InitResult, error) {
	defer c.observe("init")()

	if d := c.limiter.TryAcquire(config.PolicyProcessing, req.TeamSlug, 1); !d.Allowed {
		c.metrics.IncRateLimited(config.PolicyProcessing)
		return nil, apperror.ErrRateLimited()
	}

	team, err := c.teams.Lookup(ctx, req.TeamSlug)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("team lookup: %w", err))
	}
	if team == nil {
		return nil, apperror.ErrMerchantNotFound()
	}
	if !team.Active {
		return nil, apperror.ErrMerchantInactive()
	}

	if err := c.checkAmount(team, req.Amount); err != nil {
		return nil, err
	}
	if req.Currency != "" && !team.SupportsCurrency(req.Currency) {
		return nil, apperror.Validation(fmt.Sprintf("currency %s not supported", req.Currency))
	}
	if team.DailyLimit > 0 {
		spent, err := c.payments.DailyConfirmedNet(ctx, team.Slug, c.now().UTC())
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("daily limit check: %w", err))
		}
		if spent+req.Amount > team.DailyLimit {
			return nil, apperror.ErrLimitExceeded()
		}
	}

	now := c.now().UTC()
	currency := req.Currency
	if currency == "" {
		currency = "RUB"
	}
	payType := req.PayType
	if payType == "" {
		payType = domain.PayTypeSingleStage
	}

	p := &domain.Payment{
		ID:              uuid.New(),
		PaymentID:       newPaymentID(),
		OrderID:         req.OrderID,
		TeamSlug:        req.TeamSlug,
		Amount:          req.Amount,
		Currency:        currency,
		PayType:         payType,
		Status:          domain.StatusNew,
		SuccessURL:      fallback(req.SuccessURL, team.SuccessURL),
		FailURL:         fallback(req.FailURL, team.FailURL),
		NotificationURL: fallback(req.NotificationURL, team.NotificationURL),
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		Receipt:         req.Receipt,
		Description:     req.Description,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(c.cfg.PaymentTTL),
	}

	if err := c.payments.Create(ctx, p); err != nil {
		if errors.Is(err, ports.ErrDuplicateOrder) {
			return nil, apperror.ErrDuplicateOrder()
		}
		return nil, apperror.InternalError(fmt.Errorf("create payment: %w", err))
	}

	c.metrics.IncTransition(string(domain.StatusInit), string(domain.StatusNew))
	c.log.Info().
		Str("payment_id", p.PaymentID).
		Str("team_slug", p.TeamSlug).
		Str("order_id", p.OrderID).
		Int64("amount", p.Amount).
		Str("pay_type", string(p.PayType)).
		Msg("payment initialized")

	return &ports.InitResult{
		PaymentID:  p.PaymentID,
		Status:     p.Status,
		PaymentURL: fmt.Sprintf("%s/api/payment/form/%s", c.cfg.BaseURL, p.PaymentID),
	}, nil
}

// ShowForm marks the hosted form as fetched. Repeat fetches are no-ops.
func (c *PaymentCoordinator) ShowForm(ctx context.Context, paymentID, correlationID string) (*domain.Payment, error) {
	defer c.observe("show_form")()

	var result *domain.Payment
	err := c.withPaymentLock(ctx, paymentID, func(p *domain.Payment) error {
		if expired, err := c.expireIfDue(ctx, p, correlationID); err != nil {
			return err
		} else if expired {
			return apperror.ErrExpired(string(domain.StatusDeadlineExpired))
		}
		if p.Status == domain.StatusFormShowed {
			result = p
			return nil
		}
		res, err := fsm.Propose(p.Status, fsm.EventShowForm)
		if err != nil {
			return apperror.ErrIllegalState(string(p.Status))
		}
		updated, err := c.persist(ctx, p, res.Next, ports.TransitionMeta{
			Actor:         domain.ActorSystem,
			Reason:        "payment form fetched",
			CorrelationID: correlationID,
		})
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	return result, err
}

// SubmitCard runs the authorization leg: AUTHORIZING, the acquirer call,
// and the branch into AUTHORIZED / 3DS_CHECKING / AUTH_FAIL. Single-stage
// payments continue straight through capture to CONFIRMED.
func (c *PaymentCoordinator) SubmitCard(ctx context.Context, paymentID, cardRef, correlationID string) (*ports.StatusResult, error) {
	defer c.observe("submit_card")()

	if d := c.limiter.TryAcquire(config.PolicyProcessing, "", 1); !d.Allowed {
		c.metrics.IncRateLimited(config.PolicyProcessing)
		return nil, apperror.ErrRateLimited()
	}

	var result *ports.StatusResult
	err := c.withPaymentLock(ctx, paymentID, func(p *domain.Payment) error {
		if expired, err := c.expireIfDue(ctx, p, correlationID); err != nil {
			return err
		} else if expired {
			return apperror.ErrExpired(string(domain.StatusDeadlineExpired))
		}

		res, err := fsm.Propose(p.Status, fsm.EventSubmitCard)
		if err != nil {
			return apperror.ErrIllegalState(string(p.Status))
		}

		masked := domain.MaskPAN(cardRef)
		cardEnc, err := c.encSvc.Encrypt(cardRef)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("encrypt card data: %w", err))
		}
		p, err = c.persist(ctx, p, res.Next, ports.TransitionMeta{
			Actor:         domain.ActorMerchant,
			Reason:        "card data submitted",
			CorrelationID: correlationID,
			MaskedPAN:     &masked,
			CardDataEnc:   &cardEnc,
		})
		if err != nil {
			return err
		}

		auth, err := c.callAcquirer(ctx, c.acquirer.Authorize, ports.AcquirerRequest{
			PaymentID:      p.PaymentID,
			Amount:         p.Amount,
			Currency:       p.Currency,
			CardData:       cardRef,
			IdempotencyKey: idempotencyKey(p),
		})
		if err != nil {
			p, ferr := c.fail(ctx, p, "acquirer unavailable", correlationID)
			if ferr != nil {
				return ferr
			}
			result = statusOf(p)
			return apperror.InternalError(err)
		}

		switch {
		case auth.RequiresThreeDS:
			p, err = c.persistActed(ctx, p, fsm.Event3DSRequired, domain.ActorAcquirer, "3-DS challenge required", correlationID)
		case auth.Approved:
			p, err = c.persistActed(ctx, p, fsm.EventAuthSuccess, domain.ActorAcquirer, auth.Reason, correlationID)
			if err == nil && p.PayType == domain.PayTypeSingleStage {
				p, err = c.capture(ctx, p, p.Amount, correlationID)
			}
		default:
			p, err = c.persistActed(ctx, p, fsm.EventAuthFailure, domain.ActorAcquirer, auth.Reason, correlationID)
		}
		if err != nil {
			return err
		}
		result = statusOf(p)
		return nil
	})
	return result, err
}

// Complete3DS finishes a 3-D Secure challenge and lands the payment in
// AUTHORIZED or AUTH_FAIL. Single-stage payments then capture immediately.
func (c *PaymentCoordinator) Complete3DS(ctx context.Context, paymentID string, passed bool, correlationID string) (*ports.StatusResult, error) {
	defer c.observe("complete_3ds")()

	var result *ports.StatusResult
	err := c.withPaymentLock(ctx, paymentID, func(p *domain.Payment) error {
		if expired, err := c.expireIfDue(ctx, p, correlationID); err != nil {
			return err
		} else if expired {
			return apperror.ErrExpired(string(domain.StatusDeadlineExpired))
		}
		if p.Status != domain.Status3DSChecking {
			return apperror.ErrIllegalState(string(p.Status))
		}

		p, err := c.persistActed(ctx, p, fsm.Event3DSComplete, domain.ActorAcquirer, "3-DS challenge completed", correlationID)
		if err != nil {
			return err
		}
		event := fsm.EventAuthSuccess
		reason := "3-DS passed"
		if !passed {
			event = fsm.EventAuthFailure
			reason = "3-DS failed"
		}
		p, err = c.persistActed(ctx, p, event, domain.ActorAcquirer, reason, correlationID)
		if err != nil {
			return err
		}
		if passed && p.PayType == domain.PayTypeSingleStage {
			p, err = c.capture(ctx, p, p.Amount, correlationID)
			if err != nil {
				return err
			}
		}
		result = statusOf(p)
		return nil
	})
	return result, err
}

// Confirm captures an authorized two-stage payment. Confirming an already
// confirmed payment with the same amount is idempotent and records nothing.
func (c *PaymentCoordinator) Confirm(ctx context.Context, teamSlug, paymentID string, amount *int64, correlationID string) (*ports.StatusResult, error) {
	defer c.observe("confirm")()

	if d := c.limiter.TryAcquire(config.PolicyProcessing, teamSlug, 1); !d.Allowed {
		c.metrics.IncRateLimited(config.PolicyProcessing)
		return nil, apperror.ErrRateLimited()
	}

	var result *ports.StatusResult
	err := c.withOwnedPayment(ctx, teamSlug, paymentID, func(p *domain.Payment) error {
		if expired, err := c.expireIfDue(ctx, p, correlationID); err != nil {
			return err
		} else if expired {
			return apperror.ErrExpired(string(domain.StatusDeadlineExpired))
		}

		captureAmount := p.Amount
		if amount != nil {
			captureAmount = *amount
		}

		if p.Status == domain.StatusConfirmed && captureAmount == p.ConfirmedAmount {
			result = statusOf(p)
			return nil
		}

		if _, err := fsm.Propose(p.Status, fsm.EventConfirm); err != nil {
			return apperror.ErrIllegalState(string(p.Status))
		}
		if captureAmount <= 0 {
			return apperror.Validation("confirm amount must be positive")
		}
		if captureAmount > p.Amount {
			return apperror.ErrAmountExceedsAuthorized()
		}

		p, err := c.capture(ctx, p, captureAmount, correlationID)
		if err != nil {
			return err
		}
		result = statusOf(p)
		return nil
	})
	return result, err
}

// Cancel voids a payment: CANCELLING/CANCELLED before authorization,
// REVERSING/REVERSED after.
func (c *PaymentCoordinator) Cancel(ctx context.Context, teamSlug, paymentID, correlationID string) (*ports.StatusResult, error) {
	defer c.observe("cancel")()

	if d := c.limiter.TryAcquire(config.PolicyProcessing, teamSlug, 1); !d.Allowed {
		c.metrics.IncRateLimited(config.PolicyProcessing)
		return nil, apperror.ErrRateLimited()
	}

	var result *ports.StatusResult
	err := c.withOwnedPayment(ctx, teamSlug, paymentID, func(p *domain.Payment) error {
		if expired, err := c.expireIfDue(ctx, p, correlationID); err != nil {
			return err
		} else if expired {
			return apperror.ErrExpired(string(domain.StatusDeadlineExpired))
		}

		event := fsm.EventCancel
		settle := fsm.EventCancelSettled
		call := c.acquirer.Cancel
		if p.Status == domain.StatusAuthorized {
			event = fsm.EventReverse
			settle = fsm.EventReverseSettled
			call = c.acquirer.Reverse
		}

		res, err := fsm.Propose(p.Status, event)
		if err != nil {
			return apperror.ErrIllegalState(string(p.Status))
		}
		p, err = c.persist(ctx, p, res.Next, ports.TransitionMeta{
			Actor:         domain.ActorMerchant,
			Reason:        "cancel requested",
			CorrelationID: correlationID,
		})
		if err != nil {
			return err
		}

		ack, err := c.callAcquirer(ctx, call, ports.AcquirerRequest{
			PaymentID:      p.PaymentID,
			Amount:         p.Amount,
			Currency:       p.Currency,
			IdempotencyKey: idempotencyKey(p),
		})
		if err != nil {
			p, ferr := c.fail(ctx, p, "acquirer unavailable during cancel", correlationID)
			if ferr != nil {
				return ferr
			}
			result = statusOf(p)
			return apperror.InternalError(err)
		}
		if !ack.Approved {
			return apperror.ErrAcquirerRejected(ack.Reason)
		}

		p, err = c.persistActed(ctx, p, settle, domain.ActorAcquirer, ack.Reason, correlationID)
		if err != nil {
			return err
		}
		result = statusOf(p)
		return nil
	})
	return result, err
}

// Refund returns funds on a confirmed payment, fully or partially. The sum
// of refunds never exceeds the confirmed amount.
func (c *PaymentCoordinator) Refund(ctx context.Context, teamSlug, paymentID string, amount int64, correlationID string) (*ports.StatusResult, error) {
	defer c.observe("refund")()

	if d := c.limiter.TryAcquire(config.PolicyProcessing, teamSlug, 1); !d.Allowed {
		c.metrics.IncRateLimited(config.PolicyProcessing)
		return nil, apperror.ErrRateLimited()
	}

	var result *ports.StatusResult
	err := c.withOwnedPayment(ctx, teamSlug, paymentID, func(p *domain.Payment) error {
		if amount <= 0 {
			return apperror.Validation("refund amount must be positive")
		}
		if _, err := fsm.Propose(p.Status, fsm.EventRefund); err != nil {
			return apperror.ErrIllegalState(string(p.Status))
		}
		total := p.RefundedAmount + amount
		if total > p.ConfirmedAmount {
			return apperror.ErrAmountExceedsAuthorized()
		}

		p, err := c.persistActed(ctx, p, fsm.EventRefund, domain.ActorMerchant, "refund requested", correlationID)
		if err != nil {
			return err
		}

		ack, err := c.callAcquirer(ctx, c.acquirer.Refund, ports.AcquirerRequest{
			PaymentID:      p.PaymentID,
			Amount:         amount,
			Currency:       p.Currency,
			IdempotencyKey: idempotencyKey(p),
		})
		if err != nil {
			p, ferr := c.fail(ctx, p, "acquirer unavailable during refund", correlationID)
			if ferr != nil {
				return ferr
			}
			result = statusOf(p)
			return apperror.InternalError(err)
		}
		if !ack.Approved {
			return apperror.ErrAcquirerRejected(ack.Reason)
		}

		event := fsm.EventRefundedPartial
		if total == p.ConfirmedAmount {
			event = fsm.EventRefundedFull
		}
		res, err := fsm.Propose(p.Status, event)
		if err != nil {
			return apperror.InternalError(err)
		}
		p, err = c.persist(ctx, p, res.Next, ports.TransitionMeta{
			Actor:          domain.ActorAcquirer,
			Reason:         fmt.Sprintf("refunded %d", amount),
			CorrelationID:  correlationID,
			RefundedAmount: &total,
		})
		if err != nil {
			return err
		}
		result = statusOf(p)
		return nil
	})
	return result, err
}

// Status is the read-only view; it never mutates the payment.
func (c *PaymentCoordinator) Status(ctx context.Context, teamSlug, paymentID string) (*ports.StatusResult, error) {
	defer c.observe("status")()

	p, err := c.payments.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if p == nil || p.TeamSlug != teamSlug {
		return nil, apperror.ErrNotFound("Payment")
	}
	return statusOf(p), nil
}

// ExpireOverdue sweeps non-terminal payments past their deadline into
// DEADLINE_EXPIRED. Run periodically through the payment queue.
func (c *PaymentCoordinator) ExpireOverdue(ctx context.Context) error {
	overdue, err := c.payments.ListExpired(ctx, c.now().UTC(), expirySweepBatch)
	if err != nil {
		return fmt.Errorf("list expired payments: %w", err)
	}
	for i := range overdue {
		p := &overdue[i]
		err := c.withPaymentLock(ctx, p.PaymentID, func(fresh *domain.Payment) error {
			_, err := c.expireIfDue(ctx, fresh, "expiry-sweeper")
			return err
		})
		if err != nil {
			c.log.Warn().Err(err).Str("payment_id", p.PaymentID).Msg("expiry sweep: payment skipped")
		}
	}
	return nil
}

// --- internals ---

// withPaymentLock serializes fn against every other writer of the payment.
func (c *PaymentCoordinator) withPaymentLock(ctx context.Context, paymentID string, fn func(p *domain.Payment) error) error {
	lease, err := c.locks.Acquire(ctx, "payment:"+paymentID, newHolderID(), c.cfg.LeaseDuration, c.cfg.LockTimeout)
	if err != nil {
		if errors.Is(err, ports.ErrLockTimeout) {
			c.metrics.IncLockTimeout()
			return apperror.ErrLockTimeout(err)
		}
		return apperror.InternalError(err)
	}
	defer func() {
		if rerr := c.locks.Release(context.WithoutCancel(ctx), lease); rerr != nil {
			c.log.Warn().Err(rerr).Str("key", lease.Key).Msg("lock release failed")
		}
	}()

	// Re-read under the lock: the row may have moved while we waited.
	p, err := c.payments.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return apperror.InternalError(err)
	}
	if p == nil {
		return apperror.ErrNotFound("Payment")
	}
	return fn(p)
}

// withOwnedPayment additionally enforces that the payment belongs to the
// calling team. Foreign payments read as not found.
func (c *PaymentCoordinator) withOwnedPayment(ctx context.Context, teamSlug, paymentID string, fn func(p *domain.Payment) error) error {
	return c.withPaymentLock(ctx, paymentID, func(p *domain.Payment) error {
		if p.TeamSlug != teamSlug {
			return apperror.ErrNotFound("Payment")
		}
		return fn(p)
	})
}

// persist applies one transition with the bounded conflict-retry loop and
// enqueues the webhook when the target state notifies.
func (c *PaymentCoordinator) persist(ctx context.Context, p *domain.Payment, to domain.PaymentStatus, meta ports.TransitionMeta) (*domain.Payment, error) {
	from := p.Status
	current := p
	for attempt := 0; attempt < transitionRetries; attempt++ {
		updated, err := c.payments.Transition(ctx, current.ID, current.Version, to, meta)
		if err == nil {
			c.metrics.IncTransition(string(from), string(to))
			if to.IsTerminal() {
				c.metrics.IncPayment(string(to))
			}
			c.maybeNotify(ctx, updated)
			return updated, nil
		}
		if !errors.Is(err, ports.ErrConcurrencyConflict) {
			return nil, apperror.InternalError(err)
		}
		// The lock should prevent this; re-read and retry as the backstop.
		current, err = c.payments.GetByPaymentID(ctx, p.PaymentID)
		if err != nil {
			return nil, apperror.InternalError(err)
		}
		if current == nil {
			return nil, apperror.ErrNotFound("Payment")
		}
		if current.Status != from {
			return nil, apperror.ErrIllegalState(string(current.Status))
		}
	}
	return nil, apperror.InternalError(fmt.Errorf("transition %s -> %s: conflict retries exhausted", from, to))
}

// persistActed proposes event and persists the result with standard meta.
func (c *PaymentCoordinator) persistActed(ctx context.Context, p *domain.Payment, event fsm.Event, actor domain.TransitionActor, reason, correlationID string) (*domain.Payment, error) {
	res, err := fsm.Propose(p.Status, event)
	if err != nil {
		return nil, apperror.ErrIllegalState(string(p.Status))
	}
	return c.persist(ctx, p, res.Next, ports.TransitionMeta{
		Actor:         actor,
		Reason:        reason,
		CorrelationID: correlationID,
	})
}

// capture drives AUTHORIZED -> CONFIRMING -> CONFIRMED for captureAmount.
func (c *PaymentCoordinator) capture(ctx context.Context, p *domain.Payment, captureAmount int64, correlationID string) (*domain.Payment, error) {
	res, err := fsm.Propose(p.Status, fsm.EventConfirm)
	if err != nil {
		return nil, apperror.ErrIllegalState(string(p.Status))
	}
	p, perr := c.persist(ctx, p, res.Next, ports.TransitionMeta{
		Actor:           domain.ActorMerchant,
		Reason:          "capture requested",
		CorrelationID:   correlationID,
		ConfirmedAmount: &captureAmount,
	})
	if perr != nil {
		return nil, perr
	}

	ack, err := c.callAcquirer(ctx, c.acquirer.Capture, ports.AcquirerRequest{
		PaymentID:      p.PaymentID,
		Amount:         captureAmount,
		Currency:       p.Currency,
		IdempotencyKey: idempotencyKey(p),
	})
	if err != nil {
		if _, ferr := c.fail(ctx, p, "acquirer unavailable during capture", correlationID); ferr != nil {
			return nil, ferr
		}
		return nil, apperror.InternalError(err)
	}
	if !ack.Approved {
		if _, ferr := c.fail(ctx, p, "capture rejected: "+ack.Reason, correlationID); ferr != nil {
			return nil, ferr
		}
		return nil, apperror.ErrAcquirerRejected(ack.Reason)
	}

	return c.persistActed(ctx, p, fsm.EventConfirmSettled, domain.ActorAcquirer, ack.Reason, correlationID)
}

// fail moves the payment to FAILED after an unrecoverable acquirer error.
func (c *PaymentCoordinator) fail(ctx context.Context, p *domain.Payment, reason, correlationID string) (*domain.Payment, error) {
	return c.persistActed(ctx, p, fsm.EventUnrecoverable, domain.ActorSystem, reason, correlationID)
}

// expireIfDue transitions an overdue payment to DEADLINE_EXPIRED.
func (c *PaymentCoordinator) expireIfDue(ctx context.Context, p *domain.Payment, correlationID string) (bool, error) {
	if p.Status.IsTerminal() || !p.IsExpired(c.now()) {
		return false, nil
	}
	if _, err := c.persistActed(ctx, p, fsm.EventDeadline, domain.ActorSystem, "payment deadline expired", correlationID); err != nil {
		return false, err
	}
	return true, nil
}

// callAcquirer retries transport failures within the idempotent budget.
// Business declines return immediately.
func (c *PaymentCoordinator) callAcquirer(
	ctx context.Context,
	call func(context.Context, ports.AcquirerRequest) (*ports.AcquirerResult, error),
	req ports.AcquirerRequest,
) (*ports.AcquirerResult, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.AcquirerRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := call(ctx, req)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ports.ErrAcquirerUnavailable) {
			return nil, err
		}
		lastErr = err
		c.log.Warn().
			Err(err).
			Str("payment_id", req.PaymentID).
			Int("attempt", attempt+1).
			Msg("acquirer call failed, retrying")
	}
	return nil, lastErr
}

// maybeNotify enqueues the state-change webhook; failures stay internal.
func (c *PaymentCoordinator) maybeNotify(ctx context.Context, p *domain.Payment) {
	if !shouldNotify(p.Status) {
		return
	}
	if err := c.notifier.Enqueue(context.WithoutCancel(ctx), p, c.now().UTC()); err != nil {
		c.log.Error().Err(err).Str("payment_id", p.PaymentID).Msg("webhook enqueue failed")
	}
}

// shouldNotify mirrors the state machine's notify entry actions.
func shouldNotify(s domain.PaymentStatus) bool {
	return s == domain.StatusAuthorized || s.IsTerminal() || s == domain.StatusPartialRefunded
}

func (c *PaymentCoordinator) checkAmount(team *domain.Team, amount int64) error {
	min, max := c.cfg.MinAmount, c.cfg.MaxAmount
	if team.MinAmount > min {
		min = team.MinAmount
	}
	if team.MaxAmount > 0 && team.MaxAmount < max {
		max = team.MaxAmount
	}
	if amount < min || amount > max {
		return apperror.Validation(fmt.Sprintf("amount must be between %d and %d", min, max))
	}
	return nil
}

func (c *PaymentCoordinator) observe(op string) func() {
	start := c.now()
	return func() {
		c.metrics.ObserveOperation(op, time.Since(start))
	}
}

func statusOf(p *domain.Payment) *ports.StatusResult {
	return &ports.StatusResult{
		PaymentID:      p.PaymentID,
		OrderID:        p.OrderID,
		Status:         p.Status,
		Amount:         p.Amount,
		RefundedAmount: p.RefundedAmount,
		Currency:       p.Currency,
	}
}

// idempotencyKey derives the acquirer idempotency key from the payment and
// its transition sequence, so a retried call cannot double-apply.
func idempotencyKey(p *domain.Payment) string {
	return fmt.Sprintf("%s-%d", p.PaymentID, p.Version)
}

func fallback(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// newPaymentID produces an external identifier: 16 decimal digits.
func newPaymentID() string {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return fmt.Sprintf("%016d", n)
}

func newHolderID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return fmt.Sprintf("coord-%x", b)
}

