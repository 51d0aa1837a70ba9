package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"acquiring-gateway/config"
	"acquiring-gateway/internal/core/domain"
	"acquiring-gateway/internal/core/ports"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const webhookPollInterval = 2 * time.Second

// webhookBatchSize bounds one dispatcher sweep.
const webhookBatchSize = 200

// NotificationPayload is the JSON body sent to the merchant, signed with the
// same token algorithm the merchant uses on requests.
type NotificationPayload struct {
	TeamSlug  string `json:"TeamSlug"`
	PaymentID string `json:"PaymentId"`
	OrderID   string `json:"OrderId"`
	Status    string `json:"Status"`
	Amount    int64  `json:"Amount"`
	Currency  string `json:"Currency"`
	Success   bool   `json:"Success"`
	ErrorCode string `json:"ErrorCode"`
	EventAt   int64  `json:"EventAt"` // unix seconds
	Token     string `json:"Token"`
}

// WebhookService implements ports.WebhookNotifier with at-least-once
// delivery: every state change is persisted as a WebhookDelivery and a
// background dispatcher drains due records on the retry schedule.
// Deliveries for different payments run concurrently; within one payment
// they stay ordered by event timestamp.
type WebhookService struct {
	cfg      config.WebhookConfig
	repo     ports.WebhookRepository
	teams    ports.TeamStore
	verifier ports.TokenVerifier
	client   *resty.Client
	metrics  ports.MetricsSink
	log      zerolog.Logger

	mu       sync.Mutex
	inFlight map[uuid.UUID]bool // payment refs currently being delivered

	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewWebhookService creates the notifier. Call Start to launch the dispatcher.
func NewWebhookService(
	cfg config.WebhookConfig,
	repo ports.WebhookRepository,
	teams ports.TeamStore,
	verifier ports.TokenVerifier,
	client *resty.Client,
	metrics ports.MetricsSink,
	log zerolog.Logger,
) *WebhookService {
	if len(cfg.Schedule) == 0 {
		cfg.Schedule = config.DefaultWebhookSchedule()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 7
	}
	return &WebhookService{
		cfg:      cfg,
		repo:     repo,
		teams:    teams,
		verifier: verifier,
		client:   client,
		metrics:  metrics,
		log:      log,
		inFlight: make(map[uuid.UUID]bool),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Enqueue records a pending delivery for the payment's current state.
// Failures here are delivery-record failures only; they never affect the
// API response for the state change itself.
func (s *WebhookService) Enqueue(ctx context.Context, p *domain.Payment, eventAt time.Time) error {
	team, err := s.teams.Lookup(ctx, p.TeamSlug)
	if err != nil {
		return fmt.Errorf("webhook team lookup: %w", err)
	}
	if team == nil {
		return fmt.Errorf("webhook: team %s not found", p.TeamSlug)
	}

	url := p.NotificationURL
	if url == "" {
		url = team.NotificationURL
	}
	if url == "" {
		s.log.Debug().Str("team_slug", p.TeamSlug).Str("payment_id", p.PaymentID).
			Msg("no notification URL configured, skipping webhook")
		return nil
	}

	payload := NotificationPayload{
		TeamSlug:  p.TeamSlug,
		PaymentID: p.PaymentID,
		OrderID:   p.OrderID,
		Status:    string(p.Status),
		Amount:    p.Amount,
		Currency:  p.Currency,
		Success:   true,
		ErrorCode: "0",
		EventAt:   eventAt.Unix(),
	}
	payload.Token = s.verifier.Compute(map[string]any{
		"TeamSlug":  payload.TeamSlug,
		"PaymentId": payload.PaymentID,
		"OrderId":   payload.OrderID,
		"Status":    payload.Status,
		"Amount":    payload.Amount,
		"Currency":  payload.Currency,
		"Success":   payload.Success,
		"ErrorCode": payload.ErrorCode,
		"EventAt":   payload.EventAt,
	}, team.PasswordHash)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook marshal: %w", err)
	}

	now := time.Now().UTC()
	d := &domain.WebhookDelivery{
		ID:         uuid.New(),
		PaymentRef: p.ID,
		TeamSlug:   p.TeamSlug,
		URL:        url,
		Payload:    string(body),
		EventAt:    eventAt,
		Attempt:    0,
		Status:     domain.WebhookStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return fmt.Errorf("webhook persist: %w", err)
	}
	return nil
}

// Start launches the background dispatcher.
func (s *WebhookService) Start() {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(webhookPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.quit:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

// Stop halts the dispatcher.
func (s *WebhookService) Stop() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}

// sweep delivers all due records, one goroutine per payment.
func (s *WebhookService) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), webhookPollInterval*10)
	defer cancel()

	due, err := s.repo.ListDue(ctx, time.Now().UTC(), webhookBatchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("webhook: listing due deliveries failed")
		return
	}

	groups := make(map[uuid.UUID][]domain.WebhookDelivery)
	for _, d := range due {
		groups[d.PaymentRef] = append(groups[d.PaymentRef], d)
	}

	for ref, batch := range groups {
		s.mu.Lock()
		if s.inFlight[ref] {
			s.mu.Unlock()
			continue
		}
		s.inFlight[ref] = true
		s.mu.Unlock()

		go func(ref uuid.UUID, batch []domain.WebhookDelivery) {
			defer func() {
				s.mu.Lock()
				delete(s.inFlight, ref)
				s.mu.Unlock()
			}()
			for i := range batch {
				s.deliver(&batch[i])
			}
		}(ref, batch)
	}
}

// DeliverDue runs one synchronous sweep; the background dispatcher uses the
// concurrent sweep instead.
func (s *WebhookService) DeliverDue(ctx context.Context) error {
	due, err := s.repo.ListDue(ctx, time.Now().UTC(), webhookBatchSize)
	if err != nil {
		return err
	}
	for i := range due {
		s.deliver(&due[i])
	}
	return nil
}

func (s *WebhookService) deliver(d *domain.WebhookDelivery) {
	ctx := context.Background()
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(d.Payload).
		Post(d.URL)

	d.Attempt++
	now := time.Now().UTC()
	d.UpdatedAt = now

	success := err == nil && resp.StatusCode() >= 200 && resp.StatusCode() < 300
	if err == nil {
		code := resp.StatusCode()
		d.HTTPStatus = &code
	} else {
		msg := err.Error()
		d.LastError = &msg
	}

	switch {
	case success:
		d.Status = domain.WebhookStatusDelivered
		d.NextAttemptAt = nil
		d.LastError = nil
		if s.metrics != nil {
			s.metrics.IncWebhook("delivered")
		}
		s.log.Info().
			Str("delivery_id", d.ID.String()).
			Int("attempt", d.Attempt).
			Msg("webhook delivered")
	case d.Attempt >= s.cfg.MaxAttempts:
		d.Status = domain.WebhookStatusFailed
		d.NextAttemptAt = nil
		if s.metrics != nil {
			s.metrics.IncWebhook("failed")
		}
		s.log.Error().
			Str("delivery_id", d.ID.String()).
			Int("attempt", d.Attempt).
			Msg("webhook delivery attempts exhausted")
	default:
		offset := s.cfg.Schedule[len(s.cfg.Schedule)-1]
		if d.Attempt < len(s.cfg.Schedule) {
			offset = s.cfg.Schedule[d.Attempt]
		}
		next := now.Add(offset)
		d.NextAttemptAt = &next
		if s.metrics != nil {
			s.metrics.IncWebhook("retry")
		}
		s.log.Warn().
			Str("delivery_id", d.ID.String()).
			Int("attempt", d.Attempt).
			Time("next_attempt", next).
			Msg("webhook delivery failed, retrying")
	}

	if err := s.repo.Update(ctx, d); err != nil {
		s.log.Error().Err(err).Str("delivery_id", d.ID.String()).Msg("webhook: persisting delivery state failed")
	}
}
