package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookStatus represents the delivery state of a webhook.
type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "PENDING"
	WebhookStatusDelivered WebhookStatus = "DELIVERED"
	WebhookStatusFailed    WebhookStatus = "FAILED"
)

// WebhookDelivery is one pending or settled state-change notification.
type WebhookDelivery struct {
	ID            uuid.UUID     `json:"id"`
	PaymentRef    uuid.UUID     `json:"payment_ref"`
	TeamSlug      string        `json:"team_slug"`
	URL           string        `json:"url"`
	Payload       string        `json:"payload"` // signed JSON body
	EventAt       time.Time     `json:"event_at"`
	Attempt       int           `json:"attempt"`
	HTTPStatus    *int          `json:"http_status,omitempty"`
	Status        WebhookStatus `json:"status"`
	NextAttemptAt *time.Time    `json:"next_attempt_at,omitempty"`
	LastError     *string       `json:"last_error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// IsTerminal returns true once no further delivery attempts will be made.
func (w *WebhookDelivery) IsTerminal() bool {
	return w.Status == WebhookStatusDelivered || w.Status == WebhookStatusFailed
}
