package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PayType distinguishes single-stage from two-stage payments.
type PayType string

const (
	PayTypeSingleStage PayType = "O" // authorize and capture atomically
	PayTypeTwoStage    PayType = "T" // authorize now, capture later
)

// PaymentStatus represents the lifecycle state of a payment.
type PaymentStatus string

const (
	StatusInit            PaymentStatus = "INIT"
	StatusNew             PaymentStatus = "NEW"
	StatusFormShowed      PaymentStatus = "FORM_SHOWED"
	StatusAuthorizing     PaymentStatus = "AUTHORIZING"
	Status3DSChecking     PaymentStatus = "3DS_CHECKING"
	Status3DSChecked      PaymentStatus = "3DS_CHECKED"
	StatusAuthorized      PaymentStatus = "AUTHORIZED"
	StatusAuthFail        PaymentStatus = "AUTH_FAIL"
	StatusConfirming      PaymentStatus = "CONFIRMING"
	StatusConfirmed       PaymentStatus = "CONFIRMED"
	StatusCancelling      PaymentStatus = "CANCELLING"
	StatusCancelled       PaymentStatus = "CANCELLED"
	StatusReversing       PaymentStatus = "REVERSING"
	StatusReversed        PaymentStatus = "REVERSED"
	StatusRefunding       PaymentStatus = "REFUNDING"
	StatusRefunded        PaymentStatus = "REFUNDED"
	StatusPartialRefunded PaymentStatus = "PARTIAL_REFUNDED"
	StatusRejected        PaymentStatus = "REJECTED"
	StatusDeadlineExpired PaymentStatus = "DEADLINE_EXPIRED"
	StatusFailed          PaymentStatus = "FAILED"
)

// IsTerminal returns true if no further transitions are legal from s.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusReversed, StatusRefunded,
		StatusAuthFail, StatusRejected, StatusDeadlineExpired, StatusFailed:
		return true
	}
	return false
}

// Payment is the central entity: a single monetary intent through its lifecycle.
type Payment struct {
	ID              uuid.UUID     `json:"-"`
	PaymentID       string        `json:"payment_id"` // external, merchant-scoped, <=20 printable chars
	OrderID         string        `json:"order_id"`   // merchant-supplied, unique with TeamSlug
	TeamSlug        string        `json:"team_slug"`
	Amount          int64         `json:"amount"` // minor units, immutable after creation
	ConfirmedAmount int64         `json:"confirmed_amount"` // captured amount, <= Amount
	RefundedAmount  int64         `json:"refunded_amount"`
	Currency        string        `json:"currency"`
	PayType         PayType       `json:"pay_type"`
	Status          PaymentStatus `json:"status"`
	SuccessURL      string        `json:"success_url,omitempty"`
	FailURL         string        `json:"fail_url,omitempty"`
	NotificationURL string        `json:"notification_url,omitempty"`
	CustomerEmail   *string       `json:"customer_email,omitempty"`
	CustomerPhone   *string       `json:"customer_phone,omitempty"`
	Receipt         []byte        `json:"-"` // opaque JSON blob, never interpreted
	Description     *string       `json:"description,omitempty"`
	MaskedPAN       *string       `json:"masked_pan,omitempty"`
	CardDataEnc     *string       `json:"-"` // AES-256-GCM at rest
	Version         int64         `json:"-"` // optimistic concurrency column
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	ExpiresAt       time.Time     `json:"expires_at"`
	AuthorizedAt    *time.Time    `json:"authorized_at,omitempty"`
	ConfirmedAt     *time.Time    `json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time    `json:"cancelled_at,omitempty"`
}

// IsExpired reports whether the payment deadline has passed at t.
func (p *Payment) IsExpired(t time.Time) bool {
	return !t.Before(p.ExpiresAt)
}

// RemainingRefundable returns how much of the confirmed amount is still refundable.
func (p *Payment) RemainingRefundable() int64 {
	return p.ConfirmedAmount - p.RefundedAmount
}

// MaskPAN reduces a card number to first 6 + '*' + last 4.
// Anything shorter than 10 digits is masked entirely.
func MaskPAN(pan string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, pan)
	if len(digits) < 10 {
		return strings.Repeat("*", len(digits))
	}
	return digits[:6] + strings.Repeat("*", len(digits)-10) + digits[len(digits)-4:]
}
