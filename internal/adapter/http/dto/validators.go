package dto

import (
	"strconv"
	"strings"

	"acquiring-gateway/internal/core/domain"
	"acquiring-gateway/pkg/apperror"
)

const (
	maxOrderIDLen   = 36
	maxPaymentIDLen = 20
	maxAmountDigits = 10
)

// Validate checks the init request shape. The coordinator enforces the
// merchant-specific limits; this layer rejects malformed input so the
// coordinator never sees an invalid request.
func (r *InitRequest) Validate() *apperror.AppError {
	if r.TeamSlug == "" {
		return apperror.ErrMissingField("TeamSlug")
	}
	if r.OrderID == "" {
		return apperror.ErrMissingField("OrderId")
	}
	if len(r.OrderID) > maxOrderIDLen {
		return apperror.Validation("OrderId exceeds 36 characters")
	}
	if r.Amount < 1 {
		return apperror.Validation("Amount must be a positive integer of minor units")
	}
	if len(strconv.FormatInt(r.Amount, 10)) > maxAmountDigits {
		return apperror.Validation("Amount exceeds 10 digits")
	}
	if r.Currency != "" && len(r.Currency) != 3 {
		return apperror.Validation("Currency must be an ISO 4217 code")
	}
	switch r.PayType {
	case "", string(domain.PayTypeSingleStage), string(domain.PayTypeTwoStage):
	default:
		return apperror.Validation("PayType must be O or T")
	}
	if r.CustomerEmail != nil && !strings.Contains(*r.CustomerEmail, "@") {
		return apperror.Validation("Email is malformed")
	}
	return nil
}

// Validate checks the confirm request shape.
func (r *ConfirmRequest) Validate() *apperror.AppError {
	if err := requirePaymentID(r.TeamSlug, r.PaymentID); err != nil {
		return err
	}
	if r.Amount != nil && *r.Amount < 1 {
		return apperror.Validation("Amount must be a positive integer of minor units")
	}
	return nil
}

// Validate checks the cancel request shape.
func (r *CancelRequest) Validate() *apperror.AppError {
	return requirePaymentID(r.TeamSlug, r.PaymentID)
}

// Validate checks the refund request shape.
func (r *RefundRequest) Validate() *apperror.AppError {
	if err := requirePaymentID(r.TeamSlug, r.PaymentID); err != nil {
		return err
	}
	if r.Amount < 1 {
		return apperror.Validation("Amount must be a positive integer of minor units")
	}
	return nil
}

// Validate checks the status request shape.
func (r *StatusRequest) Validate() *apperror.AppError {
	return requirePaymentID(r.TeamSlug, r.PaymentID)
}

// Validate checks the card submission shape.
func (r *SubmitCardRequest) Validate() *apperror.AppError {
	if r.PaymentID == "" {
		return apperror.ErrMissingField("PaymentId")
	}
	if r.CardData == "" {
		return apperror.ErrMissingField("CardData")
	}
	return nil
}

// Validate checks the team registration shape.
func (r *RegisterTeamRequest) Validate() *apperror.AppError {
	if r.TeamSlug == "" {
		return apperror.ErrMissingField("TeamSlug")
	}
	if !domain.ValidSlug(r.TeamSlug) {
		return apperror.Validation("TeamSlug must be 3-50 characters of [A-Za-z0-9_-]")
	}
	if r.Password == "" {
		return apperror.ErrMissingField("Password")
	}
	if len(r.Password) < 8 {
		return apperror.Validation("Password must be at least 8 characters")
	}
	return nil
}

func requirePaymentID(teamSlug, paymentID string) *apperror.AppError {
	if teamSlug == "" {
		return apperror.ErrMissingField("TeamSlug")
	}
	if paymentID == "" {
		return apperror.ErrMissingField("PaymentId")
	}
	if len(paymentID) > maxPaymentIDLen {
		return apperror.Validation("PaymentId exceeds 20 characters")
	}
	return nil
}
