package dto

import "encoding/json"

// Request envelopes share TeamSlug and Token; Token is verified by the auth
// middleware before any handler runs.

// InitRequest is the body of POST /api/payment/init.
type InitRequest struct {
	TeamSlug        string          `json:"TeamSlug"`
	Token           string          `json:"Token"`
	OrderID         string          `json:"OrderId"`
	Amount          int64           `json:"Amount"`
	Currency        string          `json:"Currency"`
	PayType         string          `json:"PayType"`
	Description     *string         `json:"Description,omitempty"`
	CustomerEmail   *string         `json:"Email,omitempty"`
	CustomerPhone   *string         `json:"Phone,omitempty"`
	SuccessURL      string          `json:"SuccessURL,omitempty"`
	FailURL         string          `json:"FailURL,omitempty"`
	NotificationURL string          `json:"NotificationURL,omitempty"`
	Receipt         json.RawMessage `json:"Receipt,omitempty"`
}

// ConfirmRequest is the body of POST /api/payment/confirm.
type ConfirmRequest struct {
	TeamSlug  string `json:"TeamSlug"`
	Token     string `json:"Token"`
	PaymentID string `json:"PaymentId"`
	Amount    *int64 `json:"Amount,omitempty"`
}

// CancelRequest is the body of POST /api/payment/cancel.
type CancelRequest struct {
	TeamSlug  string `json:"TeamSlug"`
	Token     string `json:"Token"`
	PaymentID string `json:"PaymentId"`
}

// RefundRequest is the body of POST /api/payment/refund.
type RefundRequest struct {
	TeamSlug  string `json:"TeamSlug"`
	Token     string `json:"Token"`
	PaymentID string `json:"PaymentId"`
	Amount    int64  `json:"Amount"`
}

// StatusRequest is the body of POST /api/payment/status.
type StatusRequest struct {
	TeamSlug  string `json:"TeamSlug"`
	Token     string `json:"Token"`
	PaymentID string `json:"PaymentId"`
}

// SubmitCardRequest is the body of POST /api/payment/submit.
type SubmitCardRequest struct {
	PaymentID string `json:"PaymentId"`
	CardData  string `json:"CardData"`
}

// Complete3DSRequest is the body of POST /api/payment/3ds/complete.
type Complete3DSRequest struct {
	PaymentID string `json:"PaymentId"`
	Passed    bool   `json:"Passed"`
}

// RegisterTeamRequest is the body of POST /api/team/register (admin only).
type RegisterTeamRequest struct {
	TeamSlug        string   `json:"TeamSlug"`
	Password        string   `json:"Password"`
	DisplayName     string   `json:"DisplayName"`
	SuccessURL      string   `json:"SuccessURL,omitempty"`
	FailURL         string   `json:"FailURL,omitempty"`
	NotificationURL string   `json:"NotificationURL,omitempty"`
	Currencies      []string `json:"Currencies,omitempty"`
	MinAmount       int64    `json:"MinAmount,omitempty"`
	MaxAmount       int64    `json:"MaxAmount,omitempty"`
	DailyLimit      int64    `json:"DailyLimit,omitempty"`
}

// AdminLoginRequest is the body of POST /api/admin/login.
type AdminLoginRequest struct {
	Username string `json:"Username"`
	Password string `json:"Password"`
}
