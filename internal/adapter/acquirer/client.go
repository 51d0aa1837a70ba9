// Package acquirer is the HTTP adapter for the external card network.
// The gateway only ever sees the CardAcquirer interface; this client is one
// implementation of it.
package acquirer

import (
	"context"
	"fmt"

	"acquiring-gateway/config"
	"acquiring-gateway/internal/core/ports"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Client implements ports.CardAcquirer over the acquirer's JSON API.
type Client struct {
	http       *resty.Client
	terminalID string
	log        zerolog.Logger
}

// NewClient creates the acquirer client.
func NewClient(cfg config.AcquirerConfig, log zerolog.Logger) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:       http,
		terminalID: cfg.TerminalID,
		log:        log,
	}
}

type operationRequest struct {
	TerminalID string `json:"terminal_id"`
	PaymentID  string `json:"payment_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	CardData   string `json:"card_data,omitempty"`
}

type operationResponse struct {
	Approved        bool   `json:"approved"`
	RequiresThreeDS bool   `json:"requires_3ds"`
	ResponseCode    string `json:"response_code"`
	Reason          string `json:"reason"`
}

// Authorize places an authorization hold on the card.
func (c *Client) Authorize(ctx context.Context, req ports.AcquirerRequest) (*ports.AcquirerResult, error) {
	return c.call(ctx, "/v1/authorize", req)
}

// Capture settles a previously authorized amount.
func (c *Client) Capture(ctx context.Context, req ports.AcquirerRequest) (*ports.AcquirerResult, error) {
	return c.call(ctx, "/v1/capture", req)
}

// Cancel voids a payment that was never authorized.
func (c *Client) Cancel(ctx context.Context, req ports.AcquirerRequest) (*ports.AcquirerResult, error) {
	return c.call(ctx, "/v1/cancel", req)
}

// Reverse releases an authorization hold before capture.
func (c *Client) Reverse(ctx context.Context, req ports.AcquirerRequest) (*ports.AcquirerResult, error) {
	return c.call(ctx, "/v1/reverse", req)
}

// Refund returns settled funds to the card.
func (c *Client) Refund(ctx context.Context, req ports.AcquirerRequest) (*ports.AcquirerResult, error) {
	return c.call(ctx, "/v1/refund", req)
}

func (c *Client) call(ctx context.Context, path string, req ports.AcquirerRequest) (*ports.AcquirerResult, error) {
	var out operationResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.IdempotencyKey).
		SetBody(operationRequest{
			TerminalID: c.terminalID,
			PaymentID:  req.PaymentID,
			Amount:     req.Amount,
			Currency:   req.Currency,
			CardData:   req.CardData,
		}).
		SetResult(&out).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ports.ErrAcquirerUnavailable, path, err)
	}
	if resp.StatusCode() >= 500 {
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ports.ErrAcquirerUnavailable, path, resp.StatusCode())
	}
	if resp.StatusCode() >= 400 {
		return nil, fmt.Errorf("acquirer rejected request: %s HTTP %d", path, resp.StatusCode())
	}

	c.log.Debug().
		Str("path", path).
		Str("payment_id", req.PaymentID).
		Bool("approved", out.Approved).
		Str("response_code", out.ResponseCode).
		Msg("acquirer call completed")

	reason := out.Reason
	if reason == "" {
		reason = out.ResponseCode
	}
	return &ports.AcquirerResult{
		Approved:        out.Approved,
		RequiresThreeDS: out.RequiresThreeDS,
		Reason:          reason,
	}, nil
}
