package handler

import (
	"acquiring-gateway/internal/adapter/http/dto"
	"acquiring-gateway/internal/adapter/http/middleware"
	"acquiring-gateway/internal/core/domain"
	"acquiring-gateway/internal/core/ports"
	"acquiring-gateway/pkg/apperror"
	"acquiring-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// PaymentHandler exposes the merchant payment lifecycle endpoints.
type PaymentHandler struct {
	coordinator ports.PaymentCoordinator
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(coordinator ports.PaymentCoordinator) *PaymentHandler {
	return &PaymentHandler{coordinator: coordinator}
}

// Init handles POST /api/payment/init.
func (h *PaymentHandler) Init(c *gin.Context) {
	team, ok := middleware.TeamFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrAuthRequired())
		return
	}

	var req dto.InitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.coordinator.Init(c.Request.Context(), ports.InitRequest{
		TeamSlug:        team.Slug,
		OrderID:         req.OrderID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		PayType:         domain.PayType(req.PayType),
		Description:     req.Description,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		SuccessURL:      req.SuccessURL,
		FailURL:         req.FailURL,
		NotificationURL: req.NotificationURL,
		Receipt:         req.Receipt,
		CorrelationID:   response.CorrelationID(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, string(result.Status), gin.H{
		"PaymentId":  result.PaymentID,
		"OrderId":    req.OrderID,
		"Amount":     req.Amount,
		"PaymentURL": result.PaymentURL,
	})
}

// Confirm handles POST /api/payment/confirm (two-stage capture).
func (h *PaymentHandler) Confirm(c *gin.Context) {
	team, ok := middleware.TeamFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrAuthRequired())
		return
	}

	var req dto.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.coordinator.Confirm(c.Request.Context(), team.Slug, req.PaymentID, req.Amount, response.CorrelationID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.writeStatus(c, result)
}

// Cancel handles POST /api/payment/cancel.
func (h *PaymentHandler) Cancel(c *gin.Context) {
	team, ok := middleware.TeamFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrAuthRequired())
		return
	}

	var req dto.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.coordinator.Cancel(c.Request.Context(), team.Slug, req.PaymentID, response.CorrelationID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.writeStatus(c, result)
}

// Refund handles POST /api/payment/refund.
func (h *PaymentHandler) Refund(c *gin.Context) {
	team, ok := middleware.TeamFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrAuthRequired())
		return
	}

	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.coordinator.Refund(c.Request.Context(), team.Slug, req.PaymentID, req.Amount, response.CorrelationID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.writeStatus(c, result)
}

// Status handles POST /api/payment/status.
func (h *PaymentHandler) Status(c *gin.Context) {
	team, ok := middleware.TeamFromContext(c)
	if !ok {
		response.Error(c, apperror.ErrAuthRequired())
		return
	}

	var req dto.StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.coordinator.Status(c.Request.Context(), team.Slug, req.PaymentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.writeStatus(c, result)
}

// ShowForm handles GET /api/payment/form/:paymentId — the customer fetching
// the hosted payment form. The form itself lives outside the gateway; this
// endpoint transitions the payment and returns the form descriptor.
func (h *PaymentHandler) ShowForm(c *gin.Context) {
	paymentID := c.Param("paymentId")
	if paymentID == "" {
		response.Error(c, apperror.ErrMissingField("PaymentId"))
		return
	}

	p, err := h.coordinator.ShowForm(c.Request.Context(), paymentID, response.CorrelationID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, string(p.Status), gin.H{
		"PaymentId":   p.PaymentID,
		"Amount":      p.Amount,
		"Currency":    p.Currency,
		"Description": p.Description,
	})
}

// SubmitCard handles POST /api/payment/submit — card data arriving from the
// hosted form.
func (h *PaymentHandler) SubmitCard(c *gin.Context) {
	var req dto.SubmitCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.coordinator.SubmitCard(c.Request.Context(), req.PaymentID, req.CardData, response.CorrelationID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.writeStatus(c, result)
}

// Complete3DS handles POST /api/payment/3ds/complete — the 3-D Secure
// challenge callback.
func (h *PaymentHandler) Complete3DS(c *gin.Context) {
	var req dto.Complete3DSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if req.PaymentID == "" {
		response.Error(c, apperror.ErrMissingField("PaymentId"))
		return
	}

	result, err := h.coordinator.Complete3DS(c.Request.Context(), req.PaymentID, req.Passed, response.CorrelationID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.writeStatus(c, result)
}

func (h *PaymentHandler) writeStatus(c *gin.Context, r *ports.StatusResult) {
	response.OK(c, string(r.Status), gin.H{
		"PaymentId":      r.PaymentID,
		"OrderId":        r.OrderID,
		"Amount":         r.Amount,
		"RefundedAmount": r.RefundedAmount,
		"Currency":       r.Currency,
	})
}
