package handler

import (
	"acquiring-gateway/internal/adapter/http/dto"
	"acquiring-gateway/internal/core/ports"
	"acquiring-gateway/pkg/apperror"
	"acquiring-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes operator login and gateway statistics.
type AdminHandler struct {
	authSvc  ports.AdminAuthService
	payments ports.PaymentRepository
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(authSvc ports.AdminAuthService, payments ports.PaymentRepository) *AdminHandler {
	return &AdminHandler{authSvc: authSvc, payments: payments}
}

// Login handles POST /api/admin/login.
func (h *AdminHandler) Login(c *gin.Context) {
	var req dto.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if req.Username == "" || req.Password == "" {
		response.Error(c, apperror.ErrMissingField("Username"))
		return
	}

	token, expiresAt, err := h.authSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "", gin.H{
		"AccessToken": token,
		"ExpiresAt":   expiresAt.Unix(),
	})
}

// Stats handles GET /api/admin/stats (admin JWT required). The team query
// parameter narrows the view to one merchant.
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.payments.GetStats(c.Request.Context(), c.Query("team"))
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}

	response.OK(c, "", gin.H{
		"Total":           stats.Total,
		"Confirmed":       stats.Confirmed,
		"Cancelled":       stats.Cancelled,
		"Failed":          stats.Failed,
		"ConfirmedVolume": stats.ConfirmedVolume,
		"RefundedVolume":  stats.RefundedVolume,
	})
}
