package middleware

import (
	"fmt"
	"time"

	"acquiring-gateway/internal/core/domain"
	"acquiring-gateway/internal/core/ports"
	"acquiring-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// auditedRoutes maps request paths to audit actions.
var auditedRoutes = map[string]domain.AuditAction{
	"/api/payment/init":    domain.AuditActionInit,
	"/api/payment/confirm": domain.AuditActionConfirm,
	"/api/payment/cancel":  domain.AuditActionCancel,
	"/api/payment/refund":  domain.AuditActionRefund,
	"/api/payment/status":  domain.AuditActionStatus,
	"/api/payment/submit":  domain.AuditActionSubmitCard,
	"/api/team/register":   domain.AuditActionRegister,
	"/api/admin/login":     domain.AuditActionLogin,
}

// AuditLog records every audited call after the response is written.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		action, ok := auditedRoutes[c.Request.URL.Path]
		if !ok {
			return
		}

		entry := domain.AuditLog{
			ID:            uuid.New(),
			Action:        action,
			ResourceType:  "payment",
			Details:       fmt.Sprintf(`{"status":%d}`, c.Writer.Status()),
			CorrelationID: response.CorrelationID(c),
			IPAddress:     c.ClientIP(),
			CreatedAt:     time.Now().UTC(),
		}
		if action == domain.AuditActionRegister {
			entry.ResourceType = "team"
		}
		if slug := c.GetString(CtxTeamSlug); slug != "" {
			entry.TeamSlug = &slug
		}

		auditSvc.Record(c.Request.Context(), entry)
	}
}
