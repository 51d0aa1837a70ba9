package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionInit       AuditAction = "PAYMENT_INIT"
	AuditActionConfirm    AuditAction = "PAYMENT_CONFIRM"
	AuditActionCancel     AuditAction = "PAYMENT_CANCEL"
	AuditActionRefund     AuditAction = "PAYMENT_REFUND"
	AuditActionStatus     AuditAction = "PAYMENT_STATUS"
	AuditActionSubmitCard AuditAction = "PAYMENT_SUBMIT"
	AuditActionRegister   AuditAction = "TEAM_REGISTER"
	AuditActionLogin      AuditAction = "ADMIN_LOGIN"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID            uuid.UUID   `json:"id"`
	TeamSlug      *string     `json:"team_slug,omitempty"`
	Action        AuditAction `json:"action"`
	ResourceType  string      `json:"resource_type"`
	ResourceID    string      `json:"resource_id,omitempty"`
	Details       string      `json:"details,omitempty"` // JSON string
	CorrelationID string      `json:"correlation_id"`
	IPAddress     string      `json:"ip_address"`
	CreatedAt     time.Time   `json:"created_at"`
}
