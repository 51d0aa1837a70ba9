package response

import (
	"errors"
	"net/http"

	"acquiring-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Envelope is the shared response shape of every gateway endpoint.
// ErrorCode "0" means success.
type Envelope struct {
	Success       bool   `json:"Success"`
	Status        string `json:"Status,omitempty"`
	ErrorCode     string `json:"ErrorCode"`
	Message       string `json:"Message,omitempty"`
	Details       any    `json:"Details,omitempty"`
	CorrelationID string `json:"CorrelationId"`
}

// CtxCorrelationID is the gin context key carrying the request correlation id.
const CtxCorrelationID = "correlation_id"

// OK sends a success envelope merged with operation-specific fields.
// extra must marshal to a JSON object; its keys are emitted alongside the
// envelope via gin's JSON map rendering.
func OK(c *gin.Context, status string, extra gin.H) {
	body := gin.H{
		"Success":       true,
		"ErrorCode":     apperror.CodeSuccess,
		"CorrelationId": CorrelationID(c),
	}
	if status != "" {
		body["Status"] = status
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// Error sends an error envelope. *apperror.AppError carries the code and
// HTTP status; anything else becomes a 999 internal error.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, Envelope{
			Success:       false,
			Status:        appErr.PaymentStatus,
			ErrorCode:     appErr.Code,
			Message:       appErr.Message,
			CorrelationID: CorrelationID(c),
		})
		return
	}

	c.JSON(http.StatusInternalServerError, Envelope{
		Success:       false,
		ErrorCode:     apperror.CodeInternal,
		Message:       "Internal server error",
		CorrelationID: CorrelationID(c),
	})
}

// CorrelationID retrieves the request correlation id, generating one if the
// middleware has not set it.
func CorrelationID(c *gin.Context) string {
	if id, exists := c.Get(CtxCorrelationID); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return uuid.New().String()
}
