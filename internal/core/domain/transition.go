package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransitionActor identifies who caused a state transition.
type TransitionActor string

const (
	ActorSystem   TransitionActor = "SYSTEM"
	ActorMerchant TransitionActor = "MERCHANT"
	ActorAcquirer TransitionActor = "ACQUIRER"
)

// PaymentTransition is an append-only audit record of one status change.
// Transitions reference the payment by id only; the payment row keeps no
// back-reference.
type PaymentTransition struct {
	ID            uuid.UUID       `json:"id"`
	PaymentRef    uuid.UUID       `json:"payment_ref"`
	FromStatus    PaymentStatus   `json:"from_status"`
	ToStatus      PaymentStatus   `json:"to_status"`
	Actor         TransitionActor `json:"actor"`
	Reason        string          `json:"reason,omitempty"`
	CorrelationID string          `json:"correlation_id"`
	CreatedAt     time.Time       `json:"created_at"`
}
