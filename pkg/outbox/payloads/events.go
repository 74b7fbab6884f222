package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderPaidEvent carries what the enrollment-granting consumer needs to act:
// who bought which program duration at which tier, and which expert grants
// access. Consumers must not call back into this service.
type OrderPaidEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	BuyerID    uuid.UUID `json:"buyer_id"`
	ProgramID  uuid.UUID `json:"program_id"`
	DurationID uuid.UUID `json:"duration_id"`
	TierID     uuid.UUID `json:"tier_id"`
	ExpertID   uuid.UUID `json:"expert_id"`
}

// OrderFailedEvent reports a payment that failed or was abandoned.
type OrderFailedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	BuyerID uuid.UUID `json:"buyer_id"`
	Reason  string    `json:"reason"`
}

// OrderRefundedEvent reports a completed refund.
type OrderRefundedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	RefundID    uuid.UUID `json:"refund_id"`
	BuyerID     uuid.UUID `json:"buyer_id"`
	AmountCents int64     `json:"amount_cents"`
	RefundedAt  time.Time `json:"refunded_at"`
}
