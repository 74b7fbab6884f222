package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mentorahq/mentora-backend/pkg/enums"
)

// Refund represents one refund attempt against a paid order. The row is
// persisted in pending state before the gateway is called so a crash
// mid-call still leaves an auditable trace. Rows are never deleted.
type Refund struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	AmountCents     int64              `gorm:"column:amount_cents;not null"`
	Reason          string             `gorm:"column:reason;not null"`
	Status          enums.RefundStatus `gorm:"column:status;type:refund_status;not null;default:'pending'"`
	GatewayRefundID *string            `gorm:"column:gateway_refund_id"`
	FailureReason   *string            `gorm:"column:failure_reason"`
	InitiatedBy     uuid.UUID          `gorm:"column:initiated_by;type:uuid;not null"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
