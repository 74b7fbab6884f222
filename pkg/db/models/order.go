package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mentorahq/mentora-backend/pkg/enums"
)

// Order represents one purchase attempt for a program duration.
//
// GatewayOrderID is written once when the charge call succeeds and is never
// overwritten. Exactly one of GatewayPaymentID / FailureReason is set once
// the status leaves pending.
type Order struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID          uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null;index"`
	ProgramID        uuid.UUID            `gorm:"column:program_id;type:uuid;not null"`
	DurationID       uuid.UUID            `gorm:"column:duration_id;type:uuid;not null"`
	TierID           uuid.UUID            `gorm:"column:tier_id;type:uuid;not null"`
	ExpertID         uuid.UUID            `gorm:"column:expert_id;type:uuid;not null"`
	AmountCents      int64                `gorm:"column:amount_cents;not null"`
	DiscountCents    int64                `gorm:"column:discount_cents;not null;default:0"`
	Currency         enums.Currency       `gorm:"column:currency;type:text;not null;default:'USD'"`
	LocationCode     string               `gorm:"column:location_code;not null"`
	Status           enums.OrderStatus    `gorm:"column:status;type:order_status;not null;default:'pending'"`
	Gateway          enums.PaymentGateway `gorm:"column:gateway;type:payment_gateway;not null"`
	GatewayOrderID   *string              `gorm:"column:gateway_order_id"`
	GatewayPaymentID *string              `gorm:"column:gateway_payment_id"`
	GatewayResponse  json.RawMessage      `gorm:"column:gateway_response;type:jsonb"`
	FailureReason    *string              `gorm:"column:failure_reason"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
