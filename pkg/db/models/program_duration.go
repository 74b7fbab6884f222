package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mentorahq/mentora-backend/pkg/enums"
)

// ProgramDuration is the purchasable catalog row: one duration of a program
// at a tier, priced in a single currency. Catalog management lives outside
// this service; checkout only reads these rows.
type ProgramDuration struct {
	ID            uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProgramID     uuid.UUID      `gorm:"column:program_id;type:uuid;not null;index"`
	TierID        uuid.UUID      `gorm:"column:tier_id;type:uuid;not null"`
	ExpertID      uuid.UUID      `gorm:"column:expert_id;type:uuid;not null"`
	Title         string         `gorm:"column:title;not null"`
	PriceCents    int64          `gorm:"column:price_cents;not null"`
	DiscountCents int64          `gorm:"column:discount_cents;not null;default:0"`
	Currency      enums.Currency `gorm:"column:currency;type:text;not null;default:'USD'"`
	Active        bool           `gorm:"column:active;not null;default:true"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
