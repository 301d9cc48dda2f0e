package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LimitedOffer is a bounded-quantity purchasable. QuantitySold never exceeds
// Quantity; the only writer is the slot-claim conditional update.
type LimitedOffer struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID     uuid.UUID       `gorm:"column:seller_id;type:uuid;not null"`
	Title        string          `gorm:"column:title;not null"`
	Price        decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Quantity     int             `gorm:"column:quantity;not null"`
	QuantitySold int             `gorm:"column:quantity_sold;not null;default:0"`
	IsActive     bool            `gorm:"column:is_active;not null;default:true"`
	ExpiresAt    *time.Time      `gorm:"column:expires_at"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// IsExpired reports whether the offer's deadline has passed at the given time.
func (o *LimitedOffer) IsExpired(now time.Time) bool {
	return o.ExpiresAt != nil && now.After(*o.ExpiresAt)
}
