package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OfferPurchase is written only after a slot claim succeeds, so a purchase
// row implies a counted slot.
type OfferPurchase struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OfferID         uuid.UUID       `gorm:"column:offer_id;type:uuid;not null;index"`
	BuyerEmail      string          `gorm:"column:buyer_email;not null"`
	PaymentIntentID string          `gorm:"column:payment_intent_id;not null"`
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
}
