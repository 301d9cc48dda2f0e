package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decodecollective/decode-backend/pkg/enums"
)

// Bid records one bidder's offer and the card hold backing it. At most two
// bids per auction carry a live hold (requires_capture or captured); the
// pre-auth manager cancels the rest.
type Bid struct {
	ID                  uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AuctionID           uuid.UUID                 `gorm:"column:auction_id;type:uuid;not null;index"`
	BidderEmail         string                    `gorm:"column:bidder_email;not null"`
	Amount              decimal.Decimal           `gorm:"column:amount;type:numeric(12,2);not null"`
	Status              enums.BidStatus           `gorm:"column:status;type:bid_status;not null;default:'pending'"`
	PaymentIntentID     string                    `gorm:"column:payment_intent_id;not null"`
	PaymentIntentStatus enums.PaymentIntentStatus `gorm:"column:payment_intent_status;type:payment_intent_status;not null"`
	CreatedAt           time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
