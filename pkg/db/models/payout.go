package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decodecollective/decode-backend/pkg/enums"
)

// Payout is created exactly once per completed auction with a winner. The
// transfer process mutates status only.
type Payout struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RecipientID uuid.UUID          `gorm:"column:recipient_id;type:uuid;not null"`
	AuctionID   uuid.UUID          `gorm:"column:auction_id;type:uuid;not null;uniqueIndex:uq_payouts_auction_id"`
	GrossAmount decimal.Decimal    `gorm:"column:gross_amount;type:numeric(12,2);not null"`
	PlatformFee decimal.Decimal    `gorm:"column:platform_fee;type:numeric(12,2);not null"`
	NetAmount   decimal.Decimal    `gorm:"column:net_amount;type:numeric(12,2);not null"`
	Status      enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'pending'"`
	UnlockedAt  *time.Time         `gorm:"column:unlocked_at"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
