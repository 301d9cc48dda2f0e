package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decodecollective/decode-backend/pkg/enums"
)

// Auction is the settlement root. Winner and profit-split fields are written
// exactly once, atomically, when the auction completes.
type Auction struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SellerID          uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	SellerEmail       string              `gorm:"column:seller_email;not null"`
	Title             string              `gorm:"column:title;not null"`
	Status            enums.AuctionStatus `gorm:"column:status;type:auction_status;not null;default:'active'"`
	StartPrice        decimal.Decimal     `gorm:"column:start_price;type:numeric(12,2);not null"`
	CurrentPrice      decimal.Decimal     `gorm:"column:current_price;type:numeric(12,2);not null"`
	EndTime           time.Time           `gorm:"column:end_time;not null"`
	WinnerBidID       *uuid.UUID          `gorm:"column:winner_bid_id;type:uuid"`
	ProfitAmount      *decimal.Decimal    `gorm:"column:profit_amount;type:numeric(12,2)"`
	PlatformFeeAmount *decimal.Decimal    `gorm:"column:platform_fee_amount;type:numeric(12,2)"`
	ModelPayoutAmount *decimal.Decimal    `gorm:"column:model_payout_amount;type:numeric(12,2)"`
	SchedulerHandle   *string             `gorm:"column:scheduler_handle"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
