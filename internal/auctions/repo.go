package auctions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/decodecollective/decode-backend/pkg/db/models"
	"github.com/decodecollective/decode-backend/pkg/enums"
)

// Repository exposes persistence for auctions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	Complete(ctx context.Context, params CompleteParams) (bool, error)
	End(ctx context.Context, id uuid.UUID) (bool, error)
	RaiseCurrentPrice(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error
	SetSchedulerHandle(ctx context.Context, id uuid.UUID, handle string) error
	ClearSchedulerHandle(ctx context.Context, id uuid.UUID) error
}

// CompleteParams carries every field of the one-shot completion write.
type CompleteParams struct {
	AuctionID   uuid.UUID
	WinnerBidID uuid.UUID
	Profit      decimal.Decimal
	PlatformFee decimal.Decimal
	NetPayout   decimal.Decimal
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an auction repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	var auction models.Auction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&auction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &auction, nil
}

// Complete writes winner and profit-split fields in one statement, guarded so
// a terminal auction is never overwritten. Returns false when another close
// already finalized the row.
func (r *repository) Complete(ctx context.Context, params CompleteParams) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("id = ? AND status NOT IN ?", params.AuctionID, terminalStatuses()).
		UpdateColumns(map[string]any{
			"status":              enums.AuctionStatusCompleted,
			"winner_bid_id":       params.WinnerBidID,
			"profit_amount":       params.Profit,
			"platform_fee_amount": params.PlatformFee,
			"model_payout_amount": params.NetPayout,
			"updated_at":          time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// End closes the auction with no winner. Returns false when the auction was
// already terminal.
func (r *repository) End(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("id = ? AND status NOT IN ?", id, terminalStatuses()).
		UpdateColumns(map[string]any{
			"status":     enums.AuctionStatusEnded,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RaiseCurrentPrice lifts current_price to amount only while it is below it,
// so concurrent bids converge on the maximum regardless of arrival order.
func (r *repository) RaiseCurrentPrice(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("id = ? AND current_price < ?", id, amount).
		UpdateColumn("current_price", amount).Error
}

func (r *repository) SetSchedulerHandle(ctx context.Context, id uuid.UUID, handle string) error {
	return r.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("id = ?", id).
		UpdateColumn("scheduler_handle", handle).Error
}

func (r *repository) ClearSchedulerHandle(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Auction{}).
		Where("id = ?", id).
		UpdateColumn("scheduler_handle", nil).Error
}

func terminalStatuses() []enums.AuctionStatus {
	return []enums.AuctionStatus{
		enums.AuctionStatusEnded,
		enums.AuctionStatusCompleted,
		enums.AuctionStatusCancelled,
	}
}
