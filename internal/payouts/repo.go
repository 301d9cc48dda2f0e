package payouts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/decodecollective/decode-backend/pkg/db"
	"github.com/decodecollective/decode-backend/pkg/db/models"
	"github.com/decodecollective/decode-backend/pkg/enums"
)

// Repository persists payouts. A unique index on auction_id makes creation a
// natural idempotency point: concurrent settlements race, one insert wins.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payout *models.Payout) error
	FindByAuctionID(ctx context.Context, auctionID uuid.UUID) (*models.Payout, error)
	MarkProcessing(ctx context.Context, auctionID uuid.UUID, unlockedAt time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PayoutStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payout repository bound to the provided database.
func NewRepository(gdb *gorm.DB) Repository {
	return &repository{db: gdb}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the payout. A duplicate for the same auction is treated as
// success so redelivered settlements never double-pay.
func (r *repository) Create(ctx context.Context, payout *models.Payout) error {
	err := r.db.WithContext(ctx).Create(payout).Error
	if err != nil && db.IsUniqueViolation(err) {
		return nil
	}
	return err
}

func (r *repository) FindByAuctionID(ctx context.Context, auctionID uuid.UUID) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).Where("auction_id = ?", auctionID).First(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// MarkProcessing moves a pending payout to processing. Returns false when the
// payout already left pending, so redelivered unlock callbacks are no-ops.
func (r *repository) MarkProcessing(ctx context.Context, auctionID uuid.UUID, unlockedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("auction_id = ? AND status = ?", auctionID, enums.PayoutStatusPending).
		UpdateColumns(map[string]any{
			"status":      enums.PayoutStatusProcessing,
			"unlocked_at": unlockedAt,
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.PayoutStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}
