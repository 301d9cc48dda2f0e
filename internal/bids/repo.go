package bids

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/decodecollective/decode-backend/pkg/db/models"
	"github.com/decodecollective/decode-backend/pkg/enums"
)

// Repository exposes persistence for bids.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, bid *models.Bid) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	FindByPaymentIntentID(ctx context.Context, intentID string) (*models.Bid, error)
	FindLiveByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error)
	FindAllByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error)
	UpdateStatuses(ctx context.Context, id uuid.UUID, status enums.BidStatus, intentStatus enums.PaymentIntentStatus) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.BidStatus) error
	MarkAuthorized(ctx context.Context, intentID string) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a bid repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, bid *models.Bid) error {
	return r.db.WithContext(ctx).Create(bid).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	var bid models.Bid
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&bid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bid, nil
}

func (r *repository) FindByPaymentIntentID(ctx context.Context, intentID string) (*models.Bid, error) {
	var bid models.Bid
	err := r.db.WithContext(ctx).Where("payment_intent_id = ?", intentID).First(&bid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bid, nil
}

// FindLiveByAuction returns every bid still holding funds, highest amount
// first with earlier authorizations breaking ties.
func (r *repository) FindLiveByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	var rows []models.Bid
	err := r.db.WithContext(ctx).
		Where("auction_id = ? AND payment_intent_status IN ?", auctionID, liveIntentStatuses()).
		Order("amount DESC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindAllByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	var rows []models.Bid
	err := r.db.WithContext(ctx).
		Where("auction_id = ?", auctionID).
		Order("amount DESC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateStatuses(ctx context.Context, id uuid.UUID, status enums.BidStatus, intentStatus enums.PaymentIntentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"status":                status,
			"payment_intent_status": intentStatus,
			"updated_at":            time.Now().UTC(),
		}).Error
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.BidStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

// MarkAuthorized confirms the gateway-side hold for a bid without touching
// bids whose intent already reached a terminal state.
func (r *repository) MarkAuthorized(ctx context.Context, intentID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Bid{}).
		Where("payment_intent_id = ? AND payment_intent_status NOT IN ?", intentID, terminalIntentStatuses()).
		UpdateColumn("payment_intent_status", enums.PaymentIntentStatusRequiresCapture)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func liveIntentStatuses() []enums.PaymentIntentStatus {
	return []enums.PaymentIntentStatus{
		enums.PaymentIntentStatusRequiresCapture,
		enums.PaymentIntentStatusCaptured,
	}
}

func terminalIntentStatuses() []enums.PaymentIntentStatus {
	return []enums.PaymentIntentStatus{
		enums.PaymentIntentStatusCaptured,
		enums.PaymentIntentStatusCancelled,
		enums.PaymentIntentStatusFailed,
	}
}
