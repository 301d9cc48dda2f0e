package offers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/decodecollective/decode-backend/pkg/db/models"
)

// Repository persists limited offers and their purchases. ClaimSlot is the
// only writer of quantity_sold.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.LimitedOffer, error)
	ClaimSlot(ctx context.Context, id uuid.UUID) (bool, error)
	CreatePurchase(ctx context.Context, purchase *models.OfferPurchase) error
	FindPurchaseByIntentID(ctx context.Context, intentID string) (*models.OfferPurchase, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an offer repository bound to the provided database.
func NewRepository(gdb *gorm.DB) Repository {
	return &repository{db: gdb}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.LimitedOffer, error) {
	var offer models.LimitedOffer
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&offer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &offer, nil
}

// ClaimSlot increments quantity_sold only while capacity remains. The bound
// lives in the WHERE clause, so concurrent claims for the last slot resolve
// in the database and exactly one caller sees true.
func (r *repository) ClaimSlot(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.LimitedOffer{}).
		Where("id = ? AND quantity_sold < quantity", id).
		UpdateColumns(map[string]any{
			"quantity_sold": gorm.Expr("quantity_sold + 1"),
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) CreatePurchase(ctx context.Context, purchase *models.OfferPurchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *repository) FindPurchaseByIntentID(ctx context.Context, intentID string) (*models.OfferPurchase, error) {
	var purchase models.OfferPurchase
	err := r.db.WithContext(ctx).Where("payment_intent_id = ?", intentID).First(&purchase).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}
