package offers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decodecollective/decode-backend/pkg/db/models"
	pkgerrors "github.com/decodecollective/decode-backend/pkg/errors"
	"github.com/decodecollective/decode-backend/pkg/logger"
	"github.com/decodecollective/decode-backend/pkg/metrics"
)

// MetadataTypeLimitedOffer tags payment intents created for limited-offer
// checkouts so the webhook dispatcher can route their lifecycle events.
const MetadataTypeLimitedOffer = "limited_offer"

// Refund reasons surfaced to buyers when a paid purchase cannot be honored.
const (
	RefundReasonSoldOut  = "Offer sold out"
	RefundReasonExpired  = "Offer expired"
	RefundReasonInactive = "Offer is no longer available"
	RefundReasonNotFound = "Offer not found"
	RefundReasonInternal = "Purchase could not be recorded"
)

type refunder interface {
	Refund(ctx context.Context, intentID, reason string) error
}

type purchaseNotifier interface {
	NotifyPurchaseConfirmed(ctx context.Context, purchase models.OfferPurchase) error
	NotifyRefund(ctx context.Context, email, intentID, reason string) error
}

// Service fulfills limited-offer purchases after payment. Payment collection
// races slot capacity, so a paid buyer can still lose the slot; the service
// refunds those in full.
type Service struct {
	repo     Repository
	gateway  refunder
	notifier purchaseNotifier
	logg     *logger.Logger
	metrics  *metrics.SettlementMetrics
	now      func() time.Time
}

// ServiceParams wires the offer service's dependencies. Notifier is optional.
type ServiceParams struct {
	Repo     Repository
	Gateway  refunder
	Notifier purchaseNotifier
	Logger   *logger.Logger
	Metrics  *metrics.SettlementMetrics
}

// NewService validates dependencies and returns an offer service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("offer repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:     params.Repo,
		gateway:  params.Gateway,
		notifier: params.Notifier,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

// FulfillParams carries one paid purchase attempt.
type FulfillParams struct {
	OfferID         uuid.UUID
	BuyerEmail      string
	PaymentIntentID string
	Amount          decimal.Decimal
}

func (p FulfillParams) validate() error {
	if p.OfferID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "offer id is required")
	}
	if p.PaymentIntentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	if p.BuyerEmail == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer email is required")
	}
	return nil
}

// FulfillPurchase claims a slot for a paid purchase and records it. When the
// offer cannot honor the purchase the payment is refunded in full and the
// buyer is told why. Redelivered payments for an already-recorded purchase
// are no-ops.
func (s *Service) FulfillPurchase(ctx context.Context, params FulfillParams) error {
	if err := params.validate(); err != nil {
		return err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"offer_id":          params.OfferID.String(),
		"payment_intent_id": params.PaymentIntentID,
	})

	existing, err := s.repo.FindPurchaseByIntentID(ctx, params.PaymentIntentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up purchase")
	}
	if existing != nil {
		s.logg.Info(ctx, "purchase already recorded for payment")
		return nil
	}

	offer, err := s.repo.FindByID(ctx, params.OfferID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offer")
	}
	if offer == nil {
		s.metrics.IncSlotClaim("not_found")
		return s.refund(ctx, params, RefundReasonNotFound)
	}
	if !offer.IsActive {
		s.metrics.IncSlotClaim("inactive")
		return s.refund(ctx, params, RefundReasonInactive)
	}
	if offer.IsExpired(s.now()) {
		s.metrics.IncSlotClaim("expired")
		return s.refund(ctx, params, RefundReasonExpired)
	}

	claimed, err := s.repo.ClaimSlot(ctx, params.OfferID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim slot")
	}
	if !claimed {
		s.metrics.IncSlotClaim("sold_out")
		return s.refund(ctx, params, RefundReasonSoldOut)
	}

	purchase := &models.OfferPurchase{
		ID:              uuid.New(),
		OfferID:         params.OfferID,
		BuyerEmail:      params.BuyerEmail,
		PaymentIntentID: params.PaymentIntentID,
		Amount:          params.Amount,
	}
	if err := s.repo.CreatePurchase(ctx, purchase); err != nil {
		// The claimed slot has no purchase row backing it. Refunding keeps
		// the buyer whole; the slot is reconciled out-of-band.
		s.logg.Error(ctx, "failed to record purchase for claimed slot", err)
		s.metrics.IncSlotClaim("record_failed")
		return s.refund(ctx, params, RefundReasonInternal)
	}
	s.metrics.IncSlotClaim("claimed")

	if s.notifier != nil {
		if err := s.notifier.NotifyPurchaseConfirmed(ctx, *purchase); err != nil {
			s.logg.Error(ctx, "failed to send purchase confirmation", err)
		}
	}
	return nil
}

// refund returns the buyer's money and reports the reason. A refund that
// itself fails is returned as an error so the event is redelivered.
func (s *Service) refund(ctx context.Context, params FulfillParams, reason string) error {
	if err := s.gateway.Refund(ctx, params.PaymentIntentID, reason); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund declined purchase")
	}
	s.logg.Warn(ctx, fmt.Sprintf("refunded purchase: %s", reason))
	if s.notifier != nil {
		if err := s.notifier.NotifyRefund(ctx, params.BuyerEmail, params.PaymentIntentID, reason); err != nil {
			s.logg.Error(ctx, "failed to send refund notification", err)
		}
	}
	return nil
}
