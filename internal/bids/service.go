package bids

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decodecollective/decode-backend/internal/auctions"
	"github.com/decodecollective/decode-backend/pkg/db/models"
	pkgerrors "github.com/decodecollective/decode-backend/pkg/errors"
	"github.com/decodecollective/decode-backend/pkg/enums"
	"github.com/decodecollective/decode-backend/pkg/logger"
	"github.com/decodecollective/decode-backend/pkg/stripe"
)

// MetadataTypeAuctionBid tags payment intents created for auction bids so the
// webhook dispatcher can route their lifecycle events.
const MetadataTypeAuctionBid = "auction_bid"

type holdAuthorizer interface {
	Authorize(ctx context.Context, amount decimal.Decimal, paymentMethodID string, metadata map[string]string) (*stripe.Intent, error)
	Cancel(ctx context.Context, intentID string) error
}

// Service places bids: it validates the auction window, opens a card hold for
// the full bid amount, and rebalances the auction's live holds.
type Service struct {
	auctionRepo auctions.Repository
	bidRepo     Repository
	gateway     holdAuthorizer
	preauth     *PreAuthManager
	logg        *logger.Logger
	now         func() time.Time
}

// ServiceParams wires the bid service's dependencies.
type ServiceParams struct {
	AuctionRepo auctions.Repository
	BidRepo     Repository
	Gateway     holdAuthorizer
	PreAuth     *PreAuthManager
	Logger      *logger.Logger
}

// NewService validates dependencies and returns a bid service.
func NewService(params ServiceParams) (*Service, error) {
	if params.AuctionRepo == nil {
		return nil, fmt.Errorf("auction repository required")
	}
	if params.BidRepo == nil {
		return nil, fmt.Errorf("bid repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.PreAuth == nil {
		return nil, fmt.Errorf("pre-auth manager required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		auctionRepo: params.AuctionRepo,
		bidRepo:     params.BidRepo,
		gateway:     params.Gateway,
		preauth:     params.PreAuth,
		logg:        params.Logger,
		now:         time.Now,
	}, nil
}

// PlaceBidParams carries one bid attempt.
type PlaceBidParams struct {
	AuctionID       uuid.UUID
	BidderEmail     string
	Amount          decimal.Decimal
	PaymentMethodID string
}

func (p PlaceBidParams) validate() error {
	if p.AuctionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "auction id is required")
	}
	if p.BidderEmail == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "bidder email is required")
	}
	if !p.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "bid amount must be positive")
	}
	if p.PaymentMethodID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}
	return nil
}

// PlaceBid authorizes a hold for the full bid amount and records the bid. The
// hold is opened before the bid row exists; if persisting fails the hold is
// released so no orphaned reservation outlives the request.
func (s *Service) PlaceBid(ctx context.Context, params PlaceBidParams) (*models.Bid, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	ctx = s.logg.WithAuctionID(ctx, params.AuctionID.String())

	auction, err := s.auctionRepo.FindByID(ctx, params.AuctionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
	}
	if auction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
	}
	if auction.Status != enums.AuctionStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "auction is not accepting bids")
	}
	if !s.now().Before(auction.EndTime) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "auction has ended")
	}
	if params.Amount.LessThanOrEqual(auction.CurrentPrice) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("bid must exceed the current price of %s", auction.CurrentPrice.StringFixed(2)))
	}

	intent, err := s.gateway.Authorize(ctx, params.Amount, params.PaymentMethodID, map[string]string{
		"type":         MetadataTypeAuctionBid,
		"auction_id":   params.AuctionID.String(),
		"bidder_email": params.BidderEmail,
	})
	if err != nil {
		return nil, err
	}

	bid := &models.Bid{
		ID:                  uuid.New(),
		AuctionID:           params.AuctionID,
		BidderEmail:         params.BidderEmail,
		Amount:              params.Amount,
		Status:              enums.BidStatusPending,
		PaymentIntentID:     intent.ID,
		PaymentIntentStatus: enums.PaymentIntentStatusRequiresCapture,
	}
	if err := s.bidRepo.Create(ctx, bid); err != nil {
		s.releaseOrphanedHold(ctx, intent.ID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist bid")
	}

	if err := s.auctionRepo.RaiseCurrentPrice(ctx, params.AuctionID, params.Amount); err != nil {
		s.logg.Error(ctx, "failed to raise auction current price", err)
	}

	if err := s.preauth.Rebalance(ctx, params.AuctionID); err != nil {
		// The bid stands; a later rebalance converges the holds.
		s.logg.Error(ctx, "post-bid rebalance failed", err)
	}
	return bid, nil
}

func (s *Service) releaseOrphanedHold(ctx context.Context, intentID string) {
	if err := s.gateway.Cancel(ctx, intentID); err != nil {
		s.logg.Error(ctx, "failed to release hold for unpersisted bid", err)
	}
}
