package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decodecollective/decode-backend/api/responses"
	"github.com/decodecollective/decode-backend/api/validators"
	"github.com/decodecollective/decode-backend/internal/bids"
	"github.com/decodecollective/decode-backend/pkg/db/models"
	pkgerrors "github.com/decodecollective/decode-backend/pkg/errors"
	"github.com/decodecollective/decode-backend/pkg/logger"
)

// BidService is the bid placement surface.
type BidService interface {
	PlaceBid(ctx context.Context, params bids.PlaceBidParams) (*models.Bid, error)
}

type placeBidRequest struct {
	AuctionID       string `json:"auction_id" validate:"required,uuid"`
	BidderEmail     string `json:"bidder_email" validate:"required,email"`
	Amount          string `json:"amount" validate:"required,money"`
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
}

// PlaceBid opens a card hold for the bid amount and enters the bid into the
// auction.
func PlaceBid(svc BidService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}

		var req placeBidRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		auctionID, err := uuid.Parse(req.AuctionID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid auction_id"))
			return
		}
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}

		bid, err := svc.PlaceBid(ctx, bids.PlaceBidParams{
			AuctionID:       auctionID,
			BidderEmail:     req.BidderEmail,
			Amount:          amount,
			PaymentMethodID: req.PaymentMethodID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"bid_id":            bid.ID,
			"auction_id":        bid.AuctionID,
			"amount":            bid.Amount.StringFixed(2),
			"status":            bid.Status,
			"payment_intent_id": bid.PaymentIntentID,
		})
	}
}
