package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/decodecollective/decode-backend/api/responses"
	"github.com/decodecollective/decode-backend/api/validators"
	"github.com/decodecollective/decode-backend/internal/settlement"
	pkgerrors "github.com/decodecollective/decode-backend/pkg/errors"
	"github.com/decodecollective/decode-backend/pkg/logger"
)

// SettlementService is the settlement surface the callback route drives.
type SettlementService interface {
	CloseAuction(ctx context.Context, auctionID uuid.UUID) (*settlement.Outcome, error)
	UnlockPayout(ctx context.Context, auctionID uuid.UUID) error
}

type schedulerCallbackRequest struct {
	AuctionID     uuid.UUID `json:"auction_id" validate:"required"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Action        string    `json:"action"`
}

// SchedulerCallback handles the delayed callbacks this service scheduled for
// itself: auction close at the deadline, payout unlock after the hold window.
func SchedulerCallback(svc SettlementService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		var req schedulerCallbackRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if req.AuctionID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "auction_id is required"))
			return
		}

		switch req.Action {
		case "", "close":
			outcome, err := svc.CloseAuction(ctx, req.AuctionID)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, map[string]any{
				"settled":     outcome.Settled,
				"no_winner":   outcome.NoWinner,
				"already_run": outcome.AlreadyRun,
			})
		case settlement.ActionUnlockPayout:
			if err := svc.UnlockPayout(ctx, req.AuctionID); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccess(w, map[string]string{"status": "unlocked"})
		default:
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "unknown callback action"))
		}
	}
}
