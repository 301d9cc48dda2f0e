package settlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/decodecollective/decode-backend/internal/bids"
	"github.com/decodecollective/decode-backend/pkg/db/models"
	pkgerrors "github.com/decodecollective/decode-backend/pkg/errors"
	"github.com/decodecollective/decode-backend/pkg/enums"
	"github.com/decodecollective/decode-backend/pkg/logger"
	"github.com/decodecollective/decode-backend/pkg/metrics"
)

type captureGateway interface {
	Capture(ctx context.Context, intentID string) error
	Cancel(ctx context.Context, intentID string) error
}

// Capturer collects the winning bid's funds, falling back to the runner-up
// hold when the primary capture is declined.
type Capturer struct {
	bidRepo bids.Repository
	gateway captureGateway
	logg    *logger.Logger
	metrics *metrics.SettlementMetrics
}

// CapturerParams wires the capturer's dependencies.
type CapturerParams struct {
	BidRepo bids.Repository
	Gateway captureGateway
	Logger  *logger.Logger
	Metrics *metrics.SettlementMetrics
}

// NewCapturer validates dependencies and returns a capturer.
func NewCapturer(params CapturerParams) (*Capturer, error) {
	if params.BidRepo == nil {
		return nil, fmt.Errorf("bid repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Capturer{
		bidRepo: params.BidRepo,
		gateway: params.Gateway,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// CaptureOutcome reports which bid actually paid.
type CaptureOutcome struct {
	WinnerBid *models.Bid
	FellBack  bool
}

// CaptureWinner charges the top live hold for the auction. A declined primary
// capture marks that bid failed and retries against the runner-up, so a stale
// top hold does not sink the whole settlement. Captures are idempotent: a bid
// already captured short-circuits to success.
func (c *Capturer) CaptureWinner(ctx context.Context, auctionID uuid.UUID) (*CaptureOutcome, error) {
	live, err := c.bidRepo.FindLiveByAuction(ctx, auctionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load live bids")
	}

	ranked := rankCaptureCandidates(live)
	if len(ranked) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no capturable bids for auction")
	}
	if len(ranked) > 2 {
		// More than two live holds means a rebalance was missed; only the
		// top two are capture candidates.
		ranked = ranked[:2]
	}

	var fellBack bool
	for i := range ranked {
		bid := &ranked[i]
		bctx := c.logg.WithFields(ctx, map[string]any{
			"auction_id": auctionID.String(),
			"bid_id":     bid.ID.String(),
		})

		if bid.PaymentIntentStatus == enums.PaymentIntentStatusCaptured {
			c.metrics.IncCapture("already_captured")
			return &CaptureOutcome{WinnerBid: bid, FellBack: fellBack}, nil
		}

		if err := c.gateway.Capture(bctx, bid.PaymentIntentID); err != nil {
			c.metrics.IncCapture("failed")
			c.logg.Error(bctx, "capture declined", err)
			if markErr := c.bidRepo.UpdateStatuses(bctx, bid.ID,
				enums.BidStatusFailed, enums.PaymentIntentStatusFailed); markErr != nil {
				c.logg.Error(bctx, "failed to record declined capture", markErr)
			}
			// Keep the local copy in sync; failed is terminal and must not
			// look like a releasable hold to the loser sweep below.
			bid.Status = enums.BidStatusFailed
			bid.PaymentIntentStatus = enums.PaymentIntentStatusFailed
			fellBack = true
			continue
		}

		if err := c.bidRepo.UpdateStatuses(bctx, bid.ID,
			enums.BidStatusCaptured, enums.PaymentIntentStatusCaptured); err != nil {
			// Money moved; the record must say so even if this write is retried.
			c.logg.Error(bctx, "captured funds but failed to record it", err)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record capture")
		}
		c.metrics.IncCapture("captured")
		if fellBack {
			c.metrics.IncCapture("fallback")
		}

		c.releaseLoser(bctx, ranked, bid.ID)
		return &CaptureOutcome{WinnerBid: bid, FellBack: fellBack}, nil
	}

	return nil, pkgerrors.New(pkgerrors.CodeGatewayDecl, "every capturable hold was declined")
}

// releaseLoser cancels the hold of the other capture candidate, best-effort.
func (c *Capturer) releaseLoser(ctx context.Context, ranked []models.Bid, winnerID uuid.UUID) {
	for _, bid := range ranked {
		if bid.ID == winnerID || bid.PaymentIntentStatus != enums.PaymentIntentStatusRequiresCapture {
			continue
		}
		if err := c.gateway.Cancel(ctx, bid.PaymentIntentID); err != nil {
			c.logg.Error(ctx, "failed to release runner-up hold", err)
			continue
		}
		if err := c.bidRepo.UpdateStatuses(ctx, bid.ID,
			enums.BidStatusCancelled, enums.PaymentIntentStatusCancelled); err != nil {
			c.logg.Error(ctx, "failed to record released runner-up hold", err)
		}
	}
}

// rankCaptureCandidates orders live holds highest amount first and drops bids
// already marked failed from an earlier attempt.
func rankCaptureCandidates(live []models.Bid) []models.Bid {
	candidates := make([]models.Bid, 0, len(live))
	for _, bid := range live {
		if bid.Status == enums.BidStatusFailed {
			continue
		}
		candidates = append(candidates, bid)
	}
	bids.SortByRank(candidates)
	return candidates
}
