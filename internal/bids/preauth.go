package bids

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/decodecollective/decode-backend/pkg/db/models"
	pkgerrors "github.com/decodecollective/decode-backend/pkg/errors"
	"github.com/decodecollective/decode-backend/pkg/enums"
	"github.com/decodecollective/decode-backend/pkg/logger"
)

type holdCanceller interface {
	Cancel(ctx context.Context, intentID string) error
}

type outbidNotifier interface {
	NotifyOutbid(ctx context.Context, bid models.Bid) error
}

// PreAuthManager keeps the number of live card holds per auction bounded:
// after every rebalance only the top two bids by amount still reserve funds.
type PreAuthManager struct {
	repo     Repository
	gateway  holdCanceller
	notifier outbidNotifier
	logg     *logger.Logger
}

// PreAuthManagerParams wires the manager's dependencies. Notifier is
// optional.
type PreAuthManagerParams struct {
	Repo     Repository
	Gateway  holdCanceller
	Notifier outbidNotifier
	Logger   *logger.Logger
}

// NewPreAuthManager validates dependencies and returns a manager.
func NewPreAuthManager(params PreAuthManagerParams) (*PreAuthManager, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("bid repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &PreAuthManager{
		repo:     params.Repo,
		gateway:  params.Gateway,
		notifier: params.Notifier,
		logg:     params.Logger,
	}, nil
}

// Rebalance recomputes the full ranking of live bids for an auction. The top
// bid becomes winning, the runner-up stays authorized as the fallback, and
// every other hold is released. The recompute is insensitive to bid arrival
// order, so concurrent or redundant invocations converge on the same state.
func (m *PreAuthManager) Rebalance(ctx context.Context, auctionID uuid.UUID) error {
	if auctionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "auction id is required")
	}

	live, err := m.repo.FindLiveByAuction(ctx, auctionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load live bids")
	}
	if len(live) == 0 {
		return nil
	}

	SortByRank(live)

	top := live[0]
	if top.Status != enums.BidStatusWinning && top.Status != enums.BidStatusCaptured {
		if err := m.repo.UpdateStatus(ctx, top.ID, enums.BidStatusWinning); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark winning bid")
		}
	}

	if len(live) > 1 {
		second := live[1]
		if second.Status != enums.BidStatusOutbid {
			if err := m.repo.UpdateStatus(ctx, second.ID, enums.BidStatusOutbid); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark runner-up bid")
			}
			if m.notifier != nil {
				if err := m.notifier.NotifyOutbid(ctx, second); err != nil {
					m.logg.Warn(m.logg.WithAuctionID(ctx, auctionID.String()), "failed to send outbid notification")
				}
			}
		}
	}

	// Cancels below rank two are best-effort: a hold left live costs the
	// bidder a reservation, not correctness, and is retried out-of-band.
	var cancelErrs error
	for i := 2; i < len(live); i++ {
		bid := live[i]
		if err := m.releaseHold(ctx, bid); err != nil {
			cancelErrs = multierr.Append(cancelErrs, err)
			cctx := m.logg.WithFields(ctx, map[string]any{
				"auction_id": auctionID.String(),
				"bid_id":     bid.ID.String(),
			})
			m.logg.Error(cctx, "failed to release outranked hold", err)
		}
	}
	if cancelErrs != nil {
		m.logg.Warn(m.logg.WithAuctionID(ctx, auctionID.String()), "rebalance finished with unreleased holds")
	}
	return nil
}

func (m *PreAuthManager) releaseHold(ctx context.Context, bid models.Bid) error {
	if bid.PaymentIntentStatus == enums.PaymentIntentStatusCaptured {
		// Never auto-release captured money from a rebalance.
		return fmt.Errorf("bid %s is captured and cannot be released", bid.ID)
	}
	if err := m.gateway.Cancel(ctx, bid.PaymentIntentID); err != nil {
		return err
	}
	return m.repo.UpdateStatuses(ctx, bid.ID, enums.BidStatusCancelled, enums.PaymentIntentStatusCancelled)
}

// SortByRank orders amount descending, ties broken by earliest authorization.
// Callers re-sort in memory even when the store claims an ordering; a silently
// mis-sorted result must never pick the wrong winner.
func SortByRank(bids []models.Bid) {
	sort.SliceStable(bids, func(i, j int) bool {
		if bids[i].Amount.Equal(bids[j].Amount) {
			return bids[i].CreatedAt.Before(bids[j].CreatedAt)
		}
		return bids[i].Amount.GreaterThan(bids[j].Amount)
	})
}
