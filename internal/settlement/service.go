package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decodecollective/decode-backend/internal/auctions"
	"github.com/decodecollective/decode-backend/internal/bids"
	"github.com/decodecollective/decode-backend/internal/payouts"
	"github.com/decodecollective/decode-backend/pkg/config"
	"github.com/decodecollective/decode-backend/pkg/db/models"
	pkgerrors "github.com/decodecollective/decode-backend/pkg/errors"
	"github.com/decodecollective/decode-backend/pkg/enums"
	"github.com/decodecollective/decode-backend/pkg/logger"
	"github.com/decodecollective/decode-backend/pkg/metrics"
	"github.com/decodecollective/decode-backend/pkg/scheduler"
)

// ActionUnlockPayout is the scheduler callback action that releases a payout
// hold once the dispute window has passed.
const ActionUnlockPayout = "unlock-payout"

type callbackScheduler interface {
	Schedule(ctx context.Context, body scheduler.CallbackBody, runAt time.Time) (string, error)
	Cancel(ctx context.Context, handle string) error
}

type tokenMinter interface {
	MintDeliverableToken(now time.Time, auctionID, bidID uuid.UUID, email string) (string, error)
}

type winNotifier interface {
	NotifyAuctionWon(ctx context.Context, bid models.Bid, deliverableToken string) error
	NotifyPayoutPending(ctx context.Context, email string, payout models.Payout) error
}

// Outcome summarizes one settlement run.
type Outcome struct {
	Settled    bool
	NoWinner   bool
	WinnerBid  *models.Bid
	Profit     decimal.Decimal
	Fee        decimal.Decimal
	NetPayout  decimal.Decimal
	FellBack   bool
	AlreadyRun bool
}

// Service finalizes auctions at their deadline: it picks the winner, captures
// their hold, writes the profit split once, and schedules the payout unlock.
type Service struct {
	auctionRepo auctions.Repository
	bidRepo     bids.Repository
	payoutRepo  payouts.Repository
	capturer    *Capturer
	gateway     captureGateway
	sched       callbackScheduler
	minter      tokenMinter
	notifier    winNotifier
	cfg         config.SettlementConfig
	logg        *logger.Logger
	metrics     *metrics.SettlementMetrics
	now         func() time.Time
}

// ServiceParams wires the settlement service's dependencies. Scheduler,
// minter, and notifier are optional; the close path degrades without them.
type ServiceParams struct {
	AuctionRepo auctions.Repository
	BidRepo     bids.Repository
	PayoutRepo  payouts.Repository
	Capturer    *Capturer
	Gateway     captureGateway
	Scheduler   callbackScheduler
	Minter      tokenMinter
	Notifier    winNotifier
	Config      config.SettlementConfig
	Logger      *logger.Logger
	Metrics     *metrics.SettlementMetrics
}

// NewService validates dependencies and returns a settlement service.
func NewService(params ServiceParams) (*Service, error) {
	if params.AuctionRepo == nil {
		return nil, fmt.Errorf("auction repository required")
	}
	if params.BidRepo == nil {
		return nil, fmt.Errorf("bid repository required")
	}
	if params.PayoutRepo == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if params.Capturer == nil {
		return nil, fmt.Errorf("capturer required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if _, err := params.Config.FeeRate(); err != nil {
		return nil, err
	}
	return &Service{
		auctionRepo: params.AuctionRepo,
		bidRepo:     params.BidRepo,
		payoutRepo:  params.PayoutRepo,
		capturer:    params.Capturer,
		gateway:     params.Gateway,
		sched:       params.Scheduler,
		minter:      params.Minter,
		notifier:    params.Notifier,
		cfg:         params.Config,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         time.Now,
	}, nil
}

// CloseAuction settles one auction. Safe to call any number of times: a
// terminal auction short-circuits, and the completion write is guarded so
// exactly one invocation records the winner and creates the payout.
func (s *Service) CloseAuction(ctx context.Context, auctionID uuid.UUID) (*Outcome, error) {
	if auctionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "auction id is required")
	}
	ctx = s.logg.WithAuctionID(ctx, auctionID.String())
	started := s.now()

	auction, err := s.auctionRepo.FindByID(ctx, auctionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load auction")
	}
	if auction == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "auction not found")
	}

	switch auction.Status {
	case enums.AuctionStatusCompleted, enums.AuctionStatusEnded:
		s.cancelScheduledCallback(ctx, auction)
		s.metrics.ObserveCloseDuration("already_settled", s.now().Sub(started))
		return &Outcome{AlreadyRun: true}, nil
	case enums.AuctionStatusCancelled:
		s.metrics.ObserveCloseDuration("cancelled", s.now().Sub(started))
		return &Outcome{AlreadyRun: true}, nil
	case enums.AuctionStatusActive:
	default:
		s.logg.Warn(ctx, fmt.Sprintf("closing auction in unexpected status %q", auction.Status))
	}

	outcome, err := s.settle(ctx, auction)
	if err != nil {
		s.metrics.ObserveCloseDuration("error", s.now().Sub(started))
		return nil, err
	}
	label := "no_winner"
	if outcome.Settled {
		label = "settled"
	}
	s.metrics.ObserveCloseDuration(label, s.now().Sub(started))
	return outcome, nil
}

func (s *Service) settle(ctx context.Context, auction *models.Auction) (*Outcome, error) {
	captured, err := s.capturer.CaptureWinner(ctx, auction.ID)
	if err != nil {
		if pkgerrors.CodeOf(err) == pkgerrors.CodeStateConflict {
			// Nobody holds funds: the auction ends without a winner.
			return s.endWithoutWinner(ctx, auction)
		}
		// Every candidate declined. The auction still ends so it stops
		// accepting bids, and the decline is surfaced to the caller.
		if _, endErr := s.auctionRepo.End(ctx, auction.ID); endErr != nil {
			s.logg.Error(ctx, "failed to end auction after capture declines", endErr)
		}
		s.cancelScheduledCallback(ctx, auction)
		return nil, err
	}

	winner := captured.WinnerBid
	profit, fee, net, err := s.computeSplit(auction.StartPrice, winner.Amount)
	if err != nil {
		return nil, err
	}

	completed, err := s.auctionRepo.Complete(ctx, auctions.CompleteParams{
		AuctionID:   auction.ID,
		WinnerBidID: winner.ID,
		Profit:      profit,
		PlatformFee: fee,
		NetPayout:   net,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete auction")
	}
	if !completed {
		// A concurrent close finalized the row first; its payout stands.
		return &Outcome{AlreadyRun: true}, nil
	}

	if err := s.payoutRepo.Create(ctx, &models.Payout{
		ID:          uuid.New(),
		RecipientID: auction.SellerID,
		AuctionID:   auction.ID,
		GrossAmount: profit,
		PlatformFee: fee,
		NetAmount:   net,
		Status:      enums.PayoutStatusPending,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
	}

	s.finishSettled(ctx, auction, winner)

	return &Outcome{
		Settled:   true,
		WinnerBid: winner,
		Profit:    profit,
		Fee:       fee,
		NetPayout: net,
		FellBack:  captured.FellBack,
	}, nil
}

// finishSettled runs the post-completion steps. None of them can undo the
// settlement, so failures are logged and the close still reports success.
func (s *Service) finishSettled(ctx context.Context, auction *models.Auction, winner *models.Bid) {
	s.releaseRemainingHolds(ctx, auction.ID, winner.ID)
	s.cancelScheduledCallback(ctx, auction)

	var token string
	if s.minter != nil {
		minted, err := s.minter.MintDeliverableToken(s.now(), auction.ID, winner.ID, winner.BidderEmail)
		if err != nil {
			s.logg.Error(ctx, "failed to mint deliverable token", err)
		} else {
			token = minted
		}
	}
	// The winner hears about their win even when token minting failed; the
	// deliverable link can be reissued later.
	if s.notifier != nil {
		if err := s.notifier.NotifyAuctionWon(ctx, *winner, token); err != nil {
			s.logg.Error(ctx, "failed to notify auction winner", err)
		}
	}

	s.scheduleUnlock(ctx, auction.ID)
}

func (s *Service) endWithoutWinner(ctx context.Context, auction *models.Auction) (*Outcome, error) {
	ended, err := s.auctionRepo.End(ctx, auction.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "end auction")
	}
	s.cancelScheduledCallback(ctx, auction)
	if !ended {
		return &Outcome{AlreadyRun: true}, nil
	}
	return &Outcome{NoWinner: true}, nil
}

// releaseRemainingHolds sweeps any hold still live after settlement. Normally
// the capturer released the runner-up already; this catches stragglers left
// by missed rebalances.
func (s *Service) releaseRemainingHolds(ctx context.Context, auctionID, winnerBidID uuid.UUID) {
	live, err := s.bidRepo.FindLiveByAuction(ctx, auctionID)
	if err != nil {
		s.logg.Error(ctx, "failed to sweep remaining holds", err)
		return
	}
	for _, bid := range live {
		if bid.ID == winnerBidID || bid.PaymentIntentStatus != enums.PaymentIntentStatusRequiresCapture {
			continue
		}
		if err := s.gateway.Cancel(ctx, bid.PaymentIntentID); err != nil {
			s.logg.Error(ctx, "failed to release leftover hold", err)
			continue
		}
		if err := s.bidRepo.UpdateStatuses(ctx, bid.ID,
			enums.BidStatusCancelled, enums.PaymentIntentStatusCancelled); err != nil {
			s.logg.Error(ctx, "failed to record released leftover hold", err)
		}
	}
}

func (s *Service) cancelScheduledCallback(ctx context.Context, auction *models.Auction) {
	if s.sched == nil || auction.SchedulerHandle == nil || *auction.SchedulerHandle == "" {
		return
	}
	if err := s.sched.Cancel(ctx, *auction.SchedulerHandle); err != nil {
		s.logg.Error(ctx, "failed to cancel scheduled close callback", err)
		return
	}
	if err := s.auctionRepo.ClearSchedulerHandle(ctx, auction.ID); err != nil {
		s.logg.Error(ctx, "failed to clear scheduler handle", err)
	}
}

func (s *Service) scheduleUnlock(ctx context.Context, auctionID uuid.UUID) {
	if s.sched == nil || s.cfg.PayoutUnlockWindow <= 0 {
		return
	}
	runAt := s.now().Add(s.cfg.PayoutUnlockWindow)
	if _, err := s.sched.Schedule(ctx, scheduler.CallbackBody{
		AuctionID:     auctionID,
		ScheduledTime: runAt,
		Action:        ActionUnlockPayout,
	}, runAt); err != nil {
		s.logg.Error(ctx, "failed to schedule payout unlock", err)
	}
}

// computeSplit derives the profit split from the winning amount. Profit never
// goes negative: a winner at or below the start price pays, but the split is
// all zeros.
func (s *Service) computeSplit(startPrice, winAmount decimal.Decimal) (profit, fee, net decimal.Decimal, err error) {
	rate, err := s.cfg.FeeRate()
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	profit = winAmount.Sub(startPrice)
	if profit.IsNegative() {
		profit = decimal.Zero
	}
	fee = profit.Mul(rate)
	net = profit.Sub(fee)
	return profit, fee, net, nil
}

// UnlockPayout releases the payout hold for a settled auction. Redelivered
// callbacks are no-ops once the payout left pending.
func (s *Service) UnlockPayout(ctx context.Context, auctionID uuid.UUID) error {
	if auctionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "auction id is required")
	}
	ctx = s.logg.WithAuctionID(ctx, auctionID.String())

	payout, err := s.payoutRepo.FindByAuctionID(ctx, auctionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
	}
	if payout == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no payout for auction")
	}

	moved, err := s.payoutRepo.MarkProcessing(ctx, auctionID, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unlock payout")
	}
	if !moved {
		s.logg.Info(ctx, "payout already unlocked")
		return nil
	}

	if s.notifier != nil {
		auction, err := s.auctionRepo.FindByID(ctx, auctionID)
		if err != nil || auction == nil {
			s.logg.Warn(ctx, "payout unlocked but auction not loadable for notification")
			return nil
		}
		if err := s.notifier.NotifyPayoutPending(ctx, auction.SellerEmail, *payout); err != nil {
			s.logg.Warn(ctx, "failed to send payout notification")
		}
	}
	return nil
}
