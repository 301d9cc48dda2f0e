package bids

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/decodecollective/decode-backend/pkg/db/models"
	"github.com/decodecollective/decode-backend/pkg/enums"
	"github.com/decodecollective/decode-backend/pkg/logger"
)

type fakeBidRepo struct {
	bids map[uuid.UUID]*models.Bid

	updateErr error
}

func newFakeBidRepo(bids ...*models.Bid) *fakeBidRepo {
	repo := &fakeBidRepo{bids: map[uuid.UUID]*models.Bid{}}
	for _, bid := range bids {
		repo.bids[bid.ID] = bid
	}
	return repo
}

func (r *fakeBidRepo) WithTx(tx *gorm.DB) Repository { return r }

func (r *fakeBidRepo) Create(ctx context.Context, bid *models.Bid) error {
	r.bids[bid.ID] = bid
	return nil
}

func (r *fakeBidRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	bid, ok := r.bids[id]
	if !ok {
		return nil, nil
	}
	copied := *bid
	return &copied, nil
}

func (r *fakeBidRepo) FindByPaymentIntentID(ctx context.Context, intentID string) (*models.Bid, error) {
	for _, bid := range r.bids {
		if bid.PaymentIntentID == intentID {
			copied := *bid
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeBidRepo) FindLiveByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	var live []models.Bid
	for _, bid := range r.bids {
		if bid.AuctionID == auctionID && bid.PaymentIntentStatus.IsLive() {
			live = append(live, *bid)
		}
	}
	return live, nil
}

func (r *fakeBidRepo) FindAllByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	var all []models.Bid
	for _, bid := range r.bids {
		if bid.AuctionID == auctionID {
			all = append(all, *bid)
		}
	}
	return all, nil
}

func (r *fakeBidRepo) UpdateStatuses(ctx context.Context, id uuid.UUID, status enums.BidStatus, intentStatus enums.PaymentIntentStatus) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	bid, ok := r.bids[id]
	if !ok {
		return errors.New("bid not found")
	}
	bid.Status = status
	bid.PaymentIntentStatus = intentStatus
	return nil
}

func (r *fakeBidRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.BidStatus) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	bid, ok := r.bids[id]
	if !ok {
		return errors.New("bid not found")
	}
	bid.Status = status
	return nil
}

func (r *fakeBidRepo) MarkAuthorized(ctx context.Context, intentID string) (bool, error) {
	for _, bid := range r.bids {
		if bid.PaymentIntentID != intentID {
			continue
		}
		if bid.PaymentIntentStatus == enums.PaymentIntentStatusCancelled ||
			bid.PaymentIntentStatus == enums.PaymentIntentStatusFailed {
			return false, nil
		}
		bid.PaymentIntentStatus = enums.PaymentIntentStatusRequiresCapture
		return true, nil
	}
	return false, nil
}

type fakeCanceller struct {
	cancelled []string
	failFor   map[string]error
}

func (c *fakeCanceller) Cancel(ctx context.Context, intentID string) error {
	if err, ok := c.failFor[intentID]; ok {
		return err
	}
	c.cancelled = append(c.cancelled, intentID)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func liveBid(auctionID uuid.UUID, amount string, intentID string, placedAt time.Time) *models.Bid {
	return &models.Bid{
		ID:                  uuid.New(),
		AuctionID:           auctionID,
		BidderEmail:         "bidder@example.com",
		Amount:              decimal.RequireFromString(amount),
		Status:              enums.BidStatusPending,
		PaymentIntentID:     intentID,
		PaymentIntentStatus: enums.PaymentIntentStatusRequiresCapture,
		CreatedAt:           placedAt,
	}
}

func newTestManager(t *testing.T, repo Repository, gateway holdCanceller) *PreAuthManager {
	t.Helper()
	manager, err := NewPreAuthManager(PreAuthManagerParams{
		Repo:    repo,
		Gateway: gateway,
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("NewPreAuthManager: %v", err)
	}
	return manager
}

func TestRebalanceKeepsTopTwoHolds(t *testing.T) {
	auctionID := uuid.New()
	base := time.Now()
	first := liveBid(auctionID, "100.00", "pi_100", base)
	second := liveBid(auctionID, "150.00", "pi_150", base.Add(time.Minute))
	third := liveBid(auctionID, "200.00", "pi_200", base.Add(2*time.Minute))

	repo := newFakeBidRepo(first, second, third)
	gateway := &fakeCanceller{}
	manager := newTestManager(t, repo, gateway)

	if err := manager.Rebalance(context.Background(), auctionID); err != nil {
		t.Fatalf("Rebalance: %v", err)
	}

	if got := repo.bids[third.ID].Status; got != enums.BidStatusWinning {
		t.Errorf("top bid status = %s, want %s", got, enums.BidStatusWinning)
	}
	if got := repo.bids[second.ID].Status; got != enums.BidStatusOutbid {
		t.Errorf("runner-up status = %s, want %s", got, enums.BidStatusOutbid)
	}
	if got := repo.bids[second.ID].PaymentIntentStatus; got != enums.PaymentIntentStatusRequiresCapture {
		t.Errorf("runner-up hold = %s, want it kept at %s", got, enums.PaymentIntentStatusRequiresCapture)
	}
	if got := repo.bids[first.ID].Status; got != enums.BidStatusCancelled {
		t.Errorf("outranked bid status = %s, want %s", got, enums.BidStatusCancelled)
	}
	if len(gateway.cancelled) != 1 || gateway.cancelled[0] != "pi_100" {
		t.Errorf("cancelled intents = %v, want [pi_100]", gateway.cancelled)
	}

	live, _ := repo.FindLiveByAuction(context.Background(), auctionID)
	if len(live) != 2 {
		t.Errorf("live holds after rebalance = %d, want 2", len(live))
	}
}

func TestRebalanceAmountTieBreaksByEarliestBid(t *testing.T) {
	auctionID := uuid.New()
	base := time.Now()
	early := liveBid(auctionID, "150.00", "pi_early", base)
	late := liveBid(auctionID, "150.00", "pi_late", base.Add(time.Second))

	repo := newFakeBidRepo(early, late)
	manager := newTestManager(t, repo, &fakeCanceller{})

	if err := manager.Rebalance(context.Background(), auctionID); err != nil {
		t.Fatalf("Rebalance: %v", err)
	}
	if got := repo.bids[early.ID].Status; got != enums.BidStatusWinning {
		t.Errorf("earlier equal bid status = %s, want %s", got, enums.BidStatusWinning)
	}
	if got := repo.bids[late.ID].Status; got != enums.BidStatusOutbid {
		t.Errorf("later equal bid status = %s, want %s", got, enums.BidStatusOutbid)
	}
}

func TestRebalanceSurvivesCancelFailure(t *testing.T) {
	auctionID := uuid.New()
	base := time.Now()
	lowest := liveBid(auctionID, "50.00", "pi_50", base)
	low := liveBid(auctionID, "100.00", "pi_100", base.Add(time.Minute))
	mid := liveBid(auctionID, "150.00", "pi_150", base.Add(2*time.Minute))
	top := liveBid(auctionID, "200.00", "pi_200", base.Add(3*time.Minute))

	repo := newFakeBidRepo(lowest, low, mid, top)
	gateway := &fakeCanceller{failFor: map[string]error{"pi_100": errors.New("gateway timeout")}}
	manager := newTestManager(t, repo, gateway)

	if err := manager.Rebalance(context.Background(), auctionID); err != nil {
		t.Fatalf("Rebalance returned error despite best-effort cancels: %v", err)
	}

	// The failed cancel keeps the bid untouched for a later retry.
	if got := repo.bids[low.ID].Status; got != enums.BidStatusPending {
		t.Errorf("bid with failed cancel status = %s, want %s", got, enums.BidStatusPending)
	}
	// The other outranked bid is still released.
	if got := repo.bids[lowest.ID].Status; got != enums.BidStatusCancelled {
		t.Errorf("other outranked bid status = %s, want %s", got, enums.BidStatusCancelled)
	}
}

func TestRebalanceNeverReleasesCapturedBid(t *testing.T) {
	auctionID := uuid.New()
	base := time.Now()
	captured := liveBid(auctionID, "50.00", "pi_captured", base)
	captured.Status = enums.BidStatusCaptured
	captured.PaymentIntentStatus = enums.PaymentIntentStatusCaptured
	mid := liveBid(auctionID, "150.00", "pi_150", base.Add(time.Minute))
	top := liveBid(auctionID, "200.00", "pi_200", base.Add(2*time.Minute))

	repo := newFakeBidRepo(captured, mid, top)
	gateway := &fakeCanceller{}
	manager := newTestManager(t, repo, gateway)

	if err := manager.Rebalance(context.Background(), auctionID); err != nil {
		t.Fatalf("Rebalance: %v", err)
	}
	if len(gateway.cancelled) != 0 {
		t.Errorf("cancelled intents = %v, want none for captured holds", gateway.cancelled)
	}
	if got := repo.bids[captured.ID].PaymentIntentStatus; got != enums.PaymentIntentStatusCaptured {
		t.Errorf("captured intent status = %s, want untouched", got)
	}
}

func TestRebalanceNoLiveBids(t *testing.T) {
	manager := newTestManager(t, newFakeBidRepo(), &fakeCanceller{})
	if err := manager.Rebalance(context.Background(), uuid.New()); err != nil {
		t.Fatalf("Rebalance on empty auction: %v", err)
	}
}

type fakeOutbidNotifier struct {
	outbid []uuid.UUID
}

func (n *fakeOutbidNotifier) NotifyOutbid(ctx context.Context, bid models.Bid) error {
	n.outbid = append(n.outbid, bid.ID)
	return nil
}

func TestRebalanceNotifiesDemotedLeader(t *testing.T) {
	auctionID := uuid.New()
	base := time.Now()
	first := liveBid(auctionID, "100.00", "pi_100", base)
	first.Status = enums.BidStatusWinning
	second := liveBid(auctionID, "150.00", "pi_150", base.Add(time.Minute))

	repo := newFakeBidRepo(first, second)
	notifier := &fakeOutbidNotifier{}
	manager, err := NewPreAuthManager(PreAuthManagerParams{
		Repo:     repo,
		Gateway:  &fakeCanceller{},
		Notifier: notifier,
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("NewPreAuthManager: %v", err)
	}

	if err := manager.Rebalance(context.Background(), auctionID); err != nil {
		t.Fatalf("Rebalance: %v", err)
	}
	if got := repo.bids[second.ID].Status; got != enums.BidStatusWinning {
		t.Errorf("new top status = %s, want %s", got, enums.BidStatusWinning)
	}
	if len(notifier.outbid) != 1 || notifier.outbid[0] != first.ID {
		t.Errorf("outbid notifications = %v, want one for %s", notifier.outbid, first.ID)
	}
}

func TestRebalanceSingleLiveBid(t *testing.T) {
	auctionID := uuid.New()
	only := liveBid(auctionID, "100.00", "pi_100", time.Now())

	repo := newFakeBidRepo(only)
	gateway := &fakeCanceller{}
	manager := newTestManager(t, repo, gateway)

	if err := manager.Rebalance(context.Background(), auctionID); err != nil {
		t.Fatalf("Rebalance with one live bid: %v", err)
	}
	if got := repo.bids[only.ID].Status; got != enums.BidStatusWinning {
		t.Errorf("sole bid status = %s, want %s", got, enums.BidStatusWinning)
	}
	if len(gateway.cancelled) != 0 {
		t.Errorf("cancelled holds = %v, want none", gateway.cancelled)
	}
}
