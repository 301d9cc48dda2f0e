package settlement

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/decodecollective/decode-backend/internal/bids"
	"github.com/decodecollective/decode-backend/pkg/db/models"
	pkgerrors "github.com/decodecollective/decode-backend/pkg/errors"
	"github.com/decodecollective/decode-backend/pkg/enums"
	"github.com/decodecollective/decode-backend/pkg/logger"
	"github.com/decodecollective/decode-backend/pkg/metrics"
)

type fakeBidStore struct {
	bids map[uuid.UUID]*models.Bid
}

func newFakeBidStore(items ...*models.Bid) *fakeBidStore {
	store := &fakeBidStore{bids: map[uuid.UUID]*models.Bid{}}
	for _, item := range items {
		store.bids[item.ID] = item
	}
	return store
}

func (s *fakeBidStore) WithTx(tx *gorm.DB) bids.Repository { return s }

func (s *fakeBidStore) Create(ctx context.Context, bid *models.Bid) error {
	s.bids[bid.ID] = bid
	return nil
}

func (s *fakeBidStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	bid, ok := s.bids[id]
	if !ok {
		return nil, nil
	}
	copied := *bid
	return &copied, nil
}

func (s *fakeBidStore) FindByPaymentIntentID(ctx context.Context, intentID string) (*models.Bid, error) {
	for _, bid := range s.bids {
		if bid.PaymentIntentID == intentID {
			copied := *bid
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeBidStore) FindLiveByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	var live []models.Bid
	for _, bid := range s.bids {
		if bid.AuctionID == auctionID && bid.PaymentIntentStatus.IsLive() {
			live = append(live, *bid)
		}
	}
	return live, nil
}

func (s *fakeBidStore) FindAllByAuction(ctx context.Context, auctionID uuid.UUID) ([]models.Bid, error) {
	var all []models.Bid
	for _, bid := range s.bids {
		if bid.AuctionID == auctionID {
			all = append(all, *bid)
		}
	}
	return all, nil
}

func (s *fakeBidStore) UpdateStatuses(ctx context.Context, id uuid.UUID, status enums.BidStatus, intentStatus enums.PaymentIntentStatus) error {
	bid, ok := s.bids[id]
	if !ok {
		return errors.New("bid not found")
	}
	bid.Status = status
	bid.PaymentIntentStatus = intentStatus
	return nil
}

func (s *fakeBidStore) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.BidStatus) error {
	bid, ok := s.bids[id]
	if !ok {
		return errors.New("bid not found")
	}
	bid.Status = status
	return nil
}

func (s *fakeBidStore) MarkAuthorized(ctx context.Context, intentID string) (bool, error) {
	for _, bid := range s.bids {
		if bid.PaymentIntentID == intentID {
			bid.PaymentIntentStatus = enums.PaymentIntentStatusRequiresCapture
			return true, nil
		}
	}
	return false, nil
}

type fakeCaptureGateway struct {
	captureErrs map[string]error
	captured    []string
	cancelled   []string
}

func (g *fakeCaptureGateway) Capture(ctx context.Context, intentID string) error {
	if err, ok := g.captureErrs[intentID]; ok {
		return err
	}
	g.captured = append(g.captured, intentID)
	return nil
}

func (g *fakeCaptureGateway) Cancel(ctx context.Context, intentID string) error {
	g.cancelled = append(g.cancelled, intentID)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func holdBid(auctionID uuid.UUID, amount, intentID string, placedAt time.Time) *models.Bid {
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

func newTestCapturer(t *testing.T, store bids.Repository, gateway captureGateway) *Capturer {
	t.Helper()
	capturer, err := NewCapturer(CapturerParams{
		BidRepo: store,
		Gateway: gateway,
		Logger:  testLogger(),
		Metrics: metrics.NewSettlementMetrics(nil),
	})
	if err != nil {
		t.Fatalf("NewCapturer: %v", err)
	}
	return capturer
}

func TestCaptureWinnerChargesTopBid(t *testing.T) {
	auctionID := uuid.New()
	base := time.Now()
	loser := holdBid(auctionID, "150.00", "pi_150", base)
	top := holdBid(auctionID, "200.00", "pi_200", base.Add(time.Minute))

	store := newFakeBidStore(loser, top)
	gateway := &fakeCaptureGateway{}
	capturer := newTestCapturer(t, store, gateway)

	outcome, err := capturer.CaptureWinner(context.Background(), auctionID)
	if err != nil {
		t.Fatalf("CaptureWinner: %v", err)
	}
	if outcome.WinnerBid.ID != top.ID {
		t.Errorf("winner = %s, want the top bid", outcome.WinnerBid.ID)
	}
	if outcome.FellBack {
		t.Error("FellBack = true, want false for a clean primary capture")
	}
	if got := store.bids[top.ID].Status; got != enums.BidStatusCaptured {
		t.Errorf("winner status = %s, want %s", got, enums.BidStatusCaptured)
	}
	if got := store.bids[loser.ID].Status; got != enums.BidStatusCancelled {
		t.Errorf("runner-up status = %s, want %s", got, enums.BidStatusCancelled)
	}
	if len(gateway.cancelled) != 1 || gateway.cancelled[0] != "pi_150" {
		t.Errorf("cancelled = %v, want [pi_150]", gateway.cancelled)
	}
}

func TestCaptureWinnerFallsBackToRunnerUp(t *testing.T) {
	auctionID := uuid.New()
	base := time.Now()
	runnerUp := holdBid(auctionID, "150.00", "pi_150", base)
	top := holdBid(auctionID, "200.00", "pi_200", base.Add(time.Minute))

	store := newFakeBidStore(runnerUp, top)
	gateway := &fakeCaptureGateway{captureErrs: map[string]error{
		"pi_200": pkgerrors.New(pkgerrors.CodeGatewayDecl, "card declined"),
	}}
	capturer := newTestCapturer(t, store, gateway)

	outcome, err := capturer.CaptureWinner(context.Background(), auctionID)
	if err != nil {
		t.Fatalf("CaptureWinner: %v", err)
	}
	if outcome.WinnerBid.ID != runnerUp.ID {
		t.Errorf("winner = %s, want the runner-up", outcome.WinnerBid.ID)
	}
	if !outcome.FellBack {
		t.Error("FellBack = false, want true")
	}
	if got := store.bids[top.ID].Status; got != enums.BidStatusFailed {
		t.Errorf("declined bid status = %s, want %s", got, enums.BidStatusFailed)
	}
	if got := store.bids[top.ID].PaymentIntentStatus; got != enums.PaymentIntentStatusFailed {
		t.Errorf("declined intent status = %s, want %s", got, enums.PaymentIntentStatusFailed)
	}
	for _, intentID := range gateway.cancelled {
		if intentID == "pi_200" {
			t.Error("declined hold was cancelled; failed is terminal")
		}
	}
	if got := store.bids[runnerUp.ID].Status; got != enums.BidStatusCaptured {
		t.Errorf("fallback winner status = %s, want %s", got, enums.BidStatusCaptured)
	}
}

func TestCaptureWinnerBothDecline(t *testing.T) {
	auctionID := uuid.New()
	base := time.Now()
	runnerUp := holdBid(auctionID, "150.00", "pi_150", base)
	top := holdBid(auctionID, "200.00", "pi_200", base.Add(time.Minute))

	store := newFakeBidStore(runnerUp, top)
	gateway := &fakeCaptureGateway{captureErrs: map[string]error{
		"pi_200": pkgerrors.New(pkgerrors.CodeGatewayDecl, "card declined"),
		"pi_150": pkgerrors.New(pkgerrors.CodeGatewayDecl, "card declined"),
	}}
	capturer := newTestCapturer(t, store, gateway)

	_, err := capturer.CaptureWinner(context.Background(), auctionID)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeGatewayDecl {
		t.Fatalf("error code = %v, want %v", pkgerrors.CodeOf(err), pkgerrors.CodeGatewayDecl)
	}
	if got := store.bids[top.ID].Status; got != enums.BidStatusFailed {
		t.Errorf("top bid status = %s, want %s", got, enums.BidStatusFailed)
	}
	if got := store.bids[runnerUp.ID].Status; got != enums.BidStatusFailed {
		t.Errorf("runner-up status = %s, want %s", got, enums.BidStatusFailed)
	}
}

func TestCaptureWinnerAlreadyCaptured(t *testing.T) {
	auctionID := uuid.New()
	winner := holdBid(auctionID, "200.00", "pi_200", time.Now())
	winner.Status = enums.BidStatusCaptured
	winner.PaymentIntentStatus = enums.PaymentIntentStatusCaptured

	store := newFakeBidStore(winner)
	gateway := &fakeCaptureGateway{}
	capturer := newTestCapturer(t, store, gateway)

	outcome, err := capturer.CaptureWinner(context.Background(), auctionID)
	if err != nil {
		t.Fatalf("CaptureWinner: %v", err)
	}
	if outcome.WinnerBid.ID != winner.ID {
		t.Errorf("winner = %s, want the already-captured bid", outcome.WinnerBid.ID)
	}
	if len(gateway.captured) != 0 {
		t.Errorf("gateway captures = %v, want none for an already-captured hold", gateway.captured)
	}
}

func TestCaptureWinnerNoLiveBids(t *testing.T) {
	capturer := newTestCapturer(t, newFakeBidStore(), &fakeCaptureGateway{})
	_, err := capturer.CaptureWinner(context.Background(), uuid.New())
	if pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Fatalf("error code = %v, want %v", pkgerrors.CodeOf(err), pkgerrors.CodeStateConflict)
	}
}
