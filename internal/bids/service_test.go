package bids

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/decodecollective/decode-backend/internal/auctions"
	"github.com/decodecollective/decode-backend/pkg/db/models"
	pkgerrors "github.com/decodecollective/decode-backend/pkg/errors"
	"github.com/decodecollective/decode-backend/pkg/enums"
	"github.com/decodecollective/decode-backend/pkg/stripe"
)

type fakeAuctionRepo struct {
	auctions map[uuid.UUID]*models.Auction
}

func newFakeAuctionRepo(items ...*models.Auction) *fakeAuctionRepo {
	repo := &fakeAuctionRepo{auctions: map[uuid.UUID]*models.Auction{}}
	for _, item := range items {
		repo.auctions[item.ID] = item
	}
	return repo
}

func (r *fakeAuctionRepo) WithTx(tx *gorm.DB) auctions.Repository { return r }

func (r *fakeAuctionRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	auction, ok := r.auctions[id]
	if !ok {
		return nil, nil
	}
	copied := *auction
	return &copied, nil
}

func (r *fakeAuctionRepo) Complete(ctx context.Context, params auctions.CompleteParams) (bool, error) {
	auction, ok := r.auctions[params.AuctionID]
	if !ok || auction.Status.IsTerminal() {
		return false, nil
	}
	auction.Status = enums.AuctionStatusCompleted
	winnerID := params.WinnerBidID
	auction.WinnerBidID = &winnerID
	auction.ProfitAmount = &params.Profit
	auction.PlatformFeeAmount = &params.PlatformFee
	auction.ModelPayoutAmount = &params.NetPayout
	return true, nil
}

func (r *fakeAuctionRepo) End(ctx context.Context, id uuid.UUID) (bool, error) {
	auction, ok := r.auctions[id]
	if !ok || auction.Status.IsTerminal() {
		return false, nil
	}
	auction.Status = enums.AuctionStatusEnded
	return true, nil
}

func (r *fakeAuctionRepo) RaiseCurrentPrice(ctx context.Context, id uuid.UUID, amount decimal.Decimal) error {
	auction, ok := r.auctions[id]
	if !ok {
		return errors.New("auction not found")
	}
	if amount.GreaterThan(auction.CurrentPrice) {
		auction.CurrentPrice = amount
	}
	return nil
}

func (r *fakeAuctionRepo) SetSchedulerHandle(ctx context.Context, id uuid.UUID, handle string) error {
	if auction, ok := r.auctions[id]; ok {
		auction.SchedulerHandle = &handle
	}
	return nil
}

func (r *fakeAuctionRepo) ClearSchedulerHandle(ctx context.Context, id uuid.UUID) error {
	if auction, ok := r.auctions[id]; ok {
		auction.SchedulerHandle = nil
	}
	return nil
}

type fakeGateway struct {
	fakeCanceller

	authorizeErr error
	authorized   []decimal.Decimal
	nextIntentID string
}

func (g *fakeGateway) Authorize(ctx context.Context, amount decimal.Decimal, paymentMethodID string, metadata map[string]string) (*stripe.Intent, error) {
	if g.authorizeErr != nil {
		return nil, g.authorizeErr
	}
	g.authorized = append(g.authorized, amount)
	id := g.nextIntentID
	if id == "" {
		id = "pi_" + uuid.NewString()
	}
	return &stripe.Intent{ID: id, Status: string(enums.PaymentIntentStatusRequiresCapture)}, nil
}

func activeAuction(start, current string, endsIn time.Duration) *models.Auction {
	return &models.Auction{
		ID:           uuid.New(),
		SellerID:     uuid.New(),
		Title:        "signed jersey",
		Status:       enums.AuctionStatusActive,
		StartPrice:   decimal.RequireFromString(start),
		CurrentPrice: decimal.RequireFromString(current),
		EndTime:      time.Now().Add(endsIn),
	}
}

func newTestService(t *testing.T, auctionRepo auctions.Repository, bidRepo Repository, gateway *fakeGateway) *Service {
	t.Helper()
	manager := newTestManager(t, bidRepo, &gateway.fakeCanceller)
	service, err := NewService(ServiceParams{
		AuctionRepo: auctionRepo,
		BidRepo:     bidRepo,
		Gateway:     gateway,
		PreAuth:     manager,
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service
}

func TestPlaceBidAuthorizesFullAmount(t *testing.T) {
	auction := activeAuction("50.00", "50.00", time.Hour)
	auctionRepo := newFakeAuctionRepo(auction)
	bidRepo := newFakeBidRepo()
	gateway := &fakeGateway{nextIntentID: "pi_bid_1"}
	service := newTestService(t, auctionRepo, bidRepo, gateway)

	bid, err := service.PlaceBid(context.Background(), PlaceBidParams{
		AuctionID:       auction.ID,
		BidderEmail:     "alice@example.com",
		Amount:          decimal.RequireFromString("100.00"),
		PaymentMethodID: "pm_card",
	})
	if err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	if bid.PaymentIntentID != "pi_bid_1" {
		t.Errorf("payment intent id = %s, want pi_bid_1", bid.PaymentIntentID)
	}
	if bid.PaymentIntentStatus != enums.PaymentIntentStatusRequiresCapture {
		t.Errorf("intent status = %s, want %s", bid.PaymentIntentStatus, enums.PaymentIntentStatusRequiresCapture)
	}
	if len(gateway.authorized) != 1 || !gateway.authorized[0].Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("authorized amounts = %v, want the full bid amount", gateway.authorized)
	}
	if !auctionRepo.auctions[auction.ID].CurrentPrice.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("current price = %s, want raised to 100.00", auctionRepo.auctions[auction.ID].CurrentPrice)
	}
	if got := bidRepo.bids[bid.ID].Status; got != enums.BidStatusWinning {
		t.Errorf("sole bid status = %s, want %s after rebalance", got, enums.BidStatusWinning)
	}
}

func TestPlaceBidSequenceBoundsLiveHolds(t *testing.T) {
	auction := activeAuction("50.00", "50.00", time.Hour)
	auctionRepo := newFakeAuctionRepo(auction)
	bidRepo := newFakeBidRepo()
	gateway := &fakeGateway{}
	service := newTestService(t, auctionRepo, bidRepo, gateway)

	for _, amount := range []string{"100.00", "150.00", "200.00"} {
		if _, err := service.PlaceBid(context.Background(), PlaceBidParams{
			AuctionID:       auction.ID,
			BidderEmail:     "bidder@example.com",
			Amount:          decimal.RequireFromString(amount),
			PaymentMethodID: "pm_card",
		}); err != nil {
			t.Fatalf("PlaceBid(%s): %v", amount, err)
		}
	}

	live, _ := bidRepo.FindLiveByAuction(context.Background(), auction.ID)
	if len(live) != 2 {
		t.Fatalf("live holds = %d, want at most 2", len(live))
	}
	for _, bid := range live {
		if bid.Amount.Equal(decimal.RequireFromString("100.00")) {
			t.Errorf("lowest bid still holds funds")
		}
	}
	if len(gateway.cancelled) != 1 {
		t.Errorf("cancelled holds = %d, want 1", len(gateway.cancelled))
	}
}

func TestPlaceBidRejectsLowAmount(t *testing.T) {
	auction := activeAuction("50.00", "150.00", time.Hour)
	service := newTestService(t, newFakeAuctionRepo(auction), newFakeBidRepo(), &fakeGateway{})

	_, err := service.PlaceBid(context.Background(), PlaceBidParams{
		AuctionID:       auction.ID,
		BidderEmail:     "bob@example.com",
		Amount:          decimal.RequireFromString("150.00"),
		PaymentMethodID: "pm_card",
	})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Errorf("error code = %v, want %v", pkgerrors.CodeOf(err), pkgerrors.CodeValidation)
	}
}

func TestPlaceBidRejectsEndedWindow(t *testing.T) {
	auction := activeAuction("50.00", "50.00", -time.Minute)
	service := newTestService(t, newFakeAuctionRepo(auction), newFakeBidRepo(), &fakeGateway{})

	_, err := service.PlaceBid(context.Background(), PlaceBidParams{
		AuctionID:       auction.ID,
		BidderEmail:     "bob@example.com",
		Amount:          decimal.RequireFromString("100.00"),
		PaymentMethodID: "pm_card",
	})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Errorf("error code = %v, want %v", pkgerrors.CodeOf(err), pkgerrors.CodeStateConflict)
	}
}

func TestPlaceBidInactiveAuction(t *testing.T) {
	auction := activeAuction("50.00", "50.00", time.Hour)
	auction.Status = enums.AuctionStatusCompleted
	service := newTestService(t, newFakeAuctionRepo(auction), newFakeBidRepo(), &fakeGateway{})

	_, err := service.PlaceBid(context.Background(), PlaceBidParams{
		AuctionID:       auction.ID,
		BidderEmail:     "bob@example.com",
		Amount:          decimal.RequireFromString("100.00"),
		PaymentMethodID: "pm_card",
	})
	if pkgerrors.CodeOf(err) != pkgerrors.CodeStateConflict {
		t.Errorf("error code = %v, want %v", pkgerrors.CodeOf(err), pkgerrors.CodeStateConflict)
	}
}
