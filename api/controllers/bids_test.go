package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/decodecollective/decode-backend/internal/bids"
	"github.com/decodecollective/decode-backend/pkg/db/models"
	"github.com/decodecollective/decode-backend/pkg/enums"
)

type fakeBidService struct {
	placed []bids.PlaceBidParams
	err    error
}

func (f *fakeBidService) PlaceBid(ctx context.Context, params bids.PlaceBidParams) (*models.Bid, error) {
	f.placed = append(f.placed, params)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Bid{
		ID:              uuid.New(),
		AuctionID:       params.AuctionID,
		BidderEmail:     params.BidderEmail,
		Amount:          params.Amount,
		Status:          enums.BidStatusPending,
		PaymentIntentID: "pi_test",
	}, nil
}

func postBid(t *testing.T, handler http.HandlerFunc, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bids", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestPlaceBidCreated(t *testing.T) {
	svc := &fakeBidService{}
	handler := PlaceBid(svc, nil)

	auctionID := uuid.New()
	rec := postBid(t, handler, map[string]any{
		"auction_id":        auctionID.String(),
		"bidder_email":      "bidder@example.com",
		"amount":            "150.00",
		"payment_method_id": "pm_card",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(svc.placed) != 1 {
		t.Fatalf("expected one PlaceBid call, got %d", len(svc.placed))
	}
	got := svc.placed[0]
	if got.AuctionID != auctionID || !got.Amount.Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("unexpected params: %+v", got)
	}
}

func TestPlaceBidRejectsBadEmail(t *testing.T) {
	svc := &fakeBidService{}
	handler := PlaceBid(svc, nil)

	rec := postBid(t, handler, map[string]any{
		"auction_id":        uuid.NewString(),
		"bidder_email":      "not-an-email",
		"amount":            "150.00",
		"payment_method_id": "pm_card",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(svc.placed) != 0 {
		t.Fatal("service should not be called for invalid payload")
	}
}

func TestPlaceBidRejectsBadAmount(t *testing.T) {
	svc := &fakeBidService{}
	handler := PlaceBid(svc, nil)

	rec := postBid(t, handler, map[string]any{
		"auction_id":        uuid.NewString(),
		"bidder_email":      "bidder@example.com",
		"amount":            "lots",
		"payment_method_id": "pm_card",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(svc.placed) != 0 {
		t.Fatal("service should not be called for invalid amount")
	}
}
