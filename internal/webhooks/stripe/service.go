package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	stripego "github.com/stripe/stripe-go/v84"

	"github.com/decodecollective/decode-backend/internal/bids"
	"github.com/decodecollective/decode-backend/internal/offers"
	pkgerrors "github.com/decodecollective/decode-backend/pkg/errors"
	"github.com/decodecollective/decode-backend/pkg/enums"
	"github.com/decodecollective/decode-backend/pkg/logger"
	"github.com/decodecollective/decode-backend/pkg/metrics"
)

// Event types the dispatcher acts on. Everything else is acknowledged as
// unhandled so the gateway stops redelivering it.
const (
	eventAmountCapturable = "payment_intent.amount_capturable_updated"
	eventSucceeded        = "payment_intent.succeeded"
	eventPaymentFailed    = "payment_intent.payment_failed"
)

type rebalancer interface {
	Rebalance(ctx context.Context, auctionID uuid.UUID) error
}

type purchaseFulfiller interface {
	FulfillPurchase(ctx context.Context, params offers.FulfillParams) error
}

// Result reports how one delivery was resolved.
type Result struct {
	Duplicate bool
	Handled   bool
}

// Service resolves gateway deliveries: each event is claimed, recorded, and
// dispatched at most once. A failed dispatch releases the claim and reports
// failure so the gateway redelivers.
type Service struct {
	guard    *EventGuard
	ledger   Ledger
	bidRepo  bids.Repository
	preauth  rebalancer
	offerSvc purchaseFulfiller
	logg     *logger.Logger
	metrics  *metrics.SettlementMetrics
	now      func() time.Time
}

// ServiceParams wires the webhook service's dependencies.
type ServiceParams struct {
	Guard    *EventGuard
	Ledger   Ledger
	BidRepo  bids.Repository
	PreAuth  rebalancer
	OfferSvc purchaseFulfiller
	Logger   *logger.Logger
	Metrics  *metrics.SettlementMetrics
}

// NewService validates dependencies and returns a webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Guard == nil {
		return nil, fmt.Errorf("event guard required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("event ledger required")
	}
	if params.BidRepo == nil {
		return nil, fmt.Errorf("bid repository required")
	}
	if params.PreAuth == nil {
		return nil, fmt.Errorf("pre-auth manager required")
	}
	if params.OfferSvc == nil {
		return nil, fmt.Errorf("offer service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		guard:    params.Guard,
		ledger:   params.Ledger,
		bidRepo:  params.BidRepo,
		preauth:  params.PreAuth,
		offerSvc: params.OfferSvc,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      time.Now,
	}, nil
}

// ProcessEvent takes a signature-verified delivery through the guard, the
// ledger, and the dispatcher. Only a ledger row in status processed makes a
// redelivery a duplicate; failed rows stay retryable.
func (s *Service) ProcessEvent(ctx context.Context, event stripego.Event) (*Result, error) {
	if event.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	ctx = s.logg.WithEventID(ctx, event.ID)

	claimed, err := s.guard.CheckAndMark(ctx, event.ID)
	if err != nil {
		// Redis being down must not drop payments events; the ledger's
		// unique event id still dedupes.
		s.logg.Error(ctx, "event guard unavailable, continuing on ledger", err)
		claimed = true
	}
	if !claimed {
		existing, err := s.ledger.FindByEventID(ctx, event.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consult event ledger")
		}
		if existing != nil && existing.Status == enums.WebhookEventStatusProcessed {
			s.metrics.IncWebhookEvent("duplicate")
			return &Result{Duplicate: true}, nil
		}
		// Claimed but never finished, likely a crash mid-dispatch. Fall
		// through and run it again; every handler is idempotent.
	}

	record, err := s.ledger.Record(ctx, event.ID, string(event.Type), json.RawMessage(event.Data.Raw))
	if err != nil {
		s.releaseClaim(ctx, event.ID)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record event")
	}
	if record.Status == enums.WebhookEventStatusProcessed {
		s.metrics.IncWebhookEvent("duplicate")
		return &Result{Duplicate: true}, nil
	}

	handled, err := s.dispatch(ctx, event)
	if err != nil {
		if markErr := s.ledger.MarkFailed(ctx, event.ID, err); markErr != nil {
			s.logg.Error(ctx, "failed to record event failure", markErr)
		}
		s.releaseClaim(ctx, event.ID)
		s.metrics.IncWebhookEvent("failed")
		return nil, err
	}
	if !handled {
		if err := s.ledger.MarkUnhandled(ctx, event.ID); err != nil {
			s.logg.Error(ctx, "failed to record unhandled event", err)
		}
		s.metrics.IncWebhookEvent("unhandled")
		return &Result{Handled: false}, nil
	}
	if err := s.ledger.MarkProcessed(ctx, event.ID, s.now()); err != nil {
		s.logg.Error(ctx, "failed to record processed event", err)
	}
	s.metrics.IncWebhookEvent("processed")
	return &Result{Handled: true}, nil
}

func (s *Service) releaseClaim(ctx context.Context, eventID string) {
	if err := s.guard.Release(ctx, eventID); err != nil {
		s.logg.Error(ctx, "failed to release event claim", err)
	}
}

// dispatch routes one event by type and payment metadata. Returns false for
// events this service does not act on.
func (s *Service) dispatch(ctx context.Context, event stripego.Event) (bool, error) {
	switch string(event.Type) {
	case eventAmountCapturable, eventSucceeded, eventPaymentFailed:
	default:
		return false, nil
	}

	var intent stripego.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent payload")
	}
	kind := intent.Metadata["type"]

	switch string(event.Type) {
	case eventAmountCapturable:
		if kind != bids.MetadataTypeAuctionBid {
			return false, nil
		}
		return true, s.handleBidAuthorized(ctx, &intent)
	case eventSucceeded:
		switch kind {
		case bids.MetadataTypeAuctionBid:
			// Settlement already moved the bid to captured; the delivery
			// only confirms it.
			return true, nil
		case offers.MetadataTypeLimitedOffer:
			return true, s.handleOfferPaid(ctx, &intent)
		default:
			return false, nil
		}
	case eventPaymentFailed:
		if kind != bids.MetadataTypeAuctionBid {
			return false, nil
		}
		return true, s.handleBidFailed(ctx, &intent)
	}
	return false, nil
}

// handleBidAuthorized confirms the card hold behind a bid and rebalances the
// auction's live holds. An unknown intent is an ordering problem: the bid
// row may not be committed yet, so the event is failed for redelivery.
func (s *Service) handleBidAuthorized(ctx context.Context, intent *stripego.PaymentIntent) error {
	confirmed, err := s.bidRepo.MarkAuthorized(ctx, intent.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm bid authorization")
	}
	if !confirmed {
		bid, err := s.bidRepo.FindByPaymentIntentID(ctx, intent.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up bid")
		}
		if bid == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("no bid for payment intent %s", intent.ID))
		}
		// The bid exists but is terminal; nothing left to confirm.
		return nil
	}

	auctionID, err := uuid.Parse(intent.Metadata["auction_id"])
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse auction id metadata")
	}
	return s.preauth.Rebalance(ctx, auctionID)
}

func (s *Service) handleBidFailed(ctx context.Context, intent *stripego.PaymentIntent) error {
	bid, err := s.bidRepo.FindByPaymentIntentID(ctx, intent.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up bid")
	}
	if bid == nil {
		s.logg.Warn(ctx, fmt.Sprintf("payment failure for unknown intent %s", intent.ID))
		return nil
	}
	if bid.PaymentIntentStatus == enums.PaymentIntentStatusCaptured {
		// Money already moved; a late failure event cannot unwind it here.
		s.logg.Warn(ctx, "payment failure event for captured bid")
		return nil
	}
	return s.bidRepo.UpdateStatuses(ctx, bid.ID,
		enums.BidStatusFailed, enums.PaymentIntentStatusFailed)
}

func (s *Service) handleOfferPaid(ctx context.Context, intent *stripego.PaymentIntent) error {
	offerID, err := uuid.Parse(intent.Metadata["offer_id"])
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse offer id metadata")
	}
	return s.offerSvc.FulfillPurchase(ctx, offers.FulfillParams{
		OfferID:         offerID,
		BuyerEmail:      intent.Metadata["buyer_email"],
		PaymentIntentID: intent.ID,
		Amount:          decimal.New(intent.Amount, -2),
	})
}
