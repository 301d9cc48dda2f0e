package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/decodecollective/decode-backend/pkg/db/models"
	"github.com/decodecollective/decode-backend/pkg/enums"
	"github.com/decodecollective/decode-backend/pkg/logger"
)

// Publisher is the outbound event surface. Publish blocks until the broker
// acknowledges the message and returns its server-assigned id.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// TopicPublisher adapts a Pub/Sub publisher handle to the Publisher interface.
type TopicPublisher struct {
	publisher *gcppubsub.Publisher
}

// NewTopicPublisher wraps the given publisher handle. A nil handle yields a
// publisher that reports every publish as failed.
func NewTopicPublisher(publisher *gcppubsub.Publisher) *TopicPublisher {
	return &TopicPublisher{publisher: publisher}
}

func (p *TopicPublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	if p == nil || p.publisher == nil {
		return "", fmt.Errorf("notification topic is not configured")
	}
	result := p.publisher.Publish(ctx, &gcppubsub.Message{
		Data:       data,
		Attributes: attributes,
	})
	return result.Get(ctx)
}

// Service records notifications and fans them out over Pub/Sub. Delivery is
// best-effort; a failed publish leaves the row unsent for a later sweep.
type Service struct {
	repo      Repository
	publisher Publisher
	logg      *logger.Logger
	now       func() time.Time
}

// ServiceParams wires the notification service's dependencies. Publisher is
// optional; without it notifications are recorded but not fanned out.
type ServiceParams struct {
	Repo      Repository
	Publisher Publisher
	Logger    *logger.Logger
}

// NewService validates dependencies and returns a notification service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notification repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:      params.Repo,
		publisher: params.Publisher,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

type notificationEvent struct {
	Kind           string `json:"kind"`
	RecipientEmail string `json:"recipient_email"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	AuctionID      string `json:"auction_id,omitempty"`
	OfferID        string `json:"offer_id,omitempty"`
}

// NotifyAuctionWon tells the winning bidder they won. The deliverable token
// may be empty when minting failed; the win still goes out.
func (s *Service) NotifyAuctionWon(ctx context.Context, bid models.Bid, deliverableToken string) error {
	body := fmt.Sprintf("Your bid of %s won the auction.", bid.Amount.StringFixed(2))
	if deliverableToken != "" {
		body = fmt.Sprintf("%s Access your deliverable with token %s.", body, deliverableToken)
	}
	auctionID := bid.AuctionID
	return s.deliver(ctx, &models.Notification{
		ID:             uuid.New(),
		RecipientEmail: bid.BidderEmail,
		Kind:           enums.NotificationKindAuctionWon,
		Subject:        "You won the auction",
		Body:           body,
		AuctionID:      &auctionID,
	})
}

// NotifyOutbid tells a bidder their bid lost its lead.
func (s *Service) NotifyOutbid(ctx context.Context, bid models.Bid) error {
	auctionID := bid.AuctionID
	return s.deliver(ctx, &models.Notification{
		ID:             uuid.New(),
		RecipientEmail: bid.BidderEmail,
		Kind:           enums.NotificationKindOutbid,
		Subject:        "You have been outbid",
		Body:           fmt.Sprintf("Your bid of %s is no longer the highest.", bid.Amount.StringFixed(2)),
		AuctionID:      &auctionID,
	})
}

// NotifyPurchaseConfirmed confirms a recorded limited-offer purchase.
func (s *Service) NotifyPurchaseConfirmed(ctx context.Context, purchase models.OfferPurchase) error {
	offerID := purchase.OfferID
	return s.deliver(ctx, &models.Notification{
		ID:             uuid.New(),
		RecipientEmail: purchase.BuyerEmail,
		Kind:           enums.NotificationKindPurchaseOK,
		Subject:        "Purchase confirmed",
		Body:           fmt.Sprintf("Your purchase of %s is confirmed.", purchase.Amount.StringFixed(2)),
		OfferID:        &offerID,
	})
}

// NotifyRefund tells a buyer their payment was returned and why.
func (s *Service) NotifyRefund(ctx context.Context, email, intentID, reason string) error {
	return s.deliver(ctx, &models.Notification{
		ID:             uuid.New(),
		RecipientEmail: email,
		Kind:           enums.NotificationKindRefundIssued,
		Subject:        "Your payment was refunded",
		Body:           fmt.Sprintf("Payment %s was refunded: %s", intentID, reason),
	})
}

// NotifyPayoutPending tells a seller their payout entered processing.
func (s *Service) NotifyPayoutPending(ctx context.Context, email string, payout models.Payout) error {
	auctionID := payout.AuctionID
	return s.deliver(ctx, &models.Notification{
		ID:             uuid.New(),
		RecipientEmail: email,
		Kind:           enums.NotificationKindPayoutPending,
		Subject:        "Your payout is on its way",
		Body:           fmt.Sprintf("A payout of %s is being processed.", payout.NetAmount.StringFixed(2)),
		AuctionID:      &auctionID,
	})
}

// ListForRecipient returns the most recent notifications for an email,
// newest first.
func (s *Service) ListForRecipient(ctx context.Context, email string, limit int) ([]models.Notification, error) {
	if email == "" {
		return nil, fmt.Errorf("recipient email is required")
	}
	return s.repo.FindByRecipient(ctx, email, limit)
}

// deliver records the notification, then publishes it. The record is the
// source of truth; publish failures only delay fanout.
func (s *Service) deliver(ctx context.Context, notification *models.Notification) error {
	if err := s.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	if s.publisher == nil {
		return nil
	}

	event := notificationEvent{
		Kind:           notification.Kind.String(),
		RecipientEmail: notification.RecipientEmail,
		Subject:        notification.Subject,
		Body:           notification.Body,
	}
	if notification.AuctionID != nil {
		event.AuctionID = notification.AuctionID.String()
	}
	if notification.OfferID != nil {
		event.OfferID = notification.OfferID.String()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode notification event: %w", err)
	}

	if _, err := s.publisher.Publish(ctx, payload, map[string]string{
		"kind": notification.Kind.String(),
	}); err != nil {
		s.logg.Error(ctx, "failed to publish notification event", err)
		return nil
	}
	if err := s.repo.MarkSent(ctx, notification.ID, s.now()); err != nil {
		s.logg.Error(ctx, "failed to mark notification sent", err)
	}
	return nil
}
