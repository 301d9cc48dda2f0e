package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/decodecollective/decode-backend/pkg/enums"
)

// Notification is an outbound message record. Delivery is best-effort and
// never gates settlement.
type Notification struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RecipientEmail string                 `gorm:"column:recipient_email;not null"`
	Kind           enums.NotificationKind `gorm:"column:kind;type:notification_kind;not null"`
	Subject        string                 `gorm:"column:subject;not null"`
	Body           string                 `gorm:"column:body;not null"`
	AuctionID      *uuid.UUID             `gorm:"column:auction_id;type:uuid"`
	OfferID        *uuid.UUID             `gorm:"column:offer_id;type:uuid"`
	SentAt         *time.Time             `gorm:"column:sent_at"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
}
