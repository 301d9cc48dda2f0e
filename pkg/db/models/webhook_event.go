package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/decodecollective/decode-backend/pkg/enums"
)

// WebhookEvent is the durable idempotency anchor for gateway deliveries.
// EventID is gateway-assigned and unique; a processed row short-circuits
// every redelivery of the same event.
type WebhookEvent struct {
	ID          uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID     string                   `gorm:"column:event_id;not null;uniqueIndex:uq_webhook_events_event_id"`
	EventType   string                   `gorm:"column:event_type;not null"`
	Payload     json.RawMessage          `gorm:"column:payload;type:jsonb"`
	Status      enums.WebhookEventStatus `gorm:"column:status;type:webhook_event_status;not null;default:'received'"`
	Error       *string                  `gorm:"column:error"`
	ProcessedAt *time.Time               `gorm:"column:processed_at"`
	CreatedAt   time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
