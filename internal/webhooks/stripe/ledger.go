package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/decodecollective/decode-backend/pkg/db"
	"github.com/decodecollective/decode-backend/pkg/db/models"
	"github.com/decodecollective/decode-backend/pkg/enums"
)

// Ledger is the durable record of every gateway delivery. The unique event
// id makes it the idempotency anchor that survives redis loss.
type Ledger interface {
	WithTx(tx *gorm.DB) Ledger
	FindByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	Record(ctx context.Context, eventID, eventType string, payload json.RawMessage) (*models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, eventID string, at time.Time) error
	MarkUnhandled(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, cause error) error
}

type ledger struct {
	db *gorm.DB
}

// NewLedger returns a webhook ledger bound to the provided database.
func NewLedger(gdb *gorm.DB) Ledger {
	return &ledger{db: gdb}
}

func (l *ledger) WithTx(tx *gorm.DB) Ledger {
	if tx == nil {
		return l
	}
	return &ledger{db: tx}
}

func (l *ledger) FindByEventID(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := l.db.WithContext(ctx).Where("event_id = ?", eventID).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// Record inserts the delivery in status received. A concurrent insert of the
// same event id loses the unique-index race; the surviving row is returned.
func (l *ledger) Record(ctx context.Context, eventID, eventType string, payload json.RawMessage) (*models.WebhookEvent, error) {
	event := &models.WebhookEvent{
		EventID:   eventID,
		EventType: eventType,
		Payload:   payload,
		Status:    enums.WebhookEventStatusReceived,
	}
	err := l.db.WithContext(ctx).Create(event).Error
	if err == nil {
		return event, nil
	}
	if db.IsUniqueViolation(err) {
		return l.FindByEventID(ctx, eventID)
	}
	return nil, err
}

func (l *ledger) MarkProcessed(ctx context.Context, eventID string, at time.Time) error {
	return l.setStatus(ctx, eventID, map[string]any{
		"status":       enums.WebhookEventStatusProcessed,
		"processed_at": at,
		"error":        nil,
		"updated_at":   time.Now().UTC(),
	})
}

func (l *ledger) MarkUnhandled(ctx context.Context, eventID string) error {
	return l.setStatus(ctx, eventID, map[string]any{
		"status":     enums.WebhookEventStatusUnhandled,
		"updated_at": time.Now().UTC(),
	})
}

func (l *ledger) MarkFailed(ctx context.Context, eventID string, cause error) error {
	message := "unknown failure"
	if cause != nil {
		message = cause.Error()
	}
	return l.setStatus(ctx, eventID, map[string]any{
		"status":     enums.WebhookEventStatusFailed,
		"error":      message,
		"updated_at": time.Now().UTC(),
	})
}

func (l *ledger) setStatus(ctx context.Context, eventID string, columns map[string]any) error {
	return l.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		UpdateColumns(columns).Error
}
