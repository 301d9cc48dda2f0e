package stripe

import (
	"context"
	"fmt"
	"time"

	"github.com/decodecollective/decode-backend/pkg/redis"
)

const guardScope = "webhook:stripe"

// EventGuard is the fast-path duplicate filter in front of the durable
// ledger. It is an optimization only: redis loss widens the window for
// concurrent duplicates, which the ledger's unique event id still absorbs.
type EventGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewEventGuard returns a guard holding claims for the given TTL.
func NewEventGuard(store redis.IdempotencyStore, ttl time.Duration) (*EventGuard, error) {
	if store == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EventGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark claims the event id. Returns true when this delivery is the
// first claimant; false means another delivery already holds the claim.
func (g *EventGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	key := g.store.IdempotencyKey(guardScope, eventID)
	return g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
}

// Release drops the claim so the gateway's redelivery can try again.
func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	return g.store.Del(ctx, g.store.IdempotencyKey(guardScope, eventID))
}
