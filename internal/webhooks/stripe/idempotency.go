package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/redis"
)

// DefaultDedupeScope namespaces Stripe event ids in Redis.
const DefaultDedupeScope = "stripe_webhook"

// EventGuard drops redelivered Stripe events by remembering their ids.
type EventGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewEventGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*EventGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("dedupe ttl must be positive")
	}
	if scope == "" {
		scope = DefaultDedupeScope
	}
	return &EventGuard{store: store, ttl: ttl, scope: scope}, nil
}

// Claim marks the event as seen. It returns false when another delivery
// already claimed it.
func (g *EventGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	claimed, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, eventID), time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim stripe event: %w", err)
	}
	return claimed, nil
}

// Release forgets the event so Stripe's retry is processed again.
func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, eventID))
}
