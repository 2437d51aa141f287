// Package idempotency marks work as claimed in redis so redelivered webhooks
// and pubsub messages are handled once per TTL window.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/rafflepot-backend/pkg/redis"
)

const claimedMarker = "1"

// Guard claims keys within a single scope, e.g. "paystack" or
// "evt:processed:winner-notifications".
type Guard struct {
	store redis.IdempotencyStore
	scope string
	ttl   time.Duration
}

func NewGuard(store redis.IdempotencyStore, scope string, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, errors.New("idempotency scope is required")
	}
	if ttl <= 0 {
		return nil, errors.New("idempotency ttl must be positive")
	}
	return &Guard{store: store, scope: scope, ttl: ttl}, nil
}

// ConsumerGuard scopes a guard to processed events of one pubsub consumer.
func ConsumerGuard(store redis.IdempotencyStore, consumer string, ttl time.Duration) (*Guard, error) {
	if strings.TrimSpace(consumer) == "" {
		return nil, errors.New("consumer name is required")
	}
	return NewGuard(store, "evt:processed:"+consumer, ttl)
}

// Claim reports whether the caller is the first to see key. A false result
// means another delivery already claimed it and the work must be skipped.
func (g *Guard) Claim(ctx context.Context, key string) (bool, error) {
	full, err := g.keyFor(key)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, full, claimedMarker, g.ttl)
}

// Forget releases a claim so a failed attempt can be retried.
func (g *Guard) Forget(ctx context.Context, key string) error {
	full, err := g.keyFor(key)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, full)
}

func (g *Guard) keyFor(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("idempotency key is required")
	}
	return g.store.IdempotencyKey(g.scope, key), nil
}
