package paymobwebhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// IdempotencyGuard remembers callback bodies already applied so gateway
// retries short-circuit before touching the database.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// BodyKey fingerprints a raw callback body.
func BodyKey(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// CheckAndMark reports whether the id was seen before and marks it otherwise.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.New("id is required")
	}
	key := g.store.IdempotencyKey(g.scope, id)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete forgets the id so a failed delivery can be retried.
func (g *IdempotencyGuard) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, id))
}
