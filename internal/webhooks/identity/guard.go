package identitywebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type dedupeStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookEventKey(source, eventID string) string
}

// IdempotencyGuard remembers delivered event ids so provider retries are processed once.
type IdempotencyGuard struct {
	store  dedupeStore
	ttl    time.Duration
	source string
}

func NewIdempotencyGuard(store dedupeStore, ttl time.Duration, source string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("dedupe store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if source == "" {
		return nil, errors.New("source is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, source: source}, nil
}

// CheckAndMark reports whether eventID was already seen, marking it otherwise.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.WebhookEventKey(g.source, eventID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set webhook event key: %w", err)
	}
	return !set, nil
}

// Delete forgets eventID so a failed delivery can be retried.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.WebhookEventKey(g.source, eventID))
}
