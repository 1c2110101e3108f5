package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/angelmondragon/backoffice/pkg/config"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr()}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestCountWindow(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)

	for i := 1; i <= 2; i++ {
		res, err := client.CountWindow(ctx, "moderation:admin-1", 2, time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !res.Allowed || res.Count != int64(i) || res.RetryAfter != 0 {
			t.Fatalf("call %d: unexpected result %+v", i, res)
		}
	}
	if ttl := mr.TTL(client.RateLimitKey("moderation:admin-1")); ttl != time.Minute {
		t.Fatalf("expected window ttl to be set once, got %v", ttl)
	}

	mr.FastForward(20 * time.Second)
	res, err := client.CountWindow(ctx, "moderation:admin-1", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed || res.Count != 3 {
		t.Fatalf("expected limit reached, got %+v", res)
	}
	if res.RetryAfter <= 0 || res.RetryAfter > 40*time.Second {
		t.Fatalf("expected retry-after within remaining window, got %v", res.RetryAfter)
	}

	mr.FastForward(time.Minute)
	res, err = client.CountWindow(ctx, "moderation:admin-1", 2, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed || res.Count != 1 {
		t.Fatalf("expected fresh window, got %+v", res)
	}
}

func TestSetOverwrites(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestClient(t)
	key := client.IdempotencyKey("admin_1|/users/1/moderation", "k1")

	if err := client.Set(ctx, key, "pending", time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := client.Set(ctx, key, "done", time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := mr.Get(key); got != "done" {
		t.Fatalf("expected overwritten value, got %q", got)
	}
	if err := client.Del(ctx); err != nil {
		t.Fatalf("del with no keys should be a no-op: %v", err)
	}
}

func TestSetNXAndDel(t *testing.T) {
	ctx := context.Background()
	client, _ := newTestClient(t)
	key := client.WebhookEventKey("identity", "evt_1")

	first, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || !first {
		t.Fatalf("expected first SetNX to win, got %v err=%v", first, err)
	}
	second, err := client.SetNX(ctx, key, "1", time.Hour)
	if err != nil || second {
		t.Fatalf("expected duplicate SetNX to lose, got %v err=%v", second, err)
	}

	value, err := client.Get(ctx, key)
	if err != nil || value != "1" {
		t.Fatalf("unexpected get %q err=%v", value, err)
	}

	if err := client.Del(ctx, key); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := client.Get(ctx, key); err != redis.Nil {
		t.Fatalf("expected redis.Nil after delete, got %v", err)
	}
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("scope", "id"); got != "bo:idempotency:scope:id" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.RateLimitKey("scope"); got != "bo:rate_limit:scope" {
		t.Fatalf("unexpected rate limit key %s", got)
	}
	if got := client.WebhookEventKey("identity", " evt_9 "); got != "bo:webhook:identity:evt_9" {
		t.Fatalf("unexpected webhook key %s", got)
	}
	if got := client.WebhookEventKey("identity", ""); got != "bo:webhook:identity" {
		t.Fatalf("empty parts should be skipped, got %s", got)
	}
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error from uninitialized client")
	}
	if _, err := client.CountWindow(context.Background(), "scope", 1, time.Second); err == nil {
		t.Fatal("expected error counting on uninitialized client")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on uninitialized client should be a no-op: %v", err)
	}
}

func TestOptionsFromConfigRequiresAddress(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected missing url and address to fail")
	}
	opts, err := optionsFromConfig(config.RedisConfig{Address: "localhost:6380", DB: 2, PoolSize: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.DB != 2 || opts.PoolSize != 7 {
		t.Fatalf("unexpected options %+v", opts)
	}
}
