package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowScript runs INCR and the first PEXPIRE atomically and returns {count, pttl}.
var windowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {count, redis.call('PTTL', KEYS[1])}
`)

// WindowResult reports where a caller stands inside a fixed rate-limit window.
type WindowResult struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// CountWindow records one hit against scope and reports whether it stays within limit.
func (c *Client) CountWindow(ctx context.Context, scope string, limit int64, window time.Duration) (WindowResult, error) {
	if c.rdb == nil {
		return WindowResult{}, errNotInitialized
	}
	raw, err := windowScript.Run(ctx, c.rdb, []string{c.RateLimitKey(scope)}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return WindowResult{}, fmt.Errorf("count window %s: %w", scope, err)
	}
	if len(raw) != 2 {
		return WindowResult{}, fmt.Errorf("count window %s: unexpected reply %v", scope, raw)
	}
	result := WindowResult{Count: raw[0], Allowed: raw[0] <= limit}
	if !result.Allowed {
		result.RetryAfter = time.Duration(raw[1]) * time.Millisecond
		if result.RetryAfter <= 0 {
			result.RetryAfter = window
		}
	}
	return result, nil
}
