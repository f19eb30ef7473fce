package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// checkScript performs the admission check and the increment in one atomic
// step, so two concurrent checks for the same sender can never both take the
// last remaining slot. A denied request is not counted. The window key is
// created with the window TTL on the first admitted message, which anchors
// the rolling window at the sender's first contact.
var checkScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count >= capacity then
  return {0, count, redis.call("PTTL", KEYS[1])}
end
count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], window)
end
return {1, count, redis.call("PTTL", KEYS[1])}
`)

// Result is the outcome of one admission check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter throttles inbound messages per sender over a rolling window.
// State lives in Redis so multiple workers share the same windows.
type Limiter struct {
	client   *redis.Client
	capacity int
	window   time.Duration
	prefix   string
}

// NewLimiter returns a per-sender limiter with the given capacity and window.
func NewLimiter(client *redis.Client, capacity int, window time.Duration) *Limiter {
	return &Limiter{
		client:   client,
		capacity: capacity,
		window:   window,
		prefix:   "rate:",
	}
}

// Check admits or rejects one message from the sender. The check and the
// count increment are atomic; rejections never increment.
func (l *Limiter) Check(ctx context.Context, sender string, now time.Time) (Result, error) {
	key := l.prefix + sender

	raw, err := checkScript.Run(ctx, l.client, []string{key}, l.capacity, l.window.Milliseconds()).Result()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check for %q: %w", sender, err)
	}

	vals, ok := raw.([]interface{})
	if !ok || len(vals) != 3 {
		return Result{}, fmt.Errorf("rate limit check for %q: unexpected script reply %v", sender, raw)
	}
	allowed := vals[0].(int64) == 1
	count := vals[1].(int64)
	pttl := vals[2].(int64)

	resetAt := now.Add(l.window)
	if pttl > 0 {
		resetAt = now.Add(time.Duration(pttl) * time.Millisecond)
	}

	remaining := l.capacity - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{Allowed: allowed, Remaining: remaining, ResetAt: resetAt}, nil
}
