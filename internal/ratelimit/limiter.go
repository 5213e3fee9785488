package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript consumes one unit for the caller: first from the burst
// allowance, then from the fixed per-minute window. Returns
// {allowed, remaining, retry_after_seconds}. Window keys carry the minute
// index so they expire on their own; the burst key has no window index
// and its own expiry, so the allowance regenerates on its own clock
// rather than at window boundaries.
var allowScript = redis.NewScript(`
local windowKey = KEYS[1]
local burstKey = KEYS[2]
local limit = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local windowTTL = tonumber(ARGV[3])
local burstTTL = tonumber(ARGV[4])
local retryAfter = tonumber(ARGV[5])

local used = tonumber(redis.call("GET", burstKey) or "0")
if used < burst then
  if redis.call("INCR", burstKey) == 1 then
    redis.call("EXPIRE", burstKey, burstTTL)
  end
  return {1, burst - used - 1 + limit, 0}
end

local count = tonumber(redis.call("GET", windowKey) or "0")
if count < limit then
  redis.call("INCR", windowKey)
  redis.call("EXPIRE", windowKey, windowTTL)
  return {1, limit - count - 1, 0}
end

return {0, 0, retryAfter}
`)

// Result reports one admission decision.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a fixed-window-per-minute limiter with a small burst
// allowance consumed before the window. Windows align to wall-clock
// minute boundaries, so a caller can observe up to 2x the limit across
// one boundary; acceptable for fairness, not for hard quota enforcement.
// The burst allowance regenerates one minute after its first use,
// independent of the window boundary.
type Limiter struct {
	client *redis.Client
	prefix string
	limit  int
	burst  int
}

func NewLimiter(client *redis.Client, perMinute, burst int) *Limiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst < 0 {
		burst = 0
	}
	return &Limiter{
		client: client,
		prefix: "ratelimit",
		limit:  perMinute,
		burst:  burst,
	}
}

// Allow consumes one unit for key. On Redis failure the request is
// admitted: the limiter protects capacity, it must not become an outage
// amplifier.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now()
	window := now.Unix() / 60
	retryAfter := 60 - int(now.Unix()%60)

	windowKey := fmt.Sprintf("%s:win:%s:%d", l.prefix, key, window)
	burstKey := fmt.Sprintf("%s:burst:%s", l.prefix, key)

	vals, err := allowScript.Run(ctx, l.client,
		[]string{windowKey, burstKey},
		l.limit, l.burst, 120, 60, retryAfter).Int64Slice()
	if err != nil {
		return Result{Allowed: true, Remaining: l.limit}, fmt.Errorf("rate limit check: %w", err)
	}
	if len(vals) != 3 {
		return Result{Allowed: true, Remaining: l.limit}, fmt.Errorf("rate limit script returned %d values", len(vals))
	}

	return Result{
		Allowed:    vals[0] == 1,
		Remaining:  int(vals[1]),
		RetryAfter: time.Duration(vals[2]) * time.Second,
	}, nil
}
