package redisrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kirinyoku/classbook/internal/clock"
	redisx "github.com/kirinyoku/classbook/internal/redis"
)

// Sliding window on a sorted set.
// KEYS[1] = key
// ARGV[1] = now_ms
// ARGV[2] = window_ms
// ARGV[3] = limit
// ARGV[4] = member (unique)
const luaSlidingWindow = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
redis.call('ZADD', key, 'NX', now, member)
local count = redis.call('ZCARD', key)
redis.call('PEXPIRE', key, window)

if count > limit then
  local earliest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local earliestScore = tonumber(earliest[2]) or (now - window)
  local retry_ms = window - (now - earliestScore)
  if retry_ms < 0 then retry_ms = 0 end
  return {0, count, retry_ms}
end
return {1, count, 0}
`

type SlidingWindowLimiter struct {
	rdb    *redis.Client
	scope  string
	limit  int
	window time.Duration
	clock  clock.Clock
	script *redis.Script
}

func NewSlidingWindowLimiter(
	rdb *redis.Client,
	scope string,
	limit int,
	window time.Duration,
	clk clock.Clock,
) *SlidingWindowLimiter {
	if clk == nil {
		clk = clock.System{}
	}

	return &SlidingWindowLimiter{
		rdb:    rdb,
		scope:  scope,
		limit:  limit,
		window: window,
		clock:  clk,
		script: redis.NewScript(luaSlidingWindow),
	}
}

// Allow records one hit for id and reports whether it is within the limit.
// Rejected hits still count, so a client hammering the endpoint stays blocked.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, id string) (allowed bool, current int64, retryAfter time.Duration, err error) {
	res, err := l.script.Run(
		ctx,
		l.rdb,
		[]string{redisx.KeyRateLimit(l.scope, id)},
		l.clock.Now().UnixMilli(), l.window.Milliseconds(), l.limit, uuid.NewString(),
	).Result()
	if err != nil {
		return false, 0, 0, err
	}

	arr, ok := res.([]any)
	if !ok || len(arr) != 3 {
		return false, 0, 0, fmt.Errorf("bad script result: %v", res)
	}

	allowed = toInt(arr[0]) == 1
	current = toInt(arr[1])
	retryAfter = time.Duration(toInt(arr[2])) * time.Millisecond

	return allowed, current, retryAfter, nil
}

func toInt(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
