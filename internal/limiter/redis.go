package limiter

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the key's sorted set to the window, then either records
// the attempt or returns the milliseconds until the oldest entry expires.
const slidingWindow = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= max then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  return {0, tonumber(oldest[2]) + window - now}
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, 0}
`

type evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Redis is a sliding-window limiter shared by every server instance using the same Redis.
type Redis struct {
	client evaler
	prefix string
	window time.Duration
	max    int
	now    func() time.Time
	seq    atomic.Uint64
}

// NewRedis constructs a Redis-backed limiter. *redis.Client satisfies client.
func NewRedis(client evaler, window time.Duration, max int) *Redis {
	return &Redis{client: client, prefix: "hz:limiter:", window: window, max: max, now: time.Now}
}

// Allow runs the sliding-window script atomically for key.
func (l *Redis) Allow(ctx context.Context, key []byte) (bool, time.Duration, error) {
	now := l.now()
	member := fmt.Sprintf("%d-%d", now.UnixNano(), l.seq.Add(1))
	res, err := l.client.Eval(ctx, slidingWindow,
		[]string{l.prefix + hex.EncodeToString(key)},
		now.UnixMilli(), l.window.Milliseconds(), l.max, member,
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("limiter script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("limiter script: unexpected reply %v", res)
	}
	if res[0] == 1 {
		return true, 0, nil
	}
	return false, time.Duration(res[1]) * time.Millisecond, nil
}
