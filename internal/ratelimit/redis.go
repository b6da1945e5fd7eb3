package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisWindow is a sliding window shared across gateway instances, kept in a
// Redis sorted set per channel (score = attempt time). Eviction, count and
// insert run in one Lua script so the check-and-increment stays atomic.
type RedisWindow struct {
	client *redis.Client
	window time.Duration
	limits map[string]int
	log    zerolog.Logger
	now    func() time.Time
}

func NewRedisWindow(client *redis.Client, window time.Duration, limits map[string]int, log zerolog.Logger) *RedisWindow {
	if window <= 0 {
		window = time.Hour
	}
	cp := make(map[string]int, len(limits))
	for k, v := range limits {
		cp[k] = v
	}
	return &RedisWindow{client: client, window: window, limits: cp, log: log, now: time.Now}
}

// SetNow overrides the clock. Test hook.
func (w *RedisWindow) SetNow(now func() time.Time) { w.now = now }

func (w *RedisWindow) TryReserve(ctx context.Context, channel string) (bool, error) {
	limit, known := w.limits[channel]
	if !known {
		w.log.Warn().Str("channel", channel).Msg("no rate limit configured; treating channel as unlimited")
		return true, nil
	}

	nowMs := w.now().UnixMilli()
	key := "rlwindow:" + channel
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())

	res, err := windowScript.Run(ctx, w.client, []string{key},
		limit, nowMs, w.window.Milliseconds(), member).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	n, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("rate limit script: unexpected reply %T", res)
	}
	return n == 1, nil
}

var windowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local window = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  return 0
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return 1
`)
