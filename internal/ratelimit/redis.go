package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWindow increments the counter and starts its expiry on the first hit
// of a window. Returns the count after the increment.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisLimiter is a fixed-window limiter whose counters live in Redis.
// The window opens on the first INCR and closes when the key expires.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
	window time.Duration
	max    int64
}

// NewRedisLimiter builds a limiter over client. Keys are stored as
// "rl:" + key.
func NewRedisLimiter(client redis.Scripter, window time.Duration, max int) *RedisLimiter {
	if max < 1 {
		max = 1
	}
	return &RedisLimiter{
		client: client,
		prefix: "rl:",
		window: window,
		max:    int64(max),
	}
}

// Allow records a hit for key and reports whether it is within the ceiling.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := incrWindow.Run(ctx, r.client, []string{r.prefix + key}, r.window.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n <= r.max, nil
}
