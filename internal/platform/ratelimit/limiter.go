// Package ratelimit implements fixed-window request counters in Redis so the
// limits hold across API replicas and restarts.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// fixedWindowScript increments the counter and starts the window on the
// first hit. It returns the count and the window's remaining milliseconds.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`)

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per scope and caller
type Limiter struct {
	client redis.Scripter
	prefix string
	logger *slog.Logger
}

func NewLimiter(client redis.Scripter, logger *slog.Logger) *Limiter {
	return &Limiter{
		client: client,
		prefix: "ratelimit",
		logger: logger,
	}
}

// Key is the Redis key of a caller's counter in scope
func (l *Limiter) Key(scope, id string) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, scope, id)
}

// Allow counts one request. Redis failures let the request through.
func (l *Limiter) Allow(ctx context.Context, scope, id string, limit int, window time.Duration) Decision {
	key := l.Key(scope, id)

	res, err := fixedWindowScript.Run(ctx, l.client, []string{key}, window.Milliseconds()).Slice()
	if err != nil {
		l.logger.Warn("Rate limiter unavailable, allowing request", "key", key, "error", err)
		return Decision{Allowed: true, Limit: limit, Remaining: limit}
	}

	count, ttl, ok := parseResult(res)
	if !ok {
		l.logger.Warn("Unexpected rate limiter reply, allowing request", "key", key, "reply", res)
		return Decision{Allowed: true, Limit: limit, Remaining: limit}
	}

	return decide(count, ttl, limit, window)
}

func parseResult(res []interface{}) (count, ttlMillis int64, ok bool) {
	if len(res) != 2 {
		return 0, 0, false
	}
	count, ok1 := res[0].(int64)
	ttlMillis, ok2 := res[1].(int64)
	return count, ttlMillis, ok1 && ok2
}

func decide(count, ttlMillis int64, limit int, window time.Duration) Decision {
	d := Decision{Limit: limit}
	if count <= int64(limit) {
		d.Allowed = true
		d.Remaining = limit - int(count)
		return d
	}

	d.RetryAfter = time.Duration(ttlMillis) * time.Millisecond
	if d.RetryAfter <= 0 {
		d.RetryAfter = window
	}
	return d
}
