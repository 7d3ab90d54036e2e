package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window limiter shared by every replica that
// points at the same Redis.
type RedisRateLimiter struct {
	rdb    redis.Scripter
	limit  int64
	window time.Duration
	prefix string
	key    KeyFunc
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

func NewRedisRateLimiter(rdb redis.Scripter, perWindow int, window time.Duration, prefix string) *RedisRateLimiter {
	if perWindow <= 0 {
		perWindow = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "citas:rl"
	}
	return &RedisRateLimiter{rdb: rdb, limit: int64(perWindow), window: window, prefix: prefix, key: ClientKey}
}

// WithKeyFunc replaces how callers are told apart. Nil keeps ClientKey.
func (rl *RedisRateLimiter) WithKeyFunc(fn KeyFunc) *RedisRateLimiter {
	if fn != nil {
		rl.key = fn
	}
	return rl
}

// Middleware rejects callers over the limit. When Redis is unreachable the
// request is let through if failOpen, otherwise answered with 503.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, err := rl.incr(r.Context(), rl.prefix+":"+rl.key(r))
			switch {
			case err != nil:
				logger.Warn("redis rate limiter error", "err", err, "request_id", RequestIDFromContext(r.Context()))
				if !failOpen {
					WriteMessage(w, http.StatusServiceUnavailable, "rate limiter unavailable")
					return
				}
			case count > rl.limit:
				WriteMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RedisRateLimiter) incr(ctx context.Context, key string) (int64, error) {
	res, err := fixedWindowScript.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("rate limit script: %w", err)
	}
	return res, nil
}

type pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisReadyCheck pings rdb for /readyz.
func RedisReadyCheck(rdb pinger) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
