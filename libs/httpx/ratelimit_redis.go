package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter is the slice of the go-redis client the shared limiter uses.
type RedisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	ExpireNX(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisRateLimiter counts requests per key in clock-aligned windows shared by
// every replica. Each window gets its own key (<prefix>:<key>:<window index>),
// so a counter whose TTL was never set cannot outlive its window's decisions.
type RedisRateLimiter struct {
	rdb    RedisCounter
	limit  int
	window time.Duration
	prefix string
	key    KeyFunc
	now    func() time.Time
}

func NewRedisRateLimiter(rdb RedisCounter, limit int, window time.Duration, prefix string, key KeyFunc) *RedisRateLimiter {
	if window < time.Second {
		window = time.Minute
	}
	if prefix == "" {
		prefix = "rl"
	}
	if key == nil {
		key = ClientIP
	}
	return &RedisRateLimiter{rdb: rdb, limit: max(limit, 1), window: window, prefix: prefix, key: key, now: time.Now}
}

// Middleware rejects requests over the limit with 429 and Retry-After. When
// Redis fails the request is let through if failOpen, else answered with 503.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, reset, err := rl.hit(r.Context(), rl.key(r))
			if err != nil {
				logger.Warn("redis rate limiter error", "err", err)
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, http.StatusServiceUnavailable, "unavailable", "rate limiter unavailable")
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(max(int64(rl.limit)-count, 0), 10))
			if count > int64(rl.limit) {
				writeRateLimited(w, reset)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// hit counts one request and returns the window's count and the time left in it.
func (rl *RedisRateLimiter) hit(ctx context.Context, key string) (int64, time.Duration, error) {
	now := rl.now()
	start := now.Truncate(rl.window)
	reset := start.Add(rl.window).Sub(now)
	bucket := rl.prefix + ":" + key + ":" + strconv.FormatInt(start.Unix()/int64(rl.window/time.Second), 10)

	count, err := rl.rdb.Incr(ctx, bucket).Result()
	if err != nil {
		return 0, 0, err
	}
	// NX keeps the first TTL; a failure here is retried by the next request.
	if err := rl.rdb.ExpireNX(ctx, bucket, reset+time.Second).Err(); err != nil {
		return 0, 0, err
	}
	return count, reset, nil
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int64((retryAfter + time.Second - 1) / time.Second)
	w.Header().Set("Retry-After", strconv.FormatInt(max(secs, 1), 10))
	WriteError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
}
