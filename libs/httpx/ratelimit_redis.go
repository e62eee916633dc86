package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter counts requests per client in Redis so every replica shares
// one allowance. Counters live in keys named after the current window and
// expire with it.
type RedisRateLimiter struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
	prefix string
	key    KeyFunc
	now    func() time.Time
}

func NewRedisRateLimiter(rdb *redis.Client, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisRateLimiter{rdb: rdb, limit: int64(limit), window: window, prefix: prefix, key: RemoteIP, now: time.Now}
}

// WithKey sets how requests map to counters. The default is RemoteIP.
func (rl *RedisRateLimiter) WithKey(fn KeyFunc) *RedisRateLimiter {
	if fn != nil {
		rl.key = fn
	}
	return rl
}

// Ping reports whether the backing Redis answers.
func (rl *RedisRateLimiter) Ping(ctx context.Context) error {
	return rl.rdb.Ping(ctx).Err()
}

// Allow records one hit for key and reports whether it is within the limit,
// along with the time left in the current window.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := rl.now()
	bucket := now.UnixNano() / int64(rl.window)
	redisKey := rl.prefix + ":" + key + ":" + strconv.FormatInt(bucket, 10)
	reset := time.Unix(0, (bucket+1)*int64(rl.window)).Sub(now)

	var hits *redis.IntCmd
	_, err := rl.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hits = pipe.Incr(ctx, redisKey)
		pipe.PExpire(ctx, redisKey, rl.window)
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return hits.Val() <= rl.limit, reset, nil
}

// Middleware rejects clients over the limit with 429. When Redis fails the
// request is let through if failOpen is set, otherwise it gets 503.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, reset, err := rl.Allow(r.Context(), rl.key(r))
			switch {
			case err != nil:
				if logger != nil {
					logger.Warn("redis rate limiter error", "err", err)
				}
				if !failOpen {
					WriteError(w, http.StatusServiceUnavailable, "rate limiter unavailable")
					return
				}
			case !ok:
				w.Header().Set("Retry-After", strconv.Itoa(int(reset.Seconds())+1))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
