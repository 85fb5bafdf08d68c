// Package ratelimit throttles hold attempts with a Redis token bucket.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "bookiq:ratelimit:"

var bucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

if interval_ms > 0 and refill_tokens > 0 then
	local elapsed = math.max(0, now_ms - last_refill)
	local intervals = math.floor(elapsed / interval_ms)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + (intervals * refill_tokens))
		last_refill = last_refill + (intervals * interval_ms)
	end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)

return { allowed, tokens, retry_after_ms }
`)

// Config sizes the bucket.
type Config struct {
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
}

// Decision is the result of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter is a per-key token bucket stored in Redis.
type Limiter struct {
	rdb    redis.Scripter
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// New creates a Limiter.
func New(rdb redis.Scripter, cfg Config, opts ...Option) *Limiter {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1
	}
	l := &Limiter{rdb: rdb, cfg: cfg, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow takes one token from key's bucket.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	ttl := l.ttl()
	res, err := bucket.Run(ctx, l.rdb, []string{keyPrefix + key},
		l.now().UnixMilli(),
		l.cfg.Capacity,
		l.cfg.RefillTokens,
		l.cfg.RefillInterval.Milliseconds(),
		int64(ttl/time.Second),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("running token bucket for %s: %w", key, err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("token bucket for %s: unexpected result %v", key, res)
	}
	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  res[1],
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// ttl keeps an idle bucket around long enough to refill completely.
func (l *Limiter) ttl() time.Duration {
	ttl := time.Hour
	if l.cfg.RefillTokens > 0 && l.cfg.RefillInterval > 0 {
		full := time.Duration(l.cfg.Capacity/l.cfg.RefillTokens+1) * l.cfg.RefillInterval
		if full > ttl {
			ttl = full
		}
	}
	return ttl
}

// KeyFunc selects the bucket for a request. Requests for which it reports
// false are not limited.
type KeyFunc func(r *http.Request) (string, bool)

// Middleware rejects requests with 429 once their bucket is empty. Redis
// failures let the request through.
func (l *Limiter) Middleware(key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k, ok := key(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			d, err := l.Allow(r.Context(), k)
			if err != nil {
				l.logger.WarnContext(r.Context(), "rate limiter unavailable",
					slog.String("key", k),
					slog.Any("error", err),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Capacity))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			if !d.Allowed {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = fmt.Fprintf(w, `{"title":"Too Many Requests","status":429,"detail":"hold rate limit exceeded, retry in %ds"}`, secs)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Passthrough is the middleware used when rate limiting is disabled.
func Passthrough(next http.Handler) http.Handler { return next }
