package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mundorum/harena/internal/auth"
)

// RateLimiter is a fixed-window counter kept in Redis, so every API
// instance shares one budget per client.
type RateLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	prefix string
	onDeny func()
	logger *slog.Logger
}

// NewRateLimiter allows limit requests per window per client.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		redis:  client,
		limit:  limit,
		window: window,
		prefix: "harena:ratelimit",
		onDeny: func() {},
		logger: logger,
	}
}

// OnDeny registers a callback run for every rejected request.
func (rl *RateLimiter) OnDeny(fn func()) *RateLimiter {
	rl.onDeny = fn
	return rl
}

// Allow counts one request for key and reports whether it is within the
// budget. INCR and TTL go out in one pipeline; the expiry is set only
// when the key has none, so the window does not slide under load.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := rl.prefix + ":" + key

	pipe := rl.redis.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("ratelimit: %w", err)
	}
	if ttl.Val() < 0 {
		if err := rl.redis.Expire(ctx, redisKey, rl.window).Err(); err != nil {
			return true, fmt.Errorf("ratelimit: %w", err)
		}
	}
	return incr.Val() <= int64(rl.limit), nil
}

// Handler enforces the limit. Signed-in users are limited per user id,
// everyone else per client address. Redis failures let the request
// through.
//
// It must run after auth.OptionalAuth and chi's RealIP.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + clientIP(r)
		if userID, ok := auth.UserIDFromContext(r.Context()); ok {
			key = "user:" + userID
		}

		allowed, err := rl.Allow(r.Context(), key)
		if err != nil {
			rl.logger.Warn("rate limiter unavailable, allowing request", slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		if !allowed {
			rl.onDeny()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate_limited","message":"too many requests"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
