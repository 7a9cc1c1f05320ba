package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimiter implements fixed-window rate limiting per authenticated user,
// backed by Redis counters with TTL.
type RateLimiter struct {
	client *redis.Client
	logger zerolog.Logger
	limits map[string]RateLimit
}

// NewRateLimiter creates a rate limiter with per-endpoint limits.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		limits: map[string]RateLimit{
			"POST /channels":         {10, time.Hour},
			"POST /dm/":              {60, time.Minute},
			"POST /assistant/stream": {20, time.Minute},
			"POST /assistant/draft":  {30, time.Minute},
		},
	}
}

func (rl *RateLimiter) matchLimit(r *http.Request) (RateLimit, string, bool) {
	for pattern, limit := range rl.limits {
		var method, prefix string
		fmt.Sscanf(pattern, "%s %s", &method, &prefix)
		if r.Method == method && (r.URL.Path == prefix ||
			(prefix[len(prefix)-1] == '/' && len(r.URL.Path) > len(prefix) && r.URL.Path[:len(prefix)] == prefix)) {
			return limit, pattern, true
		}
	}
	return RateLimit{}, "", false
}

// Middleware enforces the configured limits. Redis failures fail open: a
// broken limiter must not take messaging down with it.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, pattern, ok := rl.matchLimit(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		caller := r.Header.Get("X-User-ID")
		if caller == "" {
			caller = r.RemoteAddr
		}
		key := fmt.Sprintf("ratelimit:%s:%s", pattern, caller)

		pipe := rl.client.Pipeline()
		incr := pipe.Incr(r.Context(), key)
		pipe.Expire(r.Context(), key, limit.Window)
		if _, err := pipe.Exec(r.Context()); err != nil {
			rl.logger.Warn().Err(err).Msg("rate limiter unavailable, failing open")
			next.ServeHTTP(w, r)
			return
		}

		if int(incr.Val()) > limit.Requests {
			w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
