package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/DukeRupert/magicsocial/internal/auth"
	"github.com/DukeRupert/magicsocial/internal/domain"
	"github.com/DukeRupert/magicsocial/internal/handler"
)

// =============================================================================
// Rate Limiter
// =============================================================================

// RateLimiter counts requests per key in fixed windows. Expired windows are
// evicted by the underlying cache.
type RateLimiter struct {
	maxRequests int
	window      time.Duration

	mu      sync.Mutex
	entries *cache.Cache
	now     func() time.Time
}

type rateLimitEntry struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing maxRequests per window per key.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		entries:     cache.New(window, 2*window),
		now:         time.Now,
	}
}

// Allow reports whether a request for key fits in the current window and
// counts it when it does.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if v, ok := rl.entries.Get(key); ok {
		entry := v.(*rateLimitEntry)
		if now.Sub(entry.windowStart) < rl.window {
			if entry.count >= rl.maxRequests {
				return false
			}
			entry.count++
			return true
		}
	}

	rl.entries.Set(key, &rateLimitEntry{count: 1, windowStart: now}, rl.window)
	return true
}

// TimeUntilReset returns how long until the window for key ends.
func (rl *RateLimiter) TimeUntilReset(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.entries.Get(key)
	if !ok {
		return 0
	}
	remaining := rl.window - rl.now().Sub(v.(*rateLimitEntry).windowStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// =============================================================================
// Rate Limit Middleware
// =============================================================================

// RateLimitMiddleware wraps a rate limiter for use as HTTP middleware.
type RateLimitMiddleware struct {
	limiter *RateLimiter
	proxies *TrustedProxies
	logger  *slog.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware. Anonymous
// clients are keyed by proxies.ClientIP.
func NewRateLimitMiddleware(limiter *RateLimiter, proxies *TrustedProxies, logger *slog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		proxies: proxies,
		logger:  logger,
	}
}

// Limit returns middleware that rate limits API requests. Signed-in users are
// keyed by id, everyone else by client IP, so it belongs after WithUser.
// Stripe webhooks are exempt.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/api/billing/webhook" {
			next.ServeHTTP(w, r)
			return
		}

		key := m.clientKey(r)

		if !m.limiter.Allow(key) {
			m.logger.Warn("rate limit exceeded",
				"key", key,
				"path", r.URL.Path,
				"method", r.Method,
			)

			retryAfter := int(m.limiter.TimeUntilReset(key).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			handler.ErrorResponse(w, r, m.logger, domain.RateLimit("middleware.rate_limit"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) clientKey(r *http.Request) string {
	if user := auth.GetUser(r.Context()); user != nil {
		return "user:" + user.ID.String()
	}
	return "ip:" + m.proxies.ClientIP(r)
}
