package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/animus/animus/internal/platform/auth"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig bounds calls that fan out to the analysis service.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 1,
		BurstSize:         10,
	}
}

type allowance struct {
	tokens float64
	seen   time.Time
}

// limiter tracks one token allowance per caller key.
type limiter struct {
	rate  float64
	burst float64
	now   func() time.Time

	mu    sync.Mutex
	perID map[string]*allowance
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{
		rate:  cfg.RequestsPerSecond,
		burst: float64(cfg.BurstSize),
		now:   time.Now,
		perID: make(map[string]*allowance),
	}
}

// take spends one token for id. When none is left it reports how many
// whole seconds the caller should wait.
func (l *limiter) take(id string) (ok bool, wait int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	a, found := l.perID[id]
	if !found {
		a = &allowance{tokens: l.burst, seen: now}
		l.perID[id] = a
	}
	a.tokens = math.Min(l.burst, a.tokens+now.Sub(a.seen).Seconds()*l.rate)
	a.seen = now

	if a.tokens >= 1 {
		a.tokens--
		return true, 0
	}
	if l.rate <= 0 {
		return false, 1
	}
	return false, int(math.Ceil((1 - a.tokens) / l.rate))
}

func callerKey(c echo.Context) string {
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		return "user:" + uid
	}
	return "ip:" + c.RealIP()
}

// RateLimit throttles requests per authenticated user, or per client IP for
// anonymous callers.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return newLimiter(cfg).middleware
}

func (l *limiter) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	limit := strconv.FormatFloat(l.rate, 'f', -1, 64)
	return func(c echo.Context) error {
		h := c.Response().Header()
		h.Set("X-RateLimit-Limit", limit)
		ok, wait := l.take(callerKey(c))
		if !ok {
			h.Set("Retry-After", strconv.Itoa(wait))
			h.Set("X-RateLimit-Remaining", "0")
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		}
		return next(c)
	}
}
