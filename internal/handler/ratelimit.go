package handler

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"tradeflow/internal/audit"
)

// RateLimiter throttles API writes per caller (user id, or client IP before
// login).
type RateLimiter struct {
	Limit rate.Limit
	Burst int
	// Idle entries are dropped after this long.
	TTL time.Duration

	mu      sync.Mutex
	clients map[string]*clientLimiter
	swept   time.Time
}

type clientLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{Limit: rate.Limit(perSecond), Burst: burst, TTL: 10 * time.Minute}
}

// Allow reports whether key may perform one more write now.
func (l *RateLimiter) Allow(key string, now time.Time) bool {
	if l == nil || l.Limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.clients == nil {
		l.clients = map[string]*clientLimiter{}
	}
	if now.Sub(l.swept) > l.TTL {
		for k, cl := range l.clients {
			if now.Sub(cl.seen) > l.TTL {
				delete(l.clients, k)
			}
		}
		l.swept = now
	}
	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{lim: rate.NewLimiter(l.Limit, l.Burst)}
		l.clients[key] = cl
	}
	cl.seen = now
	return cl.lim.AllowN(now, 1)
}

// Middleware applies the limiter to non-read /api/ requests. It must run after
// RequireSession so logged in callers are keyed by user id.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if !strings.HasPrefix(c.Request.URL.Path, "/api/") ||
			method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			c.Next()
			return
		}
		key := c.GetString(audit.UserIDKey)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if !l.Allow(key, time.Now()) {
			c.Abort()
			Error(c, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), nil)
			return
		}
		c.Next()
	}
}
