package auth

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/lukezje16/pdfmerger/internal/i18n"
	"github.com/lukezje16/pdfmerger/internal/logging"
)

// limiterExpiry is how long an idle client's bucket is kept.
const limiterExpiry = 5 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. Buckets idle for longer
// than limiterExpiry are dropped.
type RateLimiter struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	lastCleanup time.Time
	limit       rate.Limit
	burst       int
	clock       clockwork.Clock
}

// NewRateLimiter allows perMinute requests per client with the given burst.
// perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	return newRateLimiter(perMinute, burst, clockwork.NewRealClock())
}

func newRateLimiter(perMinute, burst int, clock clockwork.Clock) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &RateLimiter{
		visitors:    make(map[string]*visitor),
		lastCleanup: clock.Now(),
		limit:       limit,
		burst:       burst,
		clock:       clock,
	}
}

func (r *RateLimiter) Allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if now.Sub(r.lastCleanup) > limiterExpiry {
		r.cleanup(now)
	}
	v, ok := r.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (r *RateLimiter) cleanup(now time.Time) {
	for ip, v := range r.visitors {
		if now.Sub(v.lastSeen) > limiterExpiry {
			delete(r.visitors, ip)
		}
	}
	r.lastCleanup = now
}

func (r *RateLimiter) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visitors)
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !r.Allow(ip) {
			logging.Warnf("[RATELIMIT] rejecting %s %s from %s", c.Request.Method, c.FullPath(), ip)
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": i18n.TFromContext(c.Request.Context(), "backend.errors.too_many_requests"),
			})
			return
		}
		c.Next()
	}
}
