package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterIdleTTL         = 10 * time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps a token bucket per client IP
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	ticker   *time.Ticker
	nowFn    func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(requestsPerSecond),
		burst:    burst,
		ticker:   time.NewTicker(limiterCleanupInterval),
		nowFn:    time.Now,
	}

	go rl.cleanup()

	return rl
}

func (rl *RateLimiter) cleanup() {
	for range rl.ticker.C {
		rl.evictIdle()
	}
}

// evictIdle drops buckets of IPs not seen for limiterIdleTTL. Active IPs
// keep their bucket.
func (rl *RateLimiter) evictIdle() int {
	cutoff := rl.nowFn().Add(-limiterIdleTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	evicted := 0
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
			evicted++
		}
	}
	return evicted
}

// Stop stops the rate limiter cleanup
func (rl *RateLimiter) Stop() {
	rl.ticker.Stop()
}

func (rl *RateLimiter) visitorFor(ip string) *visitor {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = rl.nowFn()
	return v
}

// Allow reports whether the IP may make another request
func (rl *RateLimiter) Allow(ip string) bool {
	return rl.visitorFor(ip).limiter.Allow()
}

// IPRateLimiterMiddleware limits requests based on IP address
func (rl *RateLimiter) IPRateLimiterMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
