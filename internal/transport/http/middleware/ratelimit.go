package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	resp "go-gin-auth-session/internal/transport/http/response"
)

// RateLimit 全局令牌桶
func RateLimit(rps rate.Limit, burst int) gin.HandlerFunc {
	lim := rate.NewLimiter(rps, burst)
	return func(c *gin.Context) {
		if lim.Allow() {
			c.Next()
			return
		}
		resp.Fail(c, resp.CodeTooManyRequests, "too many requests")
	}
}

const (
	ipIdleTTL   = 3 * time.Minute
	ipSweepSize = 10000
)

type ipBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// IPLimiter 每 IP 一个令牌桶；表过大时清掉空闲条目
type IPLimiter struct {
	mu      sync.Mutex
	buckets map[string]*ipBucket
	rps     rate.Limit
	burst   int
	now     func() time.Time
}

func NewIPLimiter(rps rate.Limit, burst int) *IPLimiter {
	return &IPLimiter{buckets: make(map[string]*ipBucket), rps: rps, burst: burst, now: time.Now}
}

func (l *IPLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.buckets[ip]
	if !ok {
		if len(l.buckets) >= ipSweepSize {
			l.sweep(now)
		}
		b = &ipBucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[ip] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

func (l *IPLimiter) sweep(now time.Time) {
	for ip, b := range l.buckets {
		if now.Sub(b.seen) > ipIdleTTL {
			delete(l.buckets, ip)
		}
	}
}

func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// RateLimitPerIP 每 IP 限速
func RateLimitPerIP(l *IPLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		resp.Fail(c, resp.CodeTooManyRequests, "too many requests")
	}
}
