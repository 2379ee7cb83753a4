package middleware

import (
	"fmt"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jroosing/hydrarpz/internal/api/models"
)

// Rate limiting is applied at three levels:
//   - Global: all API clients together
//   - Prefix: per client network (/24 for IPv4, /64 for IPv6)
//   - IP: per client address
//
// A request must pass all three.

// RateLimitSettings configures a RateLimiter. A level with a rate or burst
// of zero is disabled.
type RateLimitSettings struct {
	CleanupSeconds float64
	MaxEntries     int
	GlobalQPS      float64
	GlobalBurst    int
	PrefixQPS      float64
	PrefixBurst    int
	IPQPS          float64
	IPBurst        int
}

// RateLimiter combines global, prefix, and per-IP token buckets.
type RateLimiter struct {
	global *keyedLimiter
	prefix *keyedLimiter
	ip     *keyedLimiter
}

// NewRateLimiter creates a RateLimiter from s.
func NewRateLimiter(s RateLimitSettings) *RateLimiter {
	cleanup := time.Duration(max(0, s.CleanupSeconds) * float64(time.Second))
	if cleanup <= 0 {
		cleanup = 60 * time.Second
	}
	return &RateLimiter{
		global: newKeyedLimiter(s.GlobalQPS, s.GlobalBurst, cleanup, 1),
		prefix: newKeyedLimiter(s.PrefixQPS, s.PrefixBurst, cleanup, s.MaxEntries),
		ip:     newKeyedLimiter(s.IPQPS, s.IPBurst, cleanup, s.MaxEntries),
	}
}

// AllowAddr reports whether a request from ip may proceed and consumes a
// token at every level when it does.
func (r *RateLimiter) AllowAddr(ip netip.Addr) bool {
	if r == nil {
		return true
	}
	ip = ip.Unmap()
	if !r.global.allow("*") {
		return false
	}
	if !r.prefix.allow(prefixKey(ip)) {
		return false
	}
	return r.ip.allow(ip.String())
}

// String summarizes the configured limits for the startup log.
func (s RateLimitSettings) String() string {
	level := func(name string, qps float64, burst int) string {
		if qps <= 0 || burst <= 0 {
			return name + "=disabled"
		}
		return fmt.Sprintf("%s=%gqps/%d", name, qps, burst)
	}
	return fmt.Sprintf("%s %s %s max_entries=%d",
		level("global", s.GlobalQPS, s.GlobalBurst),
		level("prefix", s.PrefixQPS, s.PrefixBurst),
		level("ip", s.IPQPS, s.IPBurst),
		s.MaxEntries)
}

// RateLimit rejects requests over the limit with 429 Too Many Requests.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		addr, err := netip.ParseAddr(c.ClientIP())
		if err == nil && !rl.AllowAddr(addr) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func prefixKey(ip netip.Addr) string {
	bits := 64
	if ip.Is4() {
		bits = 24
	}
	p, _ := ip.Prefix(bits)
	return p.String()
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// keyedLimiter holds one token bucket per key. Keys idle for longer than
// the cleanup interval are dropped; new keys are refused while the table
// is full.
type keyedLimiter struct {
	limit      rate.Limit
	burst      int
	cleanup    time.Duration
	maxEntries int

	mu          sync.Mutex
	lastCleanup time.Time
	buckets     map[string]*bucket
}

func newKeyedLimiter(qps float64, burst int, cleanup time.Duration, maxEntries int) *keyedLimiter {
	if qps <= 0 || burst <= 0 {
		return nil
	}
	return &keyedLimiter{
		limit:       rate.Limit(qps),
		burst:       burst,
		cleanup:     cleanup,
		maxEntries:  max(maxEntries, 1),
		lastCleanup: time.Now(),
		buckets:     make(map[string]*bucket),
	}
}

func (l *keyedLimiter) allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastCleanup) > l.cleanup {
		l.cleanupLocked(now)
	}
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxEntries {
			l.cleanupLocked(now)
			if len(l.buckets) >= l.maxEntries {
				return false
			}
		}
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *keyedLimiter) cleanupLocked(now time.Time) {
	staleBefore := now.Add(-l.cleanup)
	for k, b := range l.buckets {
		if !b.lastSeen.After(staleBefore) {
			delete(l.buckets, k)
		}
	}
	l.lastCleanup = now
}
