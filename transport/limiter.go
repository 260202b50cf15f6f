package transport

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/opd-ai/paytrust/crypto"
)

// Default per-IP handshake limits.
const (
	DefaultHandshakesPerMinute = 10
	DefaultBurst               = 10
	DefaultMaxTrackedIPs       = 10000
)

type ipLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits handshake attempts per source IP with a token bucket
// each. At most maxTracked IPs are remembered; when full, idle buckets
// are dropped first and then the least recently seen one.
type RateLimiter struct {
	mu         sync.Mutex
	ips        map[string]*ipLimiter
	limit      rate.Limit
	burst      int
	maxTracked int
	clock      crypto.TimeProvider
}

// NewRateLimiter allows perMinute handshakes per IP with the given burst.
func NewRateLimiter(perMinute, burst, maxTracked int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultHandshakesPerMinute
	}
	if burst <= 0 {
		burst = perMinute
	}
	if maxTracked <= 0 {
		maxTracked = DefaultMaxTrackedIPs
	}
	return &RateLimiter{
		ips:        make(map[string]*ipLimiter),
		limit:      rate.Limit(float64(perMinute) / 60),
		burst:      burst,
		maxTracked: maxTracked,
		clock:      crypto.DefaultTimeProvider{},
	}
}

// SetClock replaces the clock, for tests.
func (r *RateLimiter) SetClock(tp crypto.TimeProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = tp
}

// Allow records an attempt from ip and reports whether it may proceed.
func (r *RateLimiter) Allow(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	l, ok := r.ips[ip]
	if !ok {
		if len(r.ips) >= r.maxTracked {
			r.evictLocked(now)
		}
		l = &ipLimiter{lim: rate.NewLimiter(r.limit, r.burst)}
		r.ips[ip] = l
	}
	l.lastSeen = now
	return l.lim.AllowN(now, 1)
}

// Tracked returns the number of IPs currently remembered.
func (r *RateLimiter) Tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ips)
}

// evictLocked drops buckets that have refilled completely, or the oldest
// one if none has.
func (r *RateLimiter) evictLocked(now time.Time) {
	refill := time.Duration(float64(r.burst) / float64(r.limit) * float64(time.Second))
	var oldest string
	var oldestSeen time.Time
	for ip, l := range r.ips {
		if now.Sub(l.lastSeen) >= refill {
			delete(r.ips, ip)
			continue
		}
		if oldest == "" || l.lastSeen.Before(oldestSeen) {
			oldest, oldestSeen = ip, l.lastSeen
		}
	}
	if len(r.ips) >= r.maxTracked && oldest != "" {
		delete(r.ips, oldest)
	}
}
