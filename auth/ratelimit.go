package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedPrincipals bounds the limiter map; idle entries are pruned past it
const maxTrackedPrincipals = 10000

const limiterIdleTTL = 10 * time.Minute

type principalLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per principal
type RateLimiter struct {
	mu        sync.Mutex
	perMinute int
	burst     int
	limiters  map[string]*principalLimiter
	now       func() time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests with the given
// burst per principal. perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	return &RateLimiter{
		perMinute: perMinute,
		burst:     normalizeBurst(burst),
		limiters:  make(map[string]*principalLimiter),
		now:       time.Now,
	}
}

func normalizeBurst(burst int) int {
	if burst < 1 {
		return 1
	}
	return burst
}

func (l *RateLimiter) limit() rate.Limit {
	return rate.Limit(float64(l.perMinute) / 60.0)
}

// Allow consumes one token for the principal
func (l *RateLimiter) Allow(principalID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.perMinute <= 0 {
		return true
	}

	now := l.now()
	entry, ok := l.limiters[principalID]
	if !ok {
		if len(l.limiters) >= maxTrackedPrincipals {
			l.pruneLocked(now)
		}
		entry = &principalLimiter{limiter: rate.NewLimiter(l.limit(), l.burst)}
		l.limiters[principalID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (l *RateLimiter) pruneLocked(now time.Time) {
	for id, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(l.limiters, id)
		}
	}
}

// Update changes the limits for existing and future principals
func (l *RateLimiter) Update(perMinute, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.perMinute = perMinute
	l.burst = normalizeBurst(burst)
	now := l.now()
	for _, entry := range l.limiters {
		entry.limiter.SetLimitAt(now, l.limit())
		entry.limiter.SetBurstAt(now, l.burst)
	}
}

// Limits returns the current settings
func (l *RateLimiter) Limits() (perMinute, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perMinute, l.burst
}
