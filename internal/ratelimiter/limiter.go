// Package ratelimiter provides per-tenant token buckets.
package ratelimiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultIdleTTL = 10 * time.Minute
	sweepEvery     = 512
)

// TenantLimiter applies a token bucket per tenant and evicts buckets that
// have been idle for longer than idleTTL. A nil *TenantLimiter allows
// everything.
type TenantLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu       sync.Mutex
	byTenant map[int]*bucket
	hits     uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New creates a tenant limiter. It returns nil when rps or burst is not
// positive, which disables limiting.
func New(rps float64, burst int, idleTTL time.Duration) *TenantLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	return &TenantLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  idleTTL,
		byTenant: make(map[int]*bucket),
	}
}

// Allow reports whether tenantID may make one more request at now
func (l *TenantLimiter) Allow(tenantID int, now time.Time) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.byTenant[tenantID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byTenant[tenantID] = b
	}
	b.lastSeen = now
	allowed := b.limiter.AllowN(now, 1)

	l.hits++
	if l.hits%sweepEvery == 0 {
		l.sweep(now)
	}

	return allowed
}

// Len returns the number of tracked tenants
func (l *TenantLimiter) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byTenant)
}

func (l *TenantLimiter) sweep(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for tenantID, b := range l.byTenant {
		if b.lastSeen.Before(cutoff) {
			delete(l.byTenant, tenantID)
		}
	}
}
