package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// principalLimiter hands out one token bucket per caller principal,
// following the common golang.org/x/time/rate multi-limiter idiom: a
// mutex-guarded map, lazily populated, never pruned within a single
// process lifetime, so it holds one limiter for every distinct principal
// seen since startup.
type principalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newPrincipalLimiter(r rate.Limit, burst int) *principalLimiter {
	if r <= 0 {
		r = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &principalLimiter{limiters: make(map[string]*rate.Limiter), r: r, burst: burst}
}

func (p *principalLimiter) Allow(principal string) bool {
	p.mu.Lock()
	l, ok := p.limiters[principal]
	if !ok {
		l = rate.NewLimiter(p.r, p.burst)
		p.limiters[principal] = l
	}
	p.mu.Unlock()
	return l.Allow()
}
