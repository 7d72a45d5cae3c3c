package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyRateLimiter keeps one token bucket per API key
type KeyRateLimiter struct {
	mu     sync.Mutex
	limits map[string]*entry
	rate   rate.Limit
	burst  int
	ttl    time.Duration
	stopCh chan struct{}
	once   sync.Once
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyRateLimiter allows perSecond requests per key with the given burst.
// Buckets idle for longer than ttl are dropped.
func NewKeyRateLimiter(perSecond float64, burst int, ttl time.Duration) *KeyRateLimiter {
	limiter := &KeyRateLimiter{
		limits: make(map[string]*entry),
		rate:   rate.Limit(perSecond),
		burst:  burst,
		ttl:    ttl,
		stopCh: make(chan struct{}),
	}

	if ttl > 0 {
		go limiter.periodicCleanup()
	}

	return limiter
}

// Allow consumes a token for key. When none is available it reports how long
// the caller should wait before the next token.
func (rl *KeyRateLimiter) Allow(key string) (bool, time.Duration) {
	now := time.Now()

	rl.mu.Lock()
	e, exists := rl.limits[key]
	if !exists {
		e = &entry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limits[key] = e
	}
	e.lastSeen = now
	rl.mu.Unlock()

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}

	delay := r.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}

	// Don't hold the token; the client is told to come back later
	r.CancelAt(now)
	return false, delay
}

// Stop ends the cleanup routine
func (rl *KeyRateLimiter) Stop() {
	rl.once.Do(func() {
		close(rl.stopCh)
	})
}

func (rl *KeyRateLimiter) periodicCleanup() {
	ticker := time.NewTicker(rl.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *KeyRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, e := range rl.limits {
		if now.Sub(e.lastSeen) > rl.ttl {
			delete(rl.limits, key)
		}
	}
}

// Size returns the number of tracked keys
func (rl *KeyRateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limits)
}
