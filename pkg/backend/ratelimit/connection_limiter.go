package ratelimit

import (
	"sync"
)

// ConcurrencyLimiter caps the number of in-flight requests per API key
type ConcurrencyLimiter struct {
	mu       sync.Mutex
	inFlight map[string]int
	maxPer   int
}

func NewConcurrencyLimiter(maxPerKey int) *ConcurrencyLimiter {
	return &ConcurrencyLimiter{
		inFlight: make(map[string]int),
		maxPer:   maxPerKey,
	}
}

// Acquire reserves a slot for key. Callers that get true must call Release.
func (cl *ConcurrencyLimiter) Acquire(key string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.maxPer > 0 && cl.inFlight[key] >= cl.maxPer {
		return false
	}

	cl.inFlight[key]++
	return true
}

func (cl *ConcurrencyLimiter) Release(key string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if count, exists := cl.inFlight[key]; exists {
		count--
		if count <= 0 {
			delete(cl.inFlight, key)
		} else {
			cl.inFlight[key] = count
		}
	}
}

// InFlight returns the number of requests currently held for key
func (cl *ConcurrencyLimiter) InFlight(key string) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.inFlight[key]
}
