package ratelimit

import (
	"sync"
	"time"
)

// AuthLockout locks out clients that keep presenting a wrong API key
type AuthLockout struct {
	failures    map[string]*failureInfo
	maxFailures int
	lockout     time.Duration
	mu          sync.Mutex
	now         func() time.Time
}

type failureInfo struct {
	count    int
	lastFail time.Time
	lockedAt time.Time
}

// NewAuthLockout locks a client for lockout after maxFailures consecutive
// authentication failures. Failures older than lockout are forgotten.
func NewAuthLockout(maxFailures int, lockout time.Duration) *AuthLockout {
	return &AuthLockout{
		failures:    make(map[string]*failureInfo),
		maxFailures: maxFailures,
		lockout:     lockout,
		now:         time.Now,
	}
}

func (a *AuthLockout) RegisterFailure(client string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	info, exists := a.failures[client]
	if !exists || now.Sub(info.lastFail) > a.lockout {
		info = &failureInfo{}
		a.failures[client] = info
	}

	info.count++
	info.lastFail = now

	if info.count == a.maxFailures {
		info.lockedAt = now
	}
}

// Locked reports whether client is locked out and for how much longer
func (a *AuthLockout) Locked(client string) (bool, time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	info, exists := a.failures[client]
	if !exists {
		return false, 0
	}

	now := a.now()
	if info.count >= a.maxFailures {
		remaining := a.lockout - now.Sub(info.lockedAt)
		if remaining > 0 {
			return true, remaining
		}
		delete(a.failures, client)
		return false, 0
	}

	if now.Sub(info.lastFail) > a.lockout {
		delete(a.failures, client)
	}
	return false, 0
}

// Reset clears the failure history after a successful authentication
func (a *AuthLockout) Reset(client string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.failures, client)
}

// Failures returns the current failure count for client
func (a *AuthLockout) Failures(client string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if info, exists := a.failures[client]; exists {
		return info.count
	}
	return 0
}
