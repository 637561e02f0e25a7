// Package security holds the request throttling and input cleaning helpers shared by the API.
package security

import (
	"strings"
	"sync"
	"time"

	"github.com/studyhall/backend/core"
)

// RateLimiter is a sliding window limiter keyed by an arbitrary string (client IP, username...).
// It is safe for concurrent use.
type RateLimiter struct {
	MaxAttempts int
	Window      time.Duration

	mu       sync.Mutex
	attempts map[string][]time.Time
	now      func() time.Time // mockable
}

func NewRateLimiter(maxAttempts int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		MaxAttempts: maxAttempts,
		Window:      window,
		attempts:    make(map[string][]time.Time),
		now:         time.Now,
	}
}

// Allow records an attempt for key and reports whether it is within the limit.
// Denied attempts are not recorded.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := rl.prune(key, now)
	if len(recent) >= rl.MaxAttempts {
		rl.attempts[key] = recent
		return false
	}
	rl.attempts[key] = append(recent, now)
	return true
}

// Remaining returns how many attempts key has left in the current window.
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	recent := rl.prune(key, rl.now())
	rl.attempts[key] = recent
	if n := rl.MaxAttempts - len(recent); n > 0 {
		return n
	}
	return 0
}

func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, key)
}

// prune drops the attempts of key that left the window. rl.mu must be held.
func (rl *RateLimiter) prune(key string, now time.Time) []time.Time {
	attempts := rl.attempts[key]
	cutoff := now.Add(-rl.Window)
	i := 0
	for i < len(attempts) && !attempts[i].After(cutoff) {
		i++
	}
	if i == len(attempts) {
		return nil
	}
	return attempts[i:]
}

// SanitizeInput cleans free text coming from users: markup and control characters are removed
// and runs of blanks are collapsed.
func SanitizeInput(s string) string {
	return strings.Join(strings.Fields(core.SanitizeText(s)), " ")
}
