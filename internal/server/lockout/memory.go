package lockout

import (
	"context"
	"sync"
	"time"

	"github.com/Tarcisio20/meu-gerente/internal/common"
	"github.com/Tarcisio20/meu-gerente/internal/server/metrics"
)

type counter struct {
	attempts    int
	windowEnds  time.Time
	lockedUntil time.Time
}

// MemoryLimiter keeps counters in process. Used when no redis is
// configured; counters are not shared between replicas. Counters whose
// window and lock have both passed are swept from Fail at most once per
// window.
type MemoryLimiter struct {
	mu        sync.Mutex
	policy    Policy
	keys      map[string]*counter
	now       func() time.Time
	nextSweep time.Time
}

func NewMemoryLimiter(policy Policy) *MemoryLimiter {
	return &MemoryLimiter{policy: policy, keys: make(map[string]*counter), now: time.Now}
}

func (l *MemoryLimiter) Check(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.keys[key]
	if ok && l.now().Before(c.lockedUntil) {
		return common.ErrTooManyAttempts
	}
	return nil
}

func (l *MemoryLimiter) Fail(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !now.Before(l.nextSweep) {
		l.sweep(now)
		l.nextSweep = now.Add(l.policy.Window)
	}

	c, ok := l.keys[key]
	if !ok {
		c = &counter{}
		l.keys[key] = c
	}
	if !now.Before(c.windowEnds) {
		c.attempts = 0
		c.windowEnds = now.Add(l.policy.Window)
	}

	c.attempts++
	if c.attempts >= l.policy.MaxAttempts {
		c.lockedUntil = now.Add(l.policy.LockFor)
		c.attempts = 0
		c.windowEnds = time.Time{}
		metrics.LockoutsTotal.Inc()
	}
	return nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.keys[key]
	if !ok {
		return nil
	}
	if l.now().Before(c.lockedUntil) {
		c.attempts = 0
		c.windowEnds = time.Time{}
		return nil
	}
	delete(l.keys, key)
	return nil
}

func (c *counter) expired(now time.Time) bool {
	return !now.Before(c.windowEnds) && !now.Before(c.lockedUntil)
}

func (l *MemoryLimiter) sweep(now time.Time) {
	for k, c := range l.keys {
		if c.expired(now) {
			delete(l.keys, k)
		}
	}
}

// Len reports how many identifiers are currently tracked.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
