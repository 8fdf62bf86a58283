// Package ratelimit implements fixed-window submission counters used to gate
// comment creation per client identity.
//
// Two backends satisfy the Limiter interface:
//   - MemoryLimiter keeps counters in a bounded, expiring LRU inside the
//     process. Suitable for a single instance.
//   - RedisLimiter keeps counters in Redis so every instance shares them and
//     they survive restarts.
//
// Both implement the same algorithm: the first hit opens a window; hits are
// accepted while the count within the window stays at or below the ceiling;
// the first hit after the window has elapsed opens a new one.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Limiter decides whether one more action is allowed for key.
//
// A non-nil error means the backing store could not be consulted; callers
// should treat it as "not allowed".
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Key derives the limiter identity for a comment submission from the
// client address. An empty address collapses to a single shared bucket.
func Key(clientIP string) string {
	ip := strings.TrimSpace(clientIP)
	if ip == "" {
		ip = "unknown"
	}
	return "comment:" + ip
}

// entry is the per-identity window state.
type entry struct {
	windowStart time.Time
	count       int
}

// MemoryLimiter is a process-local fixed-window limiter.
//
// Entries live in an expirable LRU capped at maxKeys and expire one window
// after they were opened, so idle identities never accumulate.
// It is safe for concurrent use.
type MemoryLimiter struct {
	window time.Duration
	max    int

	mu      sync.Mutex
	entries *expirable.LRU[string, *entry]
	now     func() time.Time
}

// NewMemoryLimiter builds a limiter that accepts at most max hits per
// window for each key, tracking at most maxKeys identities.
func NewMemoryLimiter(window time.Duration, max, maxKeys int) *MemoryLimiter {
	if max < 1 {
		max = 1
	}
	if maxKeys < 1 {
		maxKeys = 1
	}
	return &MemoryLimiter{
		window:  window,
		max:     max,
		entries: expirable.NewLRU[string, *entry](maxKeys, nil, window),
		now:     time.Now,
	}
}

// Allow records a hit for key and reports whether it is within the ceiling.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries.Get(key)
	if !ok || now.Sub(e.windowStart) >= m.window {
		m.entries.Add(key, &entry{windowStart: now, count: 1})
		return true, nil
	}
	if e.count < m.max {
		e.count++
		return true, nil
	}
	return false, nil
}

// Len returns the number of tracked identities.
func (m *MemoryLimiter) Len() int {
	return m.entries.Len()
}
