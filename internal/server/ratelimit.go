package server

import (
	"context"
	"sync"
	"time"
)

// RateLimiter counts requests per key in fixed windows. State is per
// process.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]*rateEntry
	now     func() time.Time
}

type rateEntry struct {
	count int
	reset time.Time
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	if window <= 0 {
		window = 15 * time.Minute
	}
	if max <= 0 {
		max = 100
	}
	return &RateLimiter{window: window, max: max, entries: map[string]*rateEntry{}, now: time.Now}
}

// Allow counts one request for key. The window starts with the first
// request and is replaced once it has passed.
func (l *RateLimiter) Allow(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || now.After(e.reset) {
		e = &rateEntry{reset: now.Add(l.window)}
		l.entries[key] = e
	}
	e.count++

	d := Decision{Limit: l.max, Reset: e.reset, Remaining: l.max - e.count}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	d.Allowed = e.count <= l.max
	if !d.Allowed {
		d.RetryAfter = e.reset.Sub(now)
	}
	return d
}

// Sweep drops expired windows and returns how many were removed.
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	for k, e := range l.entries {
		if now.After(e.reset) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx ends.
func (l *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
