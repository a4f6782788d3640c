package server

import (
	"testing"
	"time"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(time.Minute, 2)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if d := l.Allow("1.2.3.4"); !d.Allowed {
			t.Fatalf("request %d rejected", i)
		}
	}
	d := l.Allow("1.2.3.4")
	if d.Allowed || d.Remaining != 0 || d.RetryAfter != time.Minute {
		t.Fatalf("unexpected decision: %+v", d)
	}
	if d := l.Allow("5.6.7.8"); !d.Allowed || d.Remaining != 1 {
		t.Fatalf("other client limited: %+v", d)
	}

	now = now.Add(time.Minute + time.Second)
	if d := l.Allow("1.2.3.4"); !d.Allowed || d.Remaining != 1 {
		t.Fatalf("window did not reset: %+v", d)
	}
}

func TestRateLimiterSweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(time.Minute, 5)
	l.now = func() time.Time { return now }
	l.Allow("a")
	l.Allow("b")
	now = now.Add(2 * time.Minute)
	l.Allow("c")
	if removed := l.Sweep(); removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
}
