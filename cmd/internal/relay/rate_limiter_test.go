package relay

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(3, 10*time.Second)

	for i := 0; i < 3; i++ {
		if !rl.Allow(now) {
			t.Fatalf("event %d within limit must be allowed", i)
		}
	}
	if rl.Allow(now) {
		t.Fatalf("event beyond limit must be rejected")
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, 10*time.Second)

	if !rl.Allow(now) || !rl.Allow(now) {
		t.Fatalf("first two events must be allowed")
	}
	if rl.Allow(now.Add(5 * time.Second)) {
		t.Fatalf("third event inside window must be rejected")
	}
	if !rl.Allow(now.Add(11 * time.Second)) {
		t.Fatalf("event after window expiry must be allowed")
	}
}

func TestRateLimiter_InvalidInputsFallBack(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	if rl.limit != rateLimitEvents || rl.window != rateLimitWindow {
		t.Fatalf("expected defaults, got limit=%d window=%v", rl.limit, rl.window)
	}
}
