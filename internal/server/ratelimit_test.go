package server

import (
	"testing"
	"time"
)

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	rl := newRateLimiter(time.Second, 2)
	rl.now = func() time.Time { return now }

	if !rl.allow("1.2.3.4") || !rl.allow("1.2.3.4") {
		t.Fatal("expected burst to be allowed")
	}
	if rl.allow("1.2.3.4") {
		t.Fatal("expected limiter to reject past the burst")
	}
	if !rl.allow("5.6.7.8") {
		t.Fatal("expected other keys to be independent")
	}

	now = now.Add(time.Second)
	if !rl.allow("1.2.3.4") {
		t.Fatal("expected a token after one interval")
	}
}

func TestRateLimiterSweepsIdleKeys(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	rl := newRateLimiter(time.Second, 2)
	rl.now = func() time.Time { return now }
	rl.lastCleanup = now

	rl.allow("1.2.3.4")
	now = now.Add(10 * time.Minute)
	rl.allow("5.6.7.8")

	if _, ok := rl.visitors["1.2.3.4"]; ok {
		t.Fatal("expected idle visitor to be swept")
	}
}
