package ratelimit

import (
	"testing"
	"time"
)

func TestTokenBucket_Allow(t *testing.T) {
	bucket := NewTokenBucket(3, 1)

	for i := 0; i < 3; i++ {
		if !bucket.Allow() {
			t.Fatalf("request %d should be allowed within capacity", i+1)
		}
	}
	if bucket.Allow() {
		t.Error("request over capacity should be denied")
	}
}

func TestTokenBucket_AllowN(t *testing.T) {
	bucket := NewTokenBucket(5, 1)

	if !bucket.AllowN(5) {
		t.Fatal("burst up to capacity should be allowed")
	}
	if bucket.AllowN(1) {
		t.Error("empty bucket should deny")
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	bucket := NewTokenBucket(2, 100)
	bucket.AllowN(2)

	if bucket.Allow() {
		t.Fatal("bucket should be empty")
	}

	// Refills are computed in whole seconds; rewind the clock instead of
	// sleeping.
	bucket.mu.Lock()
	bucket.lastRefill = time.Now().Add(-1 * time.Second)
	bucket.mu.Unlock()

	if !bucket.Allow() {
		t.Error("bucket should have refilled")
	}

	// Refill never exceeds capacity.
	bucket.mu.Lock()
	bucket.lastRefill = time.Now().Add(-1 * time.Hour)
	bucket.mu.Unlock()
	if !bucket.AllowN(2) {
		t.Error("refill should restore up to capacity")
	}
	if bucket.Allow() {
		t.Error("refill must not overshoot capacity")
	}
}

func TestRateLimiter_PerKey(t *testing.T) {
	limiter := NewRateLimiter(1, 1)

	if !limiter.Allow("alice") {
		t.Fatal("first request for alice should pass")
	}
	if limiter.Allow("alice") {
		t.Error("second request for alice should be limited")
	}
	if !limiter.Allow("bob") {
		t.Error("bob has his own bucket")
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	limiter := NewRateLimiter(1, 1)

	limiter.Allow("alice")
	if limiter.Allow("alice") {
		t.Fatal("alice should be limited")
	}

	limiter.Reset("alice")
	if !limiter.Allow("alice") {
		t.Error("reset should restore the budget")
	}
}
