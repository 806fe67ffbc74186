package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketExhausts(t *testing.T) {
	tb := NewTokenBucket(2, 1, time.Second)

	if !tb.Allow() || !tb.Allow() {
		t.Fatal("first two requests should pass")
	}
	if tb.Allow() {
		t.Error("third request should be rejected with an empty bucket")
	}
	if got := tb.GetRemaining(); got != 0 {
		t.Errorf("GetRemaining() = %d, want 0", got)
	}
}

func TestSlidingWindowLimit(t *testing.T) {
	sw := NewSlidingWindow(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !sw.Allow() {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	if sw.Allow() {
		t.Error("request over the window limit should be rejected")
	}
	if got := sw.GetRemaining(); got != 0 {
		t.Errorf("GetRemaining() = %d, want 0", got)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	sw := NewSlidingWindow(1, time.Hour)
	if !sw.Allow() {
		t.Fatal("first request should pass")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := sw.Wait(ctx); err == nil {
		t.Error("Wait should fail once the context expires")
	}
}

func TestManagerKnownAndUnknownEndpoints(t *testing.T) {
	m := NewManager()

	if !m.Allow("nominatim:reverse") {
		t.Error("fresh nominatim limiter should allow the first request")
	}
	if m.Allow("nominatim:reverse") {
		t.Error("second immediate nominatim request should be rejected")
	}

	// unknown endpoints get a registered fallback, so limits stick
	for i := 0; i < 10; i++ {
		m.Allow("somewhere:else")
	}
	if m.Allow("somewhere:else") {
		t.Error("fallback limiter should reject request 11 in the window")
	}
}
