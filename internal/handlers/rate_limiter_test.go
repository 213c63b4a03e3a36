package handlers

import (
	"testing"
	"time"
)

func TestSimpleRateLimiterWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newSimpleRateLimiter(2, time.Minute, func() time.Time { return now })

	if !limiter.Allow("u1") || !limiter.Allow("u1") {
		t.Fatalf("first two requests should pass")
	}
	if limiter.Allow("u1") {
		t.Fatalf("third request inside the window should be rejected")
	}
	if !limiter.Allow(" ") {
		t.Fatalf("blank keys share the anonymous bucket and should pass")
	}

	now = now.Add(time.Minute + time.Second)
	if !limiter.Allow("u1") {
		t.Fatalf("window reset should allow again")
	}
}

func TestNewSimpleRateLimiterDisabled(t *testing.T) {
	if newSimpleRateLimiter(0, time.Minute, nil) != nil {
		t.Fatalf("zero limit should disable the limiter")
	}
	if newSimpleRateLimiter(5, 0, nil) != nil {
		t.Fatalf("zero window should disable the limiter")
	}
}
