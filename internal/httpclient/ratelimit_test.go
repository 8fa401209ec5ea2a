package httpclient

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterUnlimited(t *testing.T) {
	rl := NewRateLimiter(0)
	start := time.Now()
	for i := 0; i < 20; i++ {
		if err := rl.Wait(context.Background(), "https://example.com/a"); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("unlimited limiter waited %v", elapsed)
	}
}

func TestRateLimiterSpacesRequests(t *testing.T) {
	rl := NewRateLimiter(20) // one every 50ms
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx, "https://example.com/x"); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("three requests at 20rps took %v, want >= ~100ms", elapsed)
	}
}

func TestRateLimiterCustomRatePerHost(t *testing.T) {
	rl := NewRateLimiter(1)
	rl.SetCustomRate("fast.example.com", 0)

	start := time.Now()
	for i := 0; i < 5; i++ {
		rl.Wait(context.Background(), "https://fast.example.com:8443/p")
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("custom unlimited host waited %v", elapsed)
	}
}

func TestRateLimiterBackoffHonoursContext(t *testing.T) {
	rl := NewRateLimiter(0)
	rl.Backoff("https://example.com/", time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx, "https://example.com/other"); err == nil {
		t.Error("Wait() should fail when context ends during backoff")
	}
}

func TestHostOf(t *testing.T) {
	tests := map[string]string{
		"https://20.detik.com/detikupdate": "20.detik.com",
		"http://127.0.0.1:8080/x":          "127.0.0.1",
		"not a url":                        "unknown",
	}
	for in, want := range tests {
		if got := hostOf(in); got != want {
			t.Errorf("hostOf(%q) = %q, want %q", in, got, want)
		}
	}
}
