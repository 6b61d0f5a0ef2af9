package util

import (
	"context"
	"testing"
)

func TestHashAndCheckSecret(t *testing.T) {
	hash, err := HashSecret("open sesame")
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}
	if !CheckSecret("open sesame", hash) {
		t.Error("expected matching secret to pass")
	}
	if CheckSecret("open sesame!", hash) {
		t.Error("expected different secret to fail")
	}
}

func TestRateLimiterWithoutRedisAllows(t *testing.T) {
	var rl *RateLimiter
	if !rl.Allow(context.Background(), "1.2.3.4") {
		t.Error("nil limiter must allow")
	}
	rl = NewRateLimiter(nil, 1, 0)
	if !rl.Allow(context.Background(), "1.2.3.4") {
		t.Error("limiter without redis must allow")
	}
}
