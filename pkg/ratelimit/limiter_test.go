package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowConsumesBurst(t *testing.T) {
	limiter := NewRateLimiter(10, 3)

	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Fatalf("request %d within burst should be allowed", i+1)
		}
	}
	if limiter.Allow() {
		t.Error("request beyond burst should be denied")
	}
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	limiter := NewRateLimiter(100, 1)

	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("first token: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("second token: %v", err)
	}
	// При rate=100 следующий токен появляется примерно через 10ms
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("Wait returned too fast: %v", elapsed)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	limiter := NewRateLimiter(0.1, 1)
	limiter.Allow() // опустошаем ведро

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait error = %v, want context.DeadlineExceeded", err)
	}
}

func TestDefaultsApplied(t *testing.T) {
	limiter := NewRateLimiter(0, 0)
	if limiter.rate != 20 {
		t.Errorf("default rate = %v, want 20", limiter.rate)
	}
	if limiter.burst != 20 {
		t.Errorf("default burst = %v, want 20", limiter.burst)
	}
}
