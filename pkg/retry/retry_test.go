package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, fastConfig(5))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("still failing")
	err := Do(context.Background(), func() error {
		calls++
		return wantErr
	}, fastConfig(5))

	if !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if calls != 5 {
		t.Errorf("calls = %d, want exactly 5", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	cfg := fastConfig(5)
	cfg.RetryIf = IsRetryable

	err := Do(context.Background(), func() error {
		calls++
		return Permanent(errors.New("invalid credentials"))
	}, cfg)

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries for permanent error)", calls)
	}
}

func TestDoWithResultReturnsValue(t *testing.T) {
	got, err := DoWithResult(context.Background(), func() (string, error) {
		return "token", nil
	}, fastConfig(3))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "token" {
		t.Errorf("result = %q, want token", got)
	}
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	cfg := Config{MaxAttempts: 10, InitialDelay: 50 * time.Millisecond, Multiplier: 2.0}
	err := Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("transient")
	}, cfg)

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (cancelled during backoff)", calls)
	}
}

func TestCalculateDelayExponential(t *testing.T) {
	cfg := OrderConfig()
	cfg.validate()

	wants := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for attempt, want := range wants {
		if got := cfg.calculateDelay(attempt); got != want {
			t.Errorf("delay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil error should not be retryable")
	}
	if IsRetryable(Permanent(errors.New("forbidden"))) {
		t.Error("permanent error should not be retryable")
	}
	if !IsRetryable(Temporary(errors.New("overloaded"))) {
		t.Error("temporary error should be retryable")
	}
	// Обёртки через fmt/errors должны сохранять классификацию
	wrapped := errors.Join(errors.New("context"), Permanent(errors.New("invalid")))
	if IsRetryable(wrapped) {
		t.Error("wrapped permanent error should not be retryable")
	}
	if !IsRetryable(errors.New("unknown")) {
		t.Error("unknown errors default to retryable")
	}
}
