package reliability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_Success(t *testing.T) {
	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}

	config := RetryConfig{
		MaxRetries:     5,
		InitialBackoff: time.Millisecond,
		Multiplier:     2.0,
	}

	if err := Retry(context.Background(), config, fn); err != nil {
		t.Errorf("Retry() error = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_MaxRetriesExceeded(t *testing.T) {
	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		return errGeoDown
	}

	err := Retry(context.Background(), RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond}, fn)
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", err)
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}
}

func TestRetry_ZeroRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{}, func(ctx context.Context) error {
		attempts++
		return errGeoDown
	})

	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_Permanent(t *testing.T) {
	attempts := 0
	badRequest := errors.New("400 bad request")

	err := Retry(context.Background(), RetryConfig{MaxRetries: 5, InitialBackoff: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		return Permanent(badRequest)
	})

	if !errors.Is(err, badRequest) {
		t.Errorf("Retry() error = %v, want %v", err, badRequest)
	}
	if !IsPermanent(err) {
		t.Error("IsPermanent() = false, want true")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_CircuitOpenStops(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryConfig{MaxRetries: 5, InitialBackoff: time.Millisecond}, func(ctx context.Context) error {
		attempts++
		return ErrCircuitOpen
	})

	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Retry() error = %v, want ErrCircuitOpen", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, RetryConfig{MaxRetries: 5, InitialBackoff: 100 * time.Millisecond}, func(ctx context.Context) error {
		return errGeoDown
	})
	if !errors.Is(err, ErrRetryAborted) {
		t.Errorf("expected ErrRetryAborted, got %v", err)
	}
}

func TestRetry_OnRetryBackoff(t *testing.T) {
	var waits []time.Duration
	config := RetryConfig{
		MaxRetries:     4,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		Multiplier:     2,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			waits = append(waits, wait)
		},
	}

	Retry(context.Background(), config, func(ctx context.Context) error { return errGeoDown })

	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond}
	if len(waits) != len(want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("waits[%d] = %v, want %v", i, waits[i], want[i])
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{10, time.Second},
	}

	for _, tt := range tests {
		got := ExponentialBackoff(tt.attempt, 100*time.Millisecond, 2, time.Second)
		if got != tt.want {
			t.Errorf("ExponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestAddJitter(t *testing.T) {
	base := time.Second
	for i := 0; i < 100; i++ {
		got := addJitter(base)
		if got < 800*time.Millisecond || got > 1200*time.Millisecond {
			t.Fatalf("addJitter() = %v, outside ±20%%", got)
		}
	}
}
