package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	attempts := 0
	result, err := Do(context.Background(), fastConfig(3), func(ctx context.Context) (string, error) {
		attempts++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || attempts != 1 {
		t.Fatalf("got result=%q attempts=%d", result, attempts)
	}
}

func TestDoZeroRetriesSingleAttempt(t *testing.T) {
	attempts := 0
	start := time.Now()
	_, err := Do(context.Background(), Config{MaxRetries: 0, BaseDelay: time.Hour, MaxDelay: time.Hour}, func(ctx context.Context) (int, error) {
		attempts++
		return 0, Transient(errors.New("boom"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
	if time.Since(start) > time.Second {
		t.Fatal("zero retries must not wait")
	}
}

func TestDoTransientThenSuccess(t *testing.T) {
	attempts := 0
	result, err := Do(context.Background(), fastConfig(1), func(ctx context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, Transient(errors.New("flaky"))
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 || attempts != 2 {
		t.Fatalf("got result=%d attempts=%d", result, attempts)
	}
}

func TestDoExhaustsTransientRetries(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), fastConfig(2), func(ctx context.Context) (int, error) {
		attempts++
		return 0, Transient(errors.New("still down"))
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts total, got %d", attempts)
	}
	if !IsTransient(err) {
		t.Fatal("last error should keep its transient marker")
	}
}

func TestDoTerminalErrorNoRetry(t *testing.T) {
	attempts := 0
	terminal := errors.New("bad request")
	_, err := Do(context.Background(), fastConfig(2), func(ctx context.Context) (int, error) {
		attempts++
		return 0, terminal
	})
	if !errors.Is(err, terminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("terminal errors must not be retried, got %d attempts", attempts)
	}
}

func TestDoContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, Config{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}, func(ctx context.Context) (int, error) {
			attempts++
			return 0, Transient(errors.New("down"))
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt before cancel, got %d", attempts)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	cfg := Config{BaseDelay: 10 * time.Millisecond, MaxDelay: 35 * time.Millisecond}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 10 * time.Millisecond},
		{1, 20 * time.Millisecond},
		{2, 35 * time.Millisecond},
		{10, 35 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := backoff(cfg, tc.attempt); got != tc.want {
			t.Errorf("backoff(attempt=%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestTransientMarker(t *testing.T) {
	if Transient(nil) != nil {
		t.Fatal("Transient(nil) must be nil")
	}

	base := errors.New("timeout")
	marked := Transient(base)
	if !IsTransient(marked) {
		t.Fatal("marked error should be transient")
	}
	if !errors.Is(marked, base) {
		t.Fatal("marker must preserve the wrapped error")
	}
	if IsTransient(base) {
		t.Fatal("unmarked error must not be transient")
	}
}
