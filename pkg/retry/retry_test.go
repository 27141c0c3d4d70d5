package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/docbridge/docbridge/pkg/errors"
)

func fastConfig() Config {
	config := DefaultConfig()
	config.InitialDelay = time.Millisecond
	config.MaxDelay = 5 * time.Millisecond
	config.Jitter = false
	return config
}

func storageErr() error {
	return errors.NewError(errors.ErrCodeStorageWrite, "upload failed")
}

func TestRetryer_Success(t *testing.T) {
	retryer := New(fastConfig())

	attempts := 0
	err := retryer.Do(t.Context(), func(context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryer_RetryableError(t *testing.T) {
	retryer := New(fastConfig())

	attempts := 0
	err := retryer.Do(t.Context(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return storageErr()
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryer_NonRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"parse error", errors.NewError(errors.ErrCodeParse, "corrupt")},
		{"canceled", errors.NewError(errors.ErrCodeOperationCanceled, "canceled")},
		{"plain error", stderrors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryer := New(fastConfig())
			attempts := 0
			err := retryer.Do(t.Context(), func(context.Context) error {
				attempts++
				return tt.err
			})
			if err != tt.err {
				t.Errorf("Expected original error, got %v", err)
			}
			if attempts != 1 {
				t.Errorf("Expected 1 attempt (no retry), got %d", attempts)
			}
		})
	}
}

func TestRetryer_MaxAttemptsExceeded(t *testing.T) {
	retryer := New(fastConfig()).WithMaxAttempts(4)

	attempts := 0
	err := retryer.Do(t.Context(), func(context.Context) error {
		attempts++
		return storageErr()
	})

	if attempts != 4 {
		t.Errorf("Expected 4 attempts, got %d", attempts)
	}
	if code, _ := errors.CodeOf(err); code != errors.ErrCodeStorageWrite {
		t.Errorf("Expected last error to keep its code, got %v", err)
	}
}

func TestRetryer_ContextCancellation(t *testing.T) {
	config := fastConfig()
	config.InitialDelay = time.Second
	config.MaxDelay = time.Second
	retryer := New(config)

	ctx, cancel := context.WithCancel(t.Context())
	attempts := 0
	err := retryer.Do(ctx, func(context.Context) error {
		attempts++
		cancel()
		return storageErr()
	})

	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
	if code, _ := errors.CodeOf(err); code != errors.ErrCodeStorageWrite {
		t.Errorf("Expected last attempt error, got %v", err)
	}

	err = retryer.Do(ctx, func(context.Context) error {
		t.Error("fn called with canceled context")
		return nil
	})
	if code, _ := errors.CodeOf(err); code != errors.ErrCodeOperationCanceled {
		t.Errorf("Expected %s, got %v", errors.ErrCodeOperationCanceled, err)
	}
}

func TestRetryer_ExponentialBackoff(t *testing.T) {
	config := fastConfig()
	config.InitialDelay = 10 * time.Millisecond
	config.MaxDelay = time.Second
	config.MaxAttempts = 5
	retryer := New(config)

	want := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		80 * time.Millisecond,
	}
	for i, w := range want {
		if got := retryer.calculateDelay(i + 1); got != w {
			t.Errorf("attempt %d: expected delay %v, got %v", i+1, w, got)
		}
	}
}

func TestRetryer_MaxDelayCap(t *testing.T) {
	config := fastConfig()
	config.InitialDelay = time.Second
	config.MaxDelay = 3 * time.Second
	retryer := New(config)

	if got := retryer.calculateDelay(10); got != 3*time.Second {
		t.Errorf("Expected delay capped at 3s, got %v", got)
	}
}

func TestRetryer_JitterVariance(t *testing.T) {
	config := DefaultConfig()
	config.InitialDelay = 100 * time.Millisecond
	retryer := New(config)

	for i := 0; i < 50; i++ {
		d := retryer.calculateDelay(1)
		if d < 80*time.Millisecond || d > 120*time.Millisecond {
			t.Fatalf("jittered delay %v outside ±20%% of 100ms", d)
		}
	}
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	var seen []int
	retryer := New(fastConfig()).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		seen = append(seen, attempt)
		if err == nil {
			t.Error("OnRetry called with nil error")
		}
	})

	_ = retryer.Do(t.Context(), func(context.Context) error { return storageErr() })

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("Expected OnRetry for attempts [1 2], got %v", seen)
	}
}

func TestRetryer_Defaults(t *testing.T) {
	retryer := New(Config{})
	if retryer.MaxAttempts() != 3 {
		t.Errorf("Expected default 3 attempts, got %d", retryer.MaxAttempts())
	}
	if got := retryer.WithInitialDelay(time.Millisecond).calculateDelay(1); got != time.Millisecond {
		t.Errorf("Expected 1ms first delay, got %v", got)
	}
	if retryer.String() != "retry(attempts=3, initial=200ms, max=5s)" {
		t.Errorf("unexpected String(): %s", retryer.String())
	}
}
