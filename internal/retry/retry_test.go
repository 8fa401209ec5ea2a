package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:     maxRetries,
		InitialBackoff: 2 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_Success(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), fastPolicy(3), nil, func(ctx context.Context) error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Do() returned error = %v, want nil", err)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
}

func TestDo_PermanentError(t *testing.T) {
	attempts := 0
	base := errors.New("bad request")

	err := Do(context.Background(), fastPolicy(3), nil, func(ctx context.Context) error {
		attempts++
		return Permanent(base)
	})

	if !errors.Is(err, base) {
		t.Errorf("Do() returned error = %v, want %v", err, base)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
	var re *RetryableError
	if errors.As(err, &re) {
		t.Error("permanent error should not be reported as exhausted retries")
	}
}

func TestDo_CustomClassifier(t *testing.T) {
	attempts := 0
	stop := errors.New("stop")

	err := Do(context.Background(), fastPolicy(3), func(err error) bool {
		return !errors.Is(err, stop)
	}, func(ctx context.Context) error {
		attempts++
		return stop
	})

	if !errors.Is(err, stop) {
		t.Errorf("Do() returned error = %v, want %v", err, stop)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
}

func TestDo_RetryableError(t *testing.T) {
	attempts := 0
	successAfter := 2

	err := Do(context.Background(), fastPolicy(5), IsRetryable, func(ctx context.Context) error {
		attempts++
		if attempts < successAfter {
			return errors.New("temporary")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Do() returned error = %v, want nil", err)
	}
	if attempts != successAfter {
		t.Errorf("Do() made %d attempts, want %d", attempts, successAfter)
	}
}

func TestDo_MaxRetriesExceeded(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		want       int
	}{
		{"zero retries runs once", 0, 1},
		{"three retries", 3, 4},
		{"negative treated as zero", -1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			tempErr := errors.New("temporary")

			err := Do(context.Background(), fastPolicy(tt.maxRetries), IsRetryable, func(ctx context.Context) error {
				attempts++
				return tempErr
			})

			if attempts != tt.want {
				t.Errorf("Do() made %d attempts, want %d", attempts, tt.want)
			}
			var re *RetryableError
			if !errors.As(err, &re) {
				t.Fatalf("Do() error = %v, want *RetryableError", err)
			}
			if !errors.Is(err, tempErr) {
				t.Errorf("RetryableError should wrap last error, got %v", re.Err)
			}
		})
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	attempts := 0
	p := Policy{MaxRetries: 5, InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}

	ctx, cancel := context.WithCancel(context.Background())

	err := Do(ctx, p, IsRetryable, func(ctx context.Context) error {
		attempts++
		cancel()
		return errors.New("temporary")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() returned error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("Do() made %d attempts, want 1", attempts)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline exceeded", context.DeadlineExceeded, false},
		{"permanent", Permanent(errors.New("x")), false},
		{"wrapped context", errors.Join(errors.New("x"), context.Canceled), false},
		{"generic error", errors.New("generic"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestPermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	if p.MaxRetries != 3 {
		t.Errorf("DefaultPolicy().MaxRetries = %d, want 3", p.MaxRetries)
	}
	if p.Attempts() != 4 {
		t.Errorf("DefaultPolicy().Attempts() = %d, want 4", p.Attempts())
	}
	if p.InitialBackoff != 5*time.Second {
		t.Errorf("DefaultPolicy().InitialBackoff = %v, want 5s", p.InitialBackoff)
	}
}
