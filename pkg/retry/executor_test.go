package retry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jzx17/cropflow/pkg/types"
)

var errFlaky = types.Transient(errors.New("connection reset"))

func TestRetryExecutor_Execute_Success(t *testing.T) {
	policy := NewFixedDelayRetry(3, 10*time.Millisecond)
	executor := NewRetryExecutor(policy)

	result, err := Execute(executor, context.Background(), func(ctx context.Context) (string, error) {
		return "success", nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result != "success" {
		t.Errorf("Expected 'success', got %v", result)
	}

	stats := executor.GetStats()
	if stats.TotalAttempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", stats.TotalAttempts)
	}
	if stats.TotalRetries != 0 {
		t.Errorf("Expected 0 retries, got %d", stats.TotalRetries)
	}
}

func TestRetryExecutor_Execute_RetrySuccess(t *testing.T) {
	policy := NewFixedDelayRetry(3, time.Millisecond)
	executor := NewRetryExecutor(policy)

	var attempts int32
	result, err := Execute(executor, context.Background(), func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return "", errFlaky
		}
		return "success", nil
	})

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result != "success" {
		t.Errorf("Expected 'success', got %v", result)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}

	stats := executor.GetStats()
	if stats.TotalAttempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", stats.TotalAttempts)
	}
	if stats.TotalRetries != 1 {
		t.Errorf("Expected 1 retry operation, got %d", stats.TotalRetries)
	}
	if stats.TotalRetryDelay != 2*time.Millisecond {
		t.Errorf("Expected 2ms total delay, got %v", stats.TotalRetryDelay)
	}
}

func TestRetryExecutor_Execute_MaxAttemptsReached(t *testing.T) {
	executor := NewRetryExecutor(NewFixedDelayRetry(3, time.Millisecond))

	var attempts int32
	_, err := ExecuteWithName(executor, context.Background(), "upload", func(ctx context.Context) (int, error) {
		atomic.AddInt32(&attempts, 1)
		return 0, errFlaky
	})

	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	var retryErr *Error
	if !errors.As(err, &retryErr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if retryErr.Attempts != 3 || retryErr.Name != "upload" {
		t.Errorf("Unexpected error details: %+v", retryErr)
	}
	if !errors.Is(err, errFlaky) {
		t.Errorf("Expected error chain to contain the last failure")
	}
	if executor.GetStats().TotalFailures != 1 {
		t.Errorf("Expected 1 failure, got %d", executor.GetStats().TotalFailures)
	}
}

func TestRetryExecutor_Execute_NonRetryableError(t *testing.T) {
	executor := NewRetryExecutor(NewFixedDelayRetry(5, time.Millisecond))
	permanent := errors.New("access denied")

	var attempts int32
	_, err := Execute(executor, context.Background(), func(ctx context.Context) (int, error) {
		atomic.AddInt32(&attempts, 1)
		return 0, permanent
	})

	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
	if err != permanent {
		t.Errorf("Expected the original error unchanged, got %v", err)
	}
}

func TestRetryExecutor_Execute_ContextCanceled(t *testing.T) {
	executor := NewRetryExecutor(NewFixedDelayRetry(5, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := Execute(executor, ctx, func(ctx context.Context) (int, error) {
			return 0, errFlaky
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("executor did not stop waiting")
	}
}

func TestRetryExecutor_RetryAfterHint(t *testing.T) {
	executor := NewRetryExecutor(NewFixedDelayRetry(2, time.Millisecond))
	hinted := &types.RetryableError{Err: errors.New("slow down"), Retryable: true, RetryAfter: 20 * time.Millisecond}

	var attempts int32
	_, _ = Execute(executor, context.Background(), func(ctx context.Context) (int, error) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return 0, hinted
		}
		return 1, nil
	})

	if got := executor.GetStats().TotalRetryDelay; got != 20*time.Millisecond {
		t.Errorf("Expected the hinted 20ms delay, got %v", got)
	}
}

func TestRetryExecutor_LogEventHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	executor := NewRetryExecutor(NewFixedDelayRetry(2, time.Millisecond),
		WithEventHandler(NewLogEventHandler(logger)))

	var attempts int32
	_, err := ExecuteWithName(executor, context.Background(), "load", func(ctx context.Context) (int, error) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return 0, errFlaky
		}
		return 1, nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	out := buf.String()
	for _, want := range []string{"retrying", "retry succeeded", "operation=load"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log output to contain %q, got %s", want, out)
		}
	}
}

func TestWrap(t *testing.T) {
	executor := NewRetryExecutor(NewFixedDelayRetry(3, time.Millisecond))
	var attempts int32
	fn := Wrap(executor, "wrapped", func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			return "", errFlaky
		}
		return "ok", nil
	})

	v, err := fn(context.Background())
	if err != nil || v != "ok" {
		t.Errorf("Expected ok, got %q, %v", v, err)
	}
}
