package retry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jzx17/cropflow/pkg/types"
)

// RetryExecutor implements retry execution logic
type RetryExecutor struct {
	policy       RetryPolicy
	eventHandler EventHandler
	stats        RetryStats
	clock        types.Clock
}

// ExecuteFunc is the function type to retry
type ExecuteFunc[T any] func(ctx context.Context) (T, error)

// RetryStats contains retry statistics
type RetryStats struct {
	TotalAttempts   int64         // total attempt count
	TotalRetries    int64         // operations that needed more than one attempt
	TotalSuccesses  int64         // total success count
	TotalFailures   int64         // total failure count
	TotalRetryDelay time.Duration // total time spent waiting between attempts
	mu              sync.RWMutex
}

// EventHandler handles retry events
type EventHandler interface {
	OnRetryAttempt(ctx context.Context, name string, attempt int, err error, delay time.Duration)
	OnRetrySuccess(ctx context.Context, name string, attempt int)
	OnGiveUp(ctx context.Context, name string, attempt int, err error)
}

// Error is returned when every allowed attempt failed
type Error struct {
	Name     string
	Attempts int
	Err      error
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Name, e.Attempts, e.Err)
}

// Unwrap returns the last attempt's error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewRetryExecutor creates a retry executor
func NewRetryExecutor(policy RetryPolicy, opts ...ExecutorOption) *RetryExecutor {
	executor := &RetryExecutor{
		policy: policy,
		clock:  types.NewRealClock(),
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Execute executes a function with retry logic
func Execute[T any](r *RetryExecutor, ctx context.Context, fn ExecuteFunc[T]) (T, error) {
	return ExecuteWithName(r, ctx, "default", fn)
}

// ExecuteWithName executes a function with retry logic, naming the operation in events
func ExecuteWithName[T any](r *RetryExecutor, ctx context.Context, name string, fn ExecuteFunc[T]) (T, error) {
	var zero T
	attempt := 0

	for {
		attempt++

		if err := ctx.Err(); err != nil {
			return zero, err
		}

		r.updateStats(func(stats *RetryStats) {
			stats.TotalAttempts++
		})

		result, err := fn(ctx)
		if err == nil {
			r.updateStats(func(stats *RetryStats) {
				stats.TotalSuccesses++
				if attempt > 1 {
					stats.TotalRetries++
				}
			})
			if r.eventHandler != nil && attempt > 1 {
				r.eventHandler.OnRetrySuccess(ctx, name, attempt)
			}
			return result, nil
		}

		if !r.policy.ShouldRetry(err, attempt) {
			r.updateStats(func(stats *RetryStats) {
				stats.TotalFailures++
				if attempt > 1 {
					stats.TotalRetries++
				}
			})
			if r.eventHandler != nil {
				r.eventHandler.OnGiveUp(ctx, name, attempt, err)
			}
			if attempt == 1 {
				return zero, err
			}
			return zero, &Error{Name: name, Attempts: attempt, Err: err}
		}

		// a server-suggested delay wins when it is longer
		delay := r.policy.NextDelay(attempt)
		if hint := types.GetRetryDelay(err); hint > delay {
			delay = hint
		}

		r.updateStats(func(stats *RetryStats) {
			stats.TotalRetryDelay += delay
		})
		if r.eventHandler != nil {
			r.eventHandler.OnRetryAttempt(ctx, name, attempt, err, delay)
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-r.clock.After(delay):
			}
		}
	}
}

// Wrap returns fn guarded by the executor
func Wrap[T any](r *RetryExecutor, name string, fn ExecuteFunc[T]) ExecuteFunc[T] {
	return func(ctx context.Context) (T, error) {
		return ExecuteWithName(r, ctx, name, fn)
	}
}

// GetStats gets retry statistics
func (r *RetryExecutor) GetStats() RetryStats {
	r.stats.mu.RLock()
	defer r.stats.mu.RUnlock()
	return RetryStats{
		TotalAttempts:   r.stats.TotalAttempts,
		TotalRetries:    r.stats.TotalRetries,
		TotalSuccesses:  r.stats.TotalSuccesses,
		TotalFailures:   r.stats.TotalFailures,
		TotalRetryDelay: r.stats.TotalRetryDelay,
	}
}

// updateStats updates statistics (thread-safe)
func (r *RetryExecutor) updateStats(fn func(*RetryStats)) {
	r.stats.mu.Lock()
	defer r.stats.mu.Unlock()
	fn(&r.stats)
}

// ExecutorOption is a configuration option for retry executor
type ExecutorOption func(*RetryExecutor)

// WithEventHandler sets the event handler
func WithEventHandler(handler EventHandler) ExecutorOption {
	return func(r *RetryExecutor) {
		r.eventHandler = handler
	}
}

// WithClock sets the clock for time operations
func WithClock(clock types.Clock) ExecutorOption {
	return func(r *RetryExecutor) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// LogEventHandler reports retry events to a slog logger
type LogEventHandler struct {
	logger *slog.Logger
}

// NewLogEventHandler creates a LogEventHandler; nil uses slog.Default()
func NewLogEventHandler(logger *slog.Logger) *LogEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventHandler{logger: logger}
}

// OnRetryAttempt logs a failed attempt that will be retried
func (h *LogEventHandler) OnRetryAttempt(ctx context.Context, name string, attempt int, err error, delay time.Duration) {
	h.logger.DebugContext(ctx, "retrying", "operation", name, "attempt", attempt, "delay", delay, "error", err)
}

// OnRetrySuccess logs an operation that succeeded after retrying
func (h *LogEventHandler) OnRetrySuccess(ctx context.Context, name string, attempt int) {
	h.logger.InfoContext(ctx, "retry succeeded", "operation", name, "attempt", attempt)
}

// OnGiveUp logs the final failure
func (h *LogEventHandler) OnGiveUp(ctx context.Context, name string, attempt int, err error) {
	h.logger.WarnContext(ctx, "giving up", "operation", name, "attempts", attempt, "error", err)
}
