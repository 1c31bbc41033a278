package pipeline

import (
	"context"

	"github.com/jzx17/cropflow/pkg/retry"
)

// ProcessFunc defines the processing function type of a single stage step
type ProcessFunc[T, R any] func(context.Context, T) (R, error)

// Then composes two steps; second runs only when first succeeds
func Then[T, M, R any](first ProcessFunc[T, M], second ProcessFunc[M, R]) ProcessFunc[T, R] {
	return func(ctx context.Context, input T) (R, error) {
		mid, err := first(ctx, input)
		if err != nil {
			var zero R
			return zero, err
		}
		return second(ctx, mid)
	}
}

// WithRetry re-runs fn through executor. A nil executor returns fn unchanged.
func WithRetry[T, R any](fn ProcessFunc[T, R], executor *retry.RetryExecutor, name string) ProcessFunc[T, R] {
	if executor == nil {
		return fn
	}
	return func(ctx context.Context, input T) (R, error) {
		return retry.ExecuteWithName(executor, ctx, name, func(ctx context.Context) (R, error) {
			return fn(ctx, input)
		})
	}
}

// HandleErrors maps the error of a failed step
func HandleErrors[T, R any](fn ProcessFunc[T, R], handler func(error) error) ProcessFunc[T, R] {
	return func(ctx context.Context, input T) (R, error) {
		result, err := fn(ctx, input)
		if err != nil {
			err = handler(err)
		}
		return result, err
	}
}

// Tap observes successful results
func Tap[T, R any](fn ProcessFunc[T, R], observer func(T, R)) ProcessFunc[T, R] {
	return func(ctx context.Context, input T) (R, error) {
		result, err := fn(ctx, input)
		if err == nil {
			observer(input, result)
		}
		return result, err
	}
}
