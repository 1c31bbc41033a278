// Package limiter runs a batch of asynchronous operations with a concurrency
// ceiling and tolerates partial failure.
package limiter

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Op is the operation applied to each input. index is the input's position.
type Op[T, R any] func(ctx context.Context, input T, index int) (R, error)

// RunBounded applies op to every input with at most limit operations in
// flight. The result has the same length as inputs; position i holds the
// result of inputs[i], or nil when that operation failed, panicked or was not
// started because ctx was done. Failures are logged and never returned.
// RunBounded returns once every started operation has settled.
func RunBounded[T, R any](ctx context.Context, inputs []T, limit int, op Op[T, R], opts ...Option) []*R {
	results := make([]*R, len(inputs))
	if len(inputs) == 0 {
		return results
	}
	if limit < 1 {
		limit = 1
	}
	cfg := newRunConfig(opts)

	var g errgroup.Group
	g.SetLimit(limit)

	var skipped atomic.Int64
	for i := range inputs {
		if ctx.Err() != nil {
			skipped.Add(int64(len(inputs) - i))
			break
		}
		if cfg.limiter != nil {
			if err := cfg.limiter.Wait(ctx); err != nil {
				skipped.Add(int64(len(inputs) - i))
				break
			}
		}

		// blocks until a slot is free
		g.Go(func() error {
			if ctx.Err() != nil {
				skipped.Add(1)
				return nil
			}
			r, err := call(ctx, op, inputs[i], i)
			if err != nil {
				cfg.logger.LogAttrs(ctx, slog.LevelWarn, "operation failed",
					slog.String("stage", cfg.name),
					slog.Int("index", i),
					slog.Any("error", err),
				)
			} else {
				results[i] = &r
			}
			if cfg.onSettle != nil {
				cfg.onSettle(i, err == nil)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := skipped.Load(); n > 0 {
		cfg.logger.LogAttrs(ctx, slog.LevelWarn, "batch cancelled",
			slog.String("stage", cfg.name),
			slog.Int64("skipped", n),
			slog.Any("error", context.Cause(ctx)),
		)
	}
	return results
}

// call runs op and converts a panic into an error
func call[T, R any](ctx context.Context, op Op[T, R], input T, index int) (r R, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return op(ctx, input, index)
}

// Compact returns the non-nil results in order
func Compact[R any](results []*R) []R {
	out := make([]R, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// Count returns the number of non-nil results
func Count[R any](results []*R) int {
	n := 0
	for _, r := range results {
		if r != nil {
			n++
		}
	}
	return n
}
