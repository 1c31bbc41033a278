package worker

import (
	"context"
	"sync"
)

// Future is the eventual result of a submitted task. It settles exactly once.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// resolve settles the future; later calls are ignored and report false
func (f *Future[T]) resolve(value T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}

// Done is closed when the future settles
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether a result is available
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the future settles
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.value, f.err
}

// GetWithContext blocks until the future settles or ctx is done
func (f *Future[T]) GetWithContext(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
