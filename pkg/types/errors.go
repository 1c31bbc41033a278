// Package types defines error types
package types

import (
	"errors"
	"fmt"
	"time"
)

// Predefined errors
var (
	// ErrBitmapCreation indicates the transferable snapshot of a source could not be built
	ErrBitmapCreation = errors.New("bitmap creation failed")

	// ErrWorkerRuntime indicates the execution context signaled a failure
	ErrWorkerRuntime = errors.New("worker runtime error")

	// ErrWorkerTimeout indicates no response arrived within the task deadline
	ErrWorkerTimeout = errors.New("worker timeout")

	// ErrTransfer indicates the ownership handoff itself failed
	ErrTransfer = errors.New("transfer failed")

	// ErrPoolTerminated indicates the pool was torn down before the task settled
	ErrPoolTerminated = errors.New("worker pool terminated")

	// ErrInvalidInput indicates invalid input
	ErrInvalidInput = errors.New("invalid input")

	// ErrDetached indicates a buffer whose ownership has already been transferred
	ErrDetached = errors.New("buffer already detached")
)

// ErrorKind classifies task failures
type ErrorKind int

const (
	// KindBitmapCreation is a pre-dispatch snapshot failure
	KindBitmapCreation ErrorKind = iota
	// KindWorkerRuntime is a failure reported by the execution context
	KindWorkerRuntime
	// KindWorkerTimeout is a missed deadline
	KindWorkerTimeout
	// KindTransfer is a failed ownership handoff
	KindTransfer
	// KindTerminated is a task rejected by pool teardown
	KindTerminated
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindBitmapCreation:
		return "BitmapCreationError"
	case KindWorkerRuntime:
		return "WorkerRuntimeError"
	case KindWorkerTimeout:
		return "WorkerTimeout"
	case KindTransfer:
		return "TransferError"
	case KindTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindBitmapCreation:
		return ErrBitmapCreation
	case KindWorkerRuntime:
		return ErrWorkerRuntime
	case KindWorkerTimeout:
		return ErrWorkerTimeout
	case KindTransfer:
		return ErrTransfer
	case KindTerminated:
		return ErrPoolTerminated
	default:
		return nil
	}
}

// TaskError is the rejection value of a pool future
type TaskError struct {
	// Kind classifies the failure
	Kind ErrorKind

	// TaskID identifies the failed task
	TaskID string

	// Cause is the underlying error, if any
	Cause error
}

// NewTaskError creates a TaskError
func NewTaskError(kind ErrorKind, taskID string, cause error) *TaskError {
	return &TaskError{Kind: kind, TaskID: taskID, Cause: cause}
}

// Error implements the error interface
func (e *TaskError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("task %s: %s", e.TaskID, e.Kind)
	}
	return fmt.Sprintf("task %s: %s: %v", e.TaskID, e.Kind, e.Cause)
}

// Unwrap returns the underlying error
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel of the error kind
func (e *TaskError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf reports the ErrorKind carried by err, if any
func KindOf(err error) (ErrorKind, bool) {
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Kind, true
	}
	return 0, false
}

// RetryableError represents a retryable error
type RetryableError struct {
	// Err is the underlying error
	Err error

	// Retryable indicates whether the error is retryable
	Retryable bool

	// RetryAfter is the suggested retry delay
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Transient marks err as retryable
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err, Retryable: true}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}
	return false
}

// GetRetryDelay returns the suggested retry delay
func GetRetryDelay(err error) time.Duration {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.RetryAfter
	}
	return 0
}
