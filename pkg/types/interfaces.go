// Package types defines core interfaces and types shared by the pool, limiter and pipeline
package types

import (
	"time"
)

// TaskState is the lifecycle state of a submitted task
type TaskState int

const (
	// TaskQueued waits in the overflow queue for an idle handle
	TaskQueued TaskState = iota
	// TaskDispatched is running inside an execution context
	TaskDispatched
	// TaskCompleted settled with a blob
	TaskCompleted
	// TaskFailed settled with an error other than a timeout
	TaskFailed
	// TaskTimedOut settled because the deadline elapsed
	TaskTimedOut
)

// String returns the string representation of TaskState
func (s TaskState) String() string {
	switch s {
	case TaskQueued:
		return "Queued"
	case TaskDispatched:
		return "Dispatched"
	case TaskCompleted:
		return "Completed"
	case TaskFailed:
		return "Failed"
	case TaskTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether the state is a settlement state
func (s TaskState) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskTimedOut
}

// PoolStats defines statistics for worker pools
type PoolStats struct {
	// Size is the number of worker handles
	Size int

	// Idle is the number of handles on the free-list
	Idle int

	// Busy is the number of dispatched, unsettled tasks
	Busy int

	// Queued is the number of pending entries waiting for a handle
	Queued int

	// Submitted counts every Submit call
	Submitted int64

	// Completed counts tasks settled with a blob
	Completed int64

	// Failed counts tasks settled with an error, timeouts included
	Failed int64

	// TimedOut counts tasks settled by the deadline
	TimedOut int64
}

// Settlement describes how a task left the pool
type Settlement struct {
	TaskID string
	State  TaskState
	Err    error

	// Dispatched is false for tasks rejected before reaching an execution context
	Dispatched bool

	// Duration is the time from dispatch to settlement
	Duration time.Duration
}
