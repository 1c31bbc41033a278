package worker

import (
	"time"

	"github.com/google/uuid"

	"github.com/jzx17/cropflow/pkg/transform"
	"github.com/jzx17/cropflow/pkg/types"
)

// Task is an immutable crop request. The pixel buffer behind Source is handed
// to an execution context at dispatch.
type Task struct {
	ID     string
	Source transform.Source
	Params transform.Params
}

// NewTask creates a task with a random ID
func NewTask(source transform.Source, params transform.Params) Task {
	return Task{
		ID:     uuid.NewString(),
		Source: source,
		Params: params,
	}
}

// pendingEntry is a snapshotted task waiting for (or holding) a handle
type pendingEntry struct {
	task      Task
	frame     *transform.Frame
	future    *Future[transform.Blob]
	state     types.TaskState
	submitted time.Time
}
