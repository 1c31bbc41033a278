/*
Package worker runs CPU-heavy crop/scale/rotate work on a fixed pool of
isolated execution contexts.

# Overview

A Pool owns up to MaxWorkers execution contexts, each behind a handle that is
either idle on a free-list or bound to one in-flight task. Submit never blocks:
a task is dispatched at once when a handle is idle and otherwise waits in a
strict FIFO queue. When a task settles its handle takes the queue head in the
same critical section, so a freed slot is never left idle while work waits.

# Dispatch

Each task goes through the same sequence:
  - the Source is snapshotted into a transferable Frame; a failure settles the
    future with ErrBitmapCreation and takes no slot
  - the frame's pixels are transferred to the execution context; a frame that
    was already detached settles with ErrTransfer
  - the response races a per-task deadline (DefaultTaskTimeout); the first of
    success, error or timeout settles the future
  - cleanup (timer stop, request context cancel) runs exactly once

A timed-out execution context is destroyed and replaced behind the same
handle. Panics inside a render are recovered and reported as ErrWorkerRuntime.

# Usage

	pool, err := worker.NewPool(&worker.Config{Size: 4})
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Terminate()

	blob, err := pool.Submit(worker.NewTask(bitmap, params)).Get()
	if errors.Is(err, types.ErrWorkerTimeout) {
		log.Println("render timed out")
	}

# Termination

Terminate destroys every context and clears the free-list and the queue.
Futures that were in flight or queued stay pending unless
Config.RejectOnTerminate is set, in which case they settle with
ErrPoolTerminated.
*/
package worker
