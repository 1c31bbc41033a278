package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jzx17/cropflow/pkg/transform"
	"github.com/jzx17/cropflow/pkg/types"
)

const (
	// MaxWorkers is the hard cap on execution contexts per pool
	MaxWorkers = 8

	// DefaultTaskTimeout bounds the wait for a single response
	DefaultTaskTimeout = 5000 * time.Millisecond
)

// Hooks observe the pool. They run synchronously while the pool lock is held
// and must not call back into the pool.
type Hooks struct {
	// OnSubmit is called for every submitted task
	OnSubmit func(taskID string)

	// OnDispatch is called when a task is handed to an execution context
	OnDispatch func(taskID string, queueWait time.Duration)

	// OnSettle is called exactly once per settled future
	OnSettle func(s types.Settlement)

	// OnAbandon is called by Terminate for every future it leaves unsettled.
	// dispatched reports whether the task was held by an execution context.
	OnAbandon func(taskID string, dispatched bool)
}

// Config defines configuration for Pool
type Config struct {
	// Size is the number of execution contexts; 0 means min(GOMAXPROCS, MaxWorkers)
	Size int

	// TaskTimeout is the per-task response deadline
	TaskTimeout time.Duration

	// Renderer draws the transformed region; nil uses transform.NewRenderer(nil)
	Renderer Renderer

	// RejectOnTerminate settles in-flight and queued futures with ErrPoolTerminated
	// on Terminate instead of leaving them pending
	RejectOnTerminate bool

	// PinWorkers locks every execution context to its own OS thread and core
	PinWorkers bool

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// Logger (optional, defaults to slog.Default())
	Logger *slog.Logger

	// Hooks are optional observers
	Hooks Hooks
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		TaskTimeout: DefaultTaskTimeout,
		Clock:       types.NewRealClock(),
	}
}

// handle owns one execution context. It is either on the free-list or bound
// to exactly one in-flight dispatch.
type handle struct {
	slot int
	exec *execContext
	busy bool
}

// dispatch is a task bound to a handle until it settles
type dispatch struct {
	entry   *pendingEntry
	handle  *handle
	req     *Request
	timer   types.Timer
	cancel  context.CancelFunc
	started time.Time
	once    sync.Once
}

// Pool runs crop tasks on a fixed set of execution contexts. Tasks that find
// no idle context wait in a FIFO queue.
type Pool struct {
	config   *Config
	renderer Renderer
	clock    types.Clock
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	handles    []*handle
	idle       stack[*handle]
	queue      fifo[*pendingEntry]
	inflight   map[*handle]*dispatch
	terminated bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	timedOut  atomic.Int64
	cleanups  atomic.Int64
}

// NewPool creates a pool and starts its execution contexts
func NewPool(config *Config) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// parameter validation
	if config.Size < 0 {
		return nil, fmt.Errorf("pool size must not be negative, got %d", config.Size)
	}
	if config.TaskTimeout < 0 {
		return nil, fmt.Errorf("task timeout must not be negative, got %v", config.TaskTimeout)
	}
	if config.TaskTimeout == 0 {
		config.TaskTimeout = DefaultTaskTimeout
	}
	if config.Clock == nil {
		config.Clock = types.NewRealClock()
	}

	renderer := config.Renderer
	if renderer == nil {
		renderer = transform.NewRenderer(nil)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "worker_pool")

	size := ResolveSize(config.Size)
	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		config:   config,
		renderer: renderer,
		clock:    config.Clock,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		handles:  make([]*handle, size),
		inflight: make(map[*handle]*dispatch, size),
	}

	// push in reverse so the first pop yields slot 0
	for i := 0; i < size; i++ {
		p.handles[i] = &handle{slot: i, exec: p.spawn(i)}
	}
	for i := size - 1; i >= 0; i-- {
		p.idle.push(p.handles[i])
	}

	logger.Debug("worker pool started", "size", size, "task_timeout", config.TaskTimeout)
	return p, nil
}

// ResolveSize returns the number of execution contexts a pool configured with n creates
func ResolveSize(n int) int {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n > MaxWorkers {
		n = MaxWorkers
	}
	return n
}

func (p *Pool) spawn(slot int) *execContext {
	return newExecContext(slot, p.renderer, p.config.PinWorkers, p.logger)
}

// Submit schedules a task and returns its future. The source is snapshotted
// before a slot is taken; the snapshot's pixels move to the execution context
// at dispatch.
func (p *Pool) Submit(task Task) *Future[transform.Blob] {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	future := newFuture[transform.Blob]()
	entry := &pendingEntry{
		task:      task,
		future:    future,
		state:     types.TaskQueued,
		submitted: p.clock.Now(),
	}
	p.submitted.Add(1)

	frame, err := snapshot(task.Source)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.Hooks.OnSubmit != nil {
		p.config.Hooks.OnSubmit(task.ID)
	}

	if p.terminated {
		p.rejectLocked(entry, types.KindTerminated, nil)
		return future
	}

	if err != nil {
		kind := types.KindBitmapCreation
		if errors.Is(err, types.ErrDetached) {
			kind = types.KindTransfer
		}
		p.rejectLocked(entry, kind, err)
		return future
	}
	entry.frame = frame

	if h, ok := p.idle.pop(); ok {
		p.startLocked(h, entry)
	} else {
		p.queue.push(entry)
	}
	return future
}

// Crop submits a one-off task for source and waits for the result
func (p *Pool) Crop(ctx context.Context, source transform.Source, params transform.Params) (transform.Blob, error) {
	return p.Submit(NewTask(source, params)).GetWithContext(ctx)
}

func snapshot(source transform.Source) (*transform.Frame, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: nil source", types.ErrInvalidInput)
	}
	return source.Snapshot()
}

// startLocked binds h to e, or to the next queued entry that can be
// dispatched, and returns h to the free-list when nothing is left
func (p *Pool) startLocked(h *handle, e *pendingEntry) {
	for {
		if e == nil {
			next, ok := p.queue.pop()
			if !ok {
				h.busy = false
				p.idle.push(h)
				return
			}
			e = next
		}
		if p.dispatchLocked(h, e) {
			return
		}
		e = nil
	}
}

// dispatchLocked transfers the frame and posts the request. A failed handoff
// settles e and leaves h unbound.
func (p *Pool) dispatchLocked(h *handle, e *pendingEntry) bool {
	img, err := e.frame.Transfer()
	if err != nil {
		p.rejectLocked(e, types.KindTransfer, err)
		return false
	}
	width, height := e.frame.Bounds()

	ctx, cancel := context.WithCancel(p.ctx)
	req := newCropRequest(ctx, e.task, img, width, height)
	d := &dispatch{
		entry:   e,
		handle:  h,
		req:     req,
		cancel:  cancel,
		started: p.clock.Now(),
		timer:   p.clock.NewTimer(p.config.TaskTimeout),
	}

	if err := h.exec.post(req); err != nil {
		d.timer.Stop()
		cancel()
		p.retireLocked(h, "post failed")
		p.rejectLocked(e, types.KindWorkerRuntime, err)
		return false
	}

	h.busy = true
	e.state = types.TaskDispatched
	p.inflight[h] = d
	if p.config.Hooks.OnDispatch != nil {
		p.config.Hooks.OnDispatch(e.task.ID, d.started.Sub(e.submitted))
	}

	go p.await(d)
	return true
}

// await races the response against the deadline; exactly one of them settles
func (p *Pool) await(d *dispatch) {
	id := d.entry.task.ID
	select {
	case resp := <-d.req.reply:
		if resp.Type == MessageSuccess {
			p.settle(d, resp.Blob, nil, types.TaskCompleted)
			return
		}
		p.settle(d, transform.Blob{}, types.NewTaskError(types.KindWorkerRuntime, id, resp.Error), types.TaskFailed)
	case <-d.timer.C():
		cause := fmt.Errorf("no response within %v", p.config.TaskTimeout)
		p.settle(d, transform.Blob{}, types.NewTaskError(types.KindWorkerTimeout, id, cause), types.TaskTimedOut)
	case <-p.done:
	}
}

// settle resolves the future, releases the handle and dispatches the queue
// head as one critical section
func (p *Pool) settle(d *dispatch, blob transform.Blob, err error, state types.TaskState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminated {
		return
	}

	p.cleanup(d)
	h := d.handle
	delete(p.inflight, h)

	d.entry.state = state
	p.record(d.entry, err, true, p.clock.Since(d.started))
	d.entry.future.resolve(blob, err)

	if state == types.TaskTimedOut {
		p.retireLocked(h, "task timed out")
	}
	h.busy = false
	p.startLocked(h, nil)
}

// cleanup runs once per dispatch regardless of which path settled it
func (p *Pool) cleanup(d *dispatch) {
	d.once.Do(func() {
		d.timer.Stop()
		d.cancel()
		p.cleanups.Add(1)
	})
}

// retireLocked replaces the execution context behind h
func (p *Pool) retireLocked(h *handle, reason string) {
	h.exec.destroy()
	h.exec = p.spawn(h.slot)
	p.logger.Warn("execution context replaced", "slot", h.slot, "reason", reason)
}

func (p *Pool) rejectLocked(e *pendingEntry, kind types.ErrorKind, cause error) {
	err := types.NewTaskError(kind, e.task.ID, cause)
	e.state = types.TaskFailed
	p.record(e, err, false, 0)
	e.future.resolve(transform.Blob{}, err)
}

// record updates the counters and reports the settlement before the future resolves
func (p *Pool) record(e *pendingEntry, err error, dispatched bool, elapsed time.Duration) {
	state := types.TaskCompleted
	switch {
	case err == nil:
		p.completed.Add(1)
	case errors.Is(err, types.ErrWorkerTimeout):
		state = types.TaskTimedOut
		p.failed.Add(1)
		p.timedOut.Add(1)
	default:
		state = types.TaskFailed
		p.failed.Add(1)
	}
	if err != nil {
		p.logger.Debug("task failed", "task_id", e.task.ID, "error", err)
	}
	if p.config.Hooks.OnSettle != nil {
		p.config.Hooks.OnSettle(types.Settlement{
			TaskID:     e.task.ID,
			State:      state,
			Err:        err,
			Dispatched: dispatched,
			Duration:   elapsed,
		})
	}
}

// Terminate destroys every execution context and clears the free-list and the
// queue. Pending futures stay unsettled unless RejectOnTerminate is set.
// Later submissions are rejected with ErrPoolTerminated.
func (p *Pool) Terminate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminated {
		return
	}
	p.terminated = true
	close(p.done)
	p.cancel()

	for _, h := range p.handles {
		h.exec.destroy()
	}
	p.handles = nil
	p.idle.clear()

	inflight := p.inflight
	p.inflight = make(map[*handle]*dispatch)
	queued := p.queue.drain()

	for _, d := range inflight {
		p.cleanup(d)
		if p.config.RejectOnTerminate {
			err := types.NewTaskError(types.KindTerminated, d.entry.task.ID, nil)
			d.entry.state = types.TaskFailed
			p.record(d.entry, err, true, p.clock.Since(d.started))
			d.entry.future.resolve(transform.Blob{}, err)
		} else {
			p.abandon(d.entry, true)
		}
	}
	for _, e := range queued {
		if p.config.RejectOnTerminate {
			p.rejectLocked(e, types.KindTerminated, nil)
		} else {
			p.abandon(e, false)
		}
	}

	p.logger.Debug("worker pool terminated", "in_flight", len(inflight), "queued", len(queued))
}

func (p *Pool) abandon(e *pendingEntry, dispatched bool) {
	if p.config.Hooks.OnAbandon != nil {
		p.config.Hooks.OnAbandon(e.task.ID, dispatched)
	}
}

// Terminated reports whether Terminate has been called
func (p *Pool) Terminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

// Size returns the number of execution contexts
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// TaskTimeout returns the per-task deadline
func (p *Pool) TaskTimeout() time.Duration {
	return p.config.TaskTimeout
}

// Stats returns a snapshot of the pool counters
func (p *Pool) Stats() types.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return types.PoolStats{
		Size:      len(p.handles),
		Idle:      p.idle.len(),
		Busy:      len(p.inflight),
		Queued:    p.queue.len(),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		TimedOut:  p.timedOut.Load(),
	}
}
