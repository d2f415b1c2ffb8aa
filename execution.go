package rendertree

import (
	"log/slog"
	"sync"
)

// DrainFrontier is the sentinel task count for
// [ExecutionData.ExecuteAvailableTasks]: pull every currently
// dependency-free task instead of an explicit maximum.
const DrainFrontier = -1

// ExecutionData is one scheduling episode over the task DAG of a render:
// the main execution for the originally requested node, or an auxiliary
// one for a side-requested result.
//
// It owns the full task set, maintains the dependency-free frontier, and
// exposes a pull-based scheduling API: the driving loop repeatedly calls
// ExecuteAvailableTasks and checks Status and HasTasksToExecute between
// batches. Completion callbacks re-enter the scheduler from whatever
// goroutine ran the task; all shared state is guarded by one lock per
// execution, never held across a call into effect code.
type ExecutionData struct {
	render *TreeRender

	// isMainExecution marks the principal episode of the tree; auxiliary
	// episodes produce side-requested results only.
	isMainExecution bool

	// plane and canonicalRoI are resolved for this episode's root at
	// construction.
	plane        ImagePlaneDesc
	canonicalRoI RectD

	// status is shared by all tasks of the episode; first failure wins.
	status stickyStatus

	mu            sync.Mutex
	tasks         map[*FrameViewRequest]*taskState
	frontier      []*FrameViewRequest
	nextSeq       uint64
	inflight      map[*frameViewRunnable]struct{}
	outputRequest *FrameViewRequest
}

// taskState is the scheduler-side bookkeeping of one task. Frontier
// membership lives here so a task can join the frontier at most once.
type taskState struct {
	seq        uint64
	inFrontier bool
}

func newExecutionData(render *TreeRender, isMain bool) *ExecutionData {
	return &ExecutionData{
		render:          render,
		isMainExecution: isMain,
		tasks:           make(map[*FrameViewRequest]*taskState),
		inflight:        make(map[*frameViewRunnable]struct{}),
	}
}

// IsTreeMainExecution reports whether this is the principal execution of
// the owning render.
func (e *ExecutionData) IsTreeMainExecution() bool { return e.isMainExecution }

// TreeRender returns the render that owns this execution.
func (e *ExecutionData) TreeRender() *TreeRender { return e.render }

// Status returns the status shared by the episode's tasks. Once any task
// reports a failure, Status returns that failure forever after.
func (e *ExecutionData) Status() Status { return e.status.get() }

// Plane returns the image plane resolved for this episode's root.
func (e *ExecutionData) Plane() ImagePlaneDesc { return e.plane }

// CanonicalRoI returns the canonical region resolved for this episode's
// root.
func (e *ExecutionData) CanonicalRoI() RectD { return e.canonicalRoI }

// OutputRequest returns the request produced for this episode's root, or
// nil if construction failed before the request pass completed.
func (e *ExecutionData) OutputRequest() *FrameViewRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outputRequest
}

// AddTask registers a request with this execution. Called by the graph
// model for every request materialized during the request pass. Requests
// with no dependencies are immediately eligible for dispatch.
// Registering the same request twice is a no-op.
func (e *ExecutionData) AddTask(req *FrameViewRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.tasks[req]; ok {
		return
	}
	st := &taskState{seq: e.nextSeq}
	e.nextSeq++
	e.tasks[req] = st
	if req.NumDependencies(e) == 0 {
		e.pushFrontierLocked(req, st)
	}
	Logger().Debug("task added",
		slog.String("node", req.Effect().Node().Name()),
		slog.Bool("dependencyFree", st.inFrontier))
}

// pushFrontierLocked puts req on the frontier if it is not already
// there. A task enters the frontier at most once. Caller must hold e.mu,
// and req must be a member of the task set.
func (e *ExecutionData) pushFrontierLocked(req *FrameViewRequest, st *taskState) {
	if st.inFrontier {
		return
	}
	st.inFrontier = true
	e.frontier = append(e.frontier, req)
}

// popFrontierLocked removes and returns the highest-priority frontier
// task: the one with the most dependents, since finishing it frees the
// most downstream work, with ties broken by insertion sequence so
// selection is deterministic for a fixed graph state. Returns nil when
// the frontier is empty. Caller must hold e.mu.
//
// Priority is evaluated at pull time: listener edges are still being
// wired while the request pass seeds the frontier, so a priority
// captured at insertion could go stale.
func (e *ExecutionData) popFrontierLocked() *FrameViewRequest {
	if len(e.frontier) == 0 {
		return nil
	}
	best := 0
	bestListeners := e.frontier[0].NumListeners(e)
	bestSeq := e.taskSeqLocked(e.frontier[0])
	for i := 1; i < len(e.frontier); i++ {
		l := e.frontier[i].NumListeners(e)
		seq := e.taskSeqLocked(e.frontier[i])
		if l > bestListeners || (l == bestListeners && seq < bestSeq) {
			best, bestListeners, bestSeq = i, l, seq
		}
	}
	req := e.frontier[best]
	e.frontier[best] = e.frontier[len(e.frontier)-1]
	e.frontier = e.frontier[:len(e.frontier)-1]
	if st, ok := e.tasks[req]; ok {
		st.inFrontier = false
	}
	return req
}

// taskSeqLocked returns the insertion sequence of req. Caller must hold
// e.mu.
func (e *ExecutionData) taskSeqLocked(req *FrameViewRequest) uint64 {
	if st, ok := e.tasks[req]; ok {
		return st.seq
	}
	return 0
}

// frontierLenLocked returns the current frontier size. Caller must hold
// e.mu.
func (e *ExecutionData) frontierLenLocked() int { return len(e.frontier) }

// HasTasksToExecute reports whether any task of the episode has not yet
// completed. The episode is finished when this returns false.
func (e *ExecutionData) HasTasksToExecute() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks) > 0
}

// ExecuteAvailableTasks pulls up to maxTasks tasks off the frontier in
// priority order and dispatches them. Pass [DrainFrontier] to pull every
// currently eligible task.
//
// Tasks that still need an actual render are submitted to the task pool;
// the returned count is the number of such worker dispatches. Tasks whose
// result already exists (served from a cache) and tasks pulled after the
// episode has failed are finalized synchronously on the calling
// goroutine, without consuming a worker and without being counted.
//
// The caller is expected to interleave ExecuteAvailableTasks with its own
// duties, checking Status between batches; completions re-fill the
// frontier concurrently.
func (e *ExecutionData) ExecuteAvailableTasks(maxTasks int) int {
	remaining := maxTasks
	started := 0

	e.mu.Lock()
	for remaining == DrainFrontier || remaining > 0 {
		req := e.popFrontierLocked()
		if req == nil {
			break
		}

		r := &frameViewRunnable{exec: e, request: req}

		if req.Status() == RequestStatusNotRendered && !e.status.get().IsFailure() {
			// Only consume a worker for tasks that actually render.
			// The execution owns the runnable's lifetime, not the pool.
			r.fromWorker = true
			e.inflight[r] = struct{}{}
			e.mu.Unlock()
			e.render.pool.Submit(r)
			e.mu.Lock()
			if remaining != DrainFrontier {
				remaining--
			}
			started++
		} else {
			e.mu.Unlock()
			r.Run()
			e.mu.Lock()
		}
	}
	e.mu.Unlock()

	return started
}

// onTaskFinished is the completion handler invoked by a runnable from
// whatever goroutine ran the task. It performs the task's terminal
// bookkeeping: drop the dependency stash, merge the status, remove the
// task from the set, unblock listeners, then publish the result and
// notify the queue manager outside the lock.
func (e *ExecutionData) onTaskFinished(r *frameViewRunnable, req *FrameViewRequest, st Status, onWorker bool) {
	// Free input results held only for the pending duration of this task.
	req.ClearRenderedDependencies(e)

	e.mu.Lock()
	e.status.merge(st)

	// A task leaves the task set exactly once, at completion.
	delete(e.tasks, req)
	if r != nil {
		delete(e.inflight, r)
	}

	// Listeners are decremented even after a failure so every task's
	// bookkeeping converges; failed episodes simply stop dispatching new
	// renders, they do not strand tasks.
	for _, listener := range req.Listeners(e) {
		left := listener.MarkDependencyRendered(e, req)
		if left == 0 {
			if ls, ok := e.tasks[listener]; ok {
				e.pushFrontierLocked(listener, ls)
			}
		}
	}
	merged := e.status.get()
	e.mu.Unlock()

	Logger().Debug("task finished",
		slog.String("node", req.Effect().Node().Name()),
		slog.String("status", st.String()))

	e.render.SetResults(req, merged)
	e.render.queue.NotifyTaskFinished(e, onWorker)
}
