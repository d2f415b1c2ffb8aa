package rendertree

// frameViewRunnable executes exactly one frame-view request and reports
// its completion to the owning execution.
//
// The execution, not the pool, owns a runnable: it is tracked in the
// in-flight set from submission until its completion handler runs, so its
// lifetime never depends on pool internals.
type frameViewRunnable struct {
	exec    *ExecutionData
	request *FrameViewRequest

	// fromWorker is set when the runnable is submitted to the task pool
	// rather than run inline; it is forwarded to the queue manager so a
	// synchronous manager can tell whether it is being notified from a
	// worker goroutine.
	fromWorker bool
}

// Run renders the request unless the episode has already failed, in which
// case the existing failure is propagated without calling into the
// effect. Always invokes the execution's completion handler exactly once.
func (r *frameViewRunnable) Run() {
	e := r.exec

	// Another task of this episode may have failed since dispatch.
	st := e.Status()
	if !st.IsFailure() {
		effect := r.request.Effect()

		var done func(Status)
		if sc := e.render.stats; sc != nil {
			done = sc.TaskStarted(effect.Node().Name())
		}

		st = effect.Render(e, r.request)

		if done != nil {
			done(st)
		}
	}

	e.onTaskFinished(r, r.request, st, r.fromWorker)
}
