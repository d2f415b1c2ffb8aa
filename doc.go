// Package rendertree executes a compositing node-graph render as a DAG
// of per-node, per-frame, per-view tasks.
//
// # Overview
//
// One render request is owned by a [TreeRender]. The render decomposes
// the graph into frame-view requests (one node at one time and view) and
// schedules them through one or more [ExecutionData] episodes: a main
// episode for the requested node, plus auxiliary episodes for any
// side-requested results (e.g. a color-picker probe upstream of the
// viewer). Tasks run concurrently as soon as their dependencies have
// completed; failure is sticky and cancellation is cooperative.
//
// # Quick Start
//
//	render := rendertree.New(rendertree.RenderArgs{
//	    TreeRoot: viewerNode,
//	    Time:     12,
//	    Pool:     workerpool.New(0),
//	})
//	if render.Status().IsFailure() {
//	    // handle construction failure
//	}
//
//	exec := render.CreateMainExecutionData()
//	for !exec.Status().IsFailure() && exec.HasTasksToExecute() {
//	    exec.ExecuteAvailableTasks(rendertree.DrainFrontier)
//	    // interleave caller duties here; completions re-fill the frontier
//	}
//	result := render.OutputRequest()
//
// # Architecture
//
// The engine is a pure scheduler. Pixel work, the node graph, the task
// pool, GPU contexts and settings are collaborators injected through
// interfaces (see [RenderArgs]); default implementations live in the
// sub-packages workerpool, contextpool, settings, stats and cache.
//
// # Concurrency
//
// Each execution guards its task set and dependency-free frontier with
// one lock, never held across effect code. Completion handlers re-enter
// the scheduler from worker goroutines; result fan-out and the render's
// sticky status use their own synchronization. Abort is advisory:
// [TreeRender.SetRenderAborted] flips a flag that running effects are
// expected to poll.
package rendertree
