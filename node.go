package rendertree

// Node is one node of the compositing graph as seen by the engine.
//
// The engine never walks node inputs itself; the graph model performs the
// recursive request pass. The only structural knowledge the engine needs
// is the pass-through capability, used when resolving the render target
// at construction: a placeholder node (e.g. a group's input stub) renders
// nothing itself and redirects to the real upstream node of the enclosing
// composition.
type Node interface {
	// Name returns a stable, human-readable node name used in logs and
	// stats. Names are unique within one graph.
	Name() string

	// Effect returns the effect instance implementing this node.
	Effect() EffectInstance

	// IsPassThrough reports whether this node is a placeholder that
	// cannot render and must be redirected to another node.
	IsPassThrough() bool

	// PassThroughTarget returns the node a pass-through placeholder
	// redirects to, or nil if the redirection cannot be resolved.
	// Only meaningful when IsPassThrough is true.
	PassThroughTarget() Node
}

// RenderCloneKey identifies one render-local clone of an effect: the
// (time, view) it was cloned for and the render that owns it.
type RenderCloneKey struct {
	Time   TimeValue
	View   ViewIdx
	Render *TreeRender
}

// EffectInstance is the per-node render algorithm boundary. The engine
// calls these operations but never inspects their internals; pixel-level
// work happens entirely behind this interface.
type EffectInstance interface {
	// Node returns the node this effect implements.
	Node() Node

	// IsRenderClone reports whether this instance is a render-local clone
	// rather than the main (editable) instance.
	IsRenderClone() bool

	// CreateRenderClone returns a clone of this effect bound to the given
	// key, registering any allocated state with the owning render. The
	// clone isolates concurrent renders of the same graph from each other.
	CreateRenderClone(key RenderCloneKey) (EffectInstance, error)

	// RegionOfDefinition computes the canonical region this effect can
	// produce at the given time, view and scale.
	RegionOfDefinition(time TimeValue, view ViewIdx, scale RenderScale) (RectD, Status)

	// ProducedPlanes returns the image planes this effect produces at the
	// given time and view, preferred plane first.
	ProducedPlanes(time TimeValue, view ViewIdx) ([]ImagePlaneDesc, Status)

	// RequestRender performs the recursive request pass: it materializes
	// every FrameViewRequest needed to satisfy rendering this effect over
	// roi, wires dependency edges, registers each request with exec via
	// AddTask, and returns this effect's own request.
	RequestRender(time TimeValue, view ViewIdx, proxyScale RenderScale, mipMapLevel uint32,
		plane ImagePlaneDesc, roi RectD, exec *ExecutionData) (*FrameViewRequest, Status)

	// Render performs the actual render of one frame-view request. It is
	// called at most once per request, only after every dependency of the
	// request has completed. Long-running implementations must poll the
	// owning render's abort flag.
	Render(exec *ExecutionData, req *FrameViewRequest) Status
}

// RenderClone is any render-local state registered with a TreeRender.
// Clones are released explicitly when the render's owner tears it down;
// nothing reclaims them implicitly.
type RenderClone interface {
	// ReleaseRenderClone detaches the clone from the given render and
	// frees any state held for it.
	ReleaseRenderClone(r *TreeRender)
}

// Task is a unit of work submitted to a TaskPool.
type Task interface {
	Run()
}

// TaskPool runs submitted tasks on worker goroutines. The engine keeps
// ownership of every task it submits: the pool runs them but must not
// retain them after Run returns.
type TaskPool interface {
	// Submit schedules the task to run on an available worker.
	// Submit must not block on the task's own completion.
	Submit(t Task)
}

// QueueManager coordinates scheduling across concurrent renders. The
// engine notifies it after every task completion; the manager decides
// whether and where to pull further work.
//
// The onWorker flag reports whether the notification comes from a pool
// worker goroutine. A manager that synchronously pulls more work on
// notification needs this to avoid deadlocking a worker against itself.
//
// Abort is cooperative: a task that ignores the abort flag for longer
// than AbortTimeout should be reported as stuck by the manager's
// watchdog, not forcibly terminated.
type QueueManager interface {
	NotifyTaskFinished(exec *ExecutionData, onWorker bool)
}

// RenderContext is an opaque handle to a GPU or CPU rendering context.
// The engine assigns contexts to a render but never uses them itself;
// effects retrieve them through the render's accessors.
type RenderContext interface {
	// IsGPU reports whether this context targets a GPU device.
	IsGPU() bool
}

// ContextPool hands out rendering contexts. Acquisition may fail (no
// device, exhausted pool); the engine tolerates failure by proceeding
// without a context, so effects must handle a nil context.
type ContextPool interface {
	// GPUContext returns a GPU rendering context. When retrieveLast is
	// true the pool returns the most recently handed out context if any,
	// so repeated paint strokes keep rendering to the same texture.
	GPUContext(retrieveLast bool) (RenderContext, error)

	// CPUContext returns a CPU (software) rendering context, with the
	// same retrieveLast semantics as GPUContext.
	CPUContext(retrieveLast bool) (RenderContext, error)
}

// Settings supplies the process-wide policies the engine reads once at
// render construction. The values are frozen into the render; later
// changes to the store do not affect in-flight renders.
type Settings interface {
	// NaNHandling reports whether effects should scan for and fix NaN
	// pixel values.
	NaNHandling() bool

	// TransformConcatenation reports whether chains of transform nodes
	// may be concatenated into a single resampling.
	TransformConcatenation() bool
}

// PaintItem is the item being painted during an interactive paint
// session. The render reuses the item's pinned context pair across
// strokes so every stroke composites onto the same texture.
type PaintItem interface {
	// DrawingContexts returns the context pair pinned to this paint
	// session, or ok=false if none has been pinned yet.
	DrawingContexts() (gpu, cpu RenderContext, ok bool)

	// SetDrawingContexts pins a context pair to this paint session.
	SetDrawingContexts(gpu, cpu RenderContext)

	// StrokeBounds returns the pixel area affected by the stroke being
	// drawn, used to restrict viewer updates.
	StrokeBounds() RectI
}

// StatsCollector receives per-task timing from the engine. Implemented
// by stats.RenderStats; any collector may be injected instead.
type StatsCollector interface {
	// TaskStarted records that the given node began rendering one
	// frame-view task. The returned function is called when the task
	// finishes, with its final status.
	TaskStarted(nodeName string) func(st Status)
}
