package rendertree

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// AbortTimeout is how long a cooperating watchdog should wait after
// SetRenderAborted before declaring a still-running task's goroutine
// stuck and reporting it. The engine itself never preempts tasks.
const AbortTimeout = 5 * time.Second

// RenderArgs are the immutable parameters of one render request.
// TreeRoot is required; zero values of the remaining fields select
// sensible defaults.
type RenderArgs struct {
	// TreeRoot is the node whose image is requested. If it is a
	// pass-through placeholder it is resolved to its redirect target at
	// construction.
	TreeRoot Node

	// Time and View select the frame-view to render.
	Time TimeValue
	View ViewIdx

	// ProxyScale is the project-level proxy scale. The zero value is
	// treated as the identity scale.
	ProxyScale RenderScale

	// MipMapLevel selects an additional power-of-two downscale.
	MipMapLevel uint32

	// Plane is the image plane to render. A zero-component plane means
	// "resolve the root's default output plane".
	Plane ImagePlaneDesc

	// CanonicalRoI restricts the render to a region. A null rectangle
	// means "resolve the root's region of definition".
	CanonicalRoI RectD

	// ExtraNodesToSample lists upstream nodes whose results the caller
	// also wants captured, e.g. for a color picker probing the image
	// feeding the viewer.
	ExtraNodesToSample []Node

	// ActivePaintItem, when non-nil, marks this render as part of an
	// interactive paint session; the session's pinned context pair is
	// reused so strokes keep compositing onto the same texture.
	ActivePaintItem PaintItem

	// Stats, when non-nil, receives per-task timing.
	Stats StatsCollector

	// Draft requests a lower-quality but faster render.
	Draft bool

	// Playback marks the render as part of continuous playback.
	Playback bool

	// BypassCache forces effects to re-render even on cache hits.
	BypassCache bool

	// PreventConcurrentRenders asks the caller-level queue not to
	// schedule two renders of this tree concurrently. The engine does not
	// enforce it; it only exposes the flag.
	PreventConcurrentRenders bool

	// Pool runs the render's tasks. Nil selects a spawn-per-task
	// fallback; production callers inject a bounded pool such as
	// workerpool.New.
	Pool TaskPool

	// Contexts supplies GPU/CPU rendering contexts. Nil means the render
	// proceeds context-less.
	Contexts ContextPool

	// Settings is read once at construction; nil freezes the defaults
	// (NaN handling and concatenation both enabled).
	Settings Settings

	// Queue is notified after every task completion. Nil selects a no-op
	// manager.
	Queue QueueManager
}

// TreeRender owns one render request end to end: its immutable
// parameters, the aggregate status, the abort flag, the assigned
// rendering contexts, the render-local effect clones, and the fan-out of
// produced results. It spawns one main execution episode and zero or
// more auxiliary ones over its lifetime.
//
// A TreeRender never reports errors by panicking: construction failures
// are observed through Status.
type TreeRender struct {
	args RenderArgs

	// root is the resolved render target (after pass-through
	// redirection).
	root Node

	state   stickyStatus
	aborted atomic.Int64

	// Policies frozen from the settings store at construction.
	handleNaNs        bool
	useConcatenations bool

	gpuContext RenderContext
	cpuContext RenderContext

	clonesMu     sync.Mutex
	renderClones []RenderClone

	resultsMu     sync.Mutex
	outputRequest *FrameViewRequest
	extraResults  map[Node]*FrameViewRequest
	strokeArea    RectI
	strokeAreaSet bool

	pool  TaskPool
	queue QueueManager
	stats StatsCollector
}

// goPool is the fallback TaskPool: one goroutine per task, unbounded.
type goPool struct{}

func (goPool) Submit(t Task) { go t.Run() }

// nopQueueManager ignores completion notifications.
type nopQueueManager struct{}

func (nopQueueManager) NotifyTaskFinished(*ExecutionData, bool) {}

// New creates a render for the given arguments. It never returns nil and
// never panics: if target resolution or collaborator initialization
// fails, the returned render reports a failure Status and must not be
// scheduled.
func New(args RenderArgs) *TreeRender {
	if (args.ProxyScale == RenderScale{}) {
		args.ProxyScale = IdentityScale
	}

	r := &TreeRender{
		args:              args,
		handleNaNs:        true,
		useConcatenations: true,
		extraResults:      make(map[Node]*FrameViewRequest),
		pool:              args.Pool,
		queue:             args.Queue,
		stats:             args.Stats,
	}
	if r.pool == nil {
		r.pool = goPool{}
	}
	if r.queue == nil {
		r.queue = nopQueueManager{}
	}

	root := args.TreeRoot
	if root == nil {
		r.state.merge(StatusFailed)
		return r
	}
	if root.IsPassThrough() {
		// A placeholder cannot render itself; redirect to the real
		// upstream node of the enclosing composition.
		target := root.PassThroughTarget()
		if target == nil {
			r.state.merge(StatusFailed)
			return r
		}
		root = target
	}
	r.root = root

	if err := r.init(); err != nil {
		r.state.merge(StatusFailed)
	}
	return r
}

// init freezes settings, seeds the auxiliary result slots and assigns
// rendering contexts. A panicking collaborator is converted into a
// failure status rather than escaping to the caller.
func (r *TreeRender) init() (err error) {
	defer func() {
		if p := recover(); p != nil {
			Logger().Warn("render initialization panicked", slog.Any("panic", p))
			err = ErrInitFailed
		}
	}()

	if s := r.args.Settings; s != nil {
		r.handleNaNs = s.NaNHandling()
		r.useConcatenations = s.TransformConcatenation()
	}

	// Every requested auxiliary node gets an empty slot up front; slots
	// are filled first-writer-wins as results appear.
	for _, n := range r.args.ExtraNodesToSample {
		r.extraResults[n] = nil
	}

	r.fetchContexts()
	return nil
}

// fetchContexts assigns the GPU and CPU contexts used for the whole
// render. During a paint session the pair pinned to the item is reused
// for texture continuity across strokes. Acquisition failures are logged
// and swallowed: the render proceeds context-less and effects must
// tolerate nil contexts.
func (r *TreeRender) fetchContexts() {
	pool := r.args.Contexts
	if item := r.args.ActivePaintItem; item != nil {
		gpu, cpu, ok := item.DrawingContexts()
		if !ok && pool != nil {
			var gpuErr, cpuErr error
			gpu, gpuErr = pool.GPUContext(true)
			cpu, cpuErr = pool.CPUContext(true)
			if gpuErr != nil || cpuErr != nil {
				Logger().Warn("paint context acquisition failed",
					slog.Any("gpuErr", gpuErr), slog.Any("cpuErr", cpuErr))
			}
			if gpu != nil || cpu != nil {
				item.SetDrawingContexts(gpu, cpu)
			}
		}
		r.gpuContext = gpu
		r.cpuContext = cpu
		return
	}

	if pool == nil {
		return
	}
	gpu, gpuErr := pool.GPUContext(false)
	cpu, cpuErr := pool.CPUContext(false)
	if gpuErr != nil || cpuErr != nil {
		Logger().Warn("context acquisition failed",
			slog.Any("gpuErr", gpuErr), slog.Any("cpuErr", cpuErr))
	}
	r.gpuContext = gpu
	r.cpuContext = cpu
}

// createExecutionData builds one execution episode rooted at root. plane
// and roi may be nil, in which case they are resolved by querying the
// root's render clone; a resolution failure fails the episode (and, for
// the main episode, the render once its status is published).
func (r *TreeRender) createExecutionData(isMain bool, root Node, tm TimeValue, view ViewIdx,
	proxyScale RenderScale, mipMapLevel uint32, plane *ImagePlaneDesc, roi *RectD) *ExecutionData {

	exec := newExecutionData(r, isMain)

	if st := r.state.get(); st.IsFailure() {
		exec.status.merge(st)
		return exec
	}

	clone, err := root.Effect().CreateRenderClone(RenderCloneKey{Time: tm, View: view, Render: r})
	if err != nil || clone == nil {
		exec.status.merge(StatusFailed)
		return exec
	}

	if plane != nil {
		exec.plane = *plane
	} else {
		planes, st := clone.ProducedPlanes(tm, view)
		if st.IsFailure() {
			exec.status.merge(st)
			return exec
		}
		if len(planes) > 0 {
			exec.plane = planes[0]
		}
	}

	if roi != nil {
		exec.canonicalRoI = *roi
	} else {
		rod, st := clone.RegionOfDefinition(tm, view, CombinedScale(proxyScale, mipMapLevel))
		if st.IsFailure() {
			exec.status.merge(st)
			return exec
		}
		exec.canonicalRoI = rod
	}

	// The request pass materializes the whole task DAG and seeds the
	// frontier with the zero-dependency tasks.
	out, st := clone.RequestRender(tm, view, proxyScale, mipMapLevel, exec.plane, exec.canonicalRoI, exec)
	if st.IsFailure() {
		exec.status.merge(st)
		return exec
	}

	exec.mu.Lock()
	exec.outputRequest = out
	frontierEmpty := exec.frontierLenLocked() == 0
	exec.mu.Unlock()

	// A successful request pass must leave something runnable. A graph
	// with tasks but an empty frontier would stall the episode forever,
	// so treat it as a construction failure.
	if frontierEmpty {
		exec.status.merge(StatusFailed)
	}
	return exec
}

// CreateMainExecutionData builds the principal execution episode for the
// render's own target, time and view. Check the episode's Status before
// scheduling it.
func (r *TreeRender) CreateMainExecutionData() *ExecutionData {
	var plane *ImagePlaneDesc
	if r.args.Plane.NumComponents() != 0 {
		plane = &r.args.Plane
	}
	var roi *RectD
	if !r.args.CanonicalRoI.IsNull() {
		roi = &r.args.CanonicalRoI
	}
	return r.createExecutionData(true, r.root, r.args.Time, r.args.View,
		r.args.ProxyScale, r.args.MipMapLevel, plane, roi)
}

// CreateSubExecutionData builds an auxiliary execution episode rooted at
// another node of the same graph, used to obtain side-results not
// produced incidentally by the main episode.
func (r *TreeRender) CreateSubExecutionData(root Node, tm TimeValue, view ViewIdx,
	proxyScale RenderScale, mipMapLevel uint32, plane *ImagePlaneDesc, roi *RectD) *ExecutionData {
	return r.createExecutionData(false, root, tm, view, proxyScale, mipMapLevel, plane, roi)
}

// ExtraRequestedResultsExecutionData returns one auxiliary execution for
// every requested extra node whose result slot is still empty after the
// main episode. Nodes already captured incidentally yield no episode.
func (r *TreeRender) ExtraRequestedResultsExecutionData() []*ExecutionData {
	var missing []Node
	r.resultsMu.Lock()
	for node, req := range r.extraResults {
		if req == nil {
			missing = append(missing, node)
		}
	}
	r.resultsMu.Unlock()

	var plane *ImagePlaneDesc
	if r.args.Plane.NumComponents() != 0 {
		plane = &r.args.Plane
	}
	var roi *RectD
	if !r.args.CanonicalRoI.IsNull() {
		roi = &r.args.CanonicalRoI
	}

	execs := make([]*ExecutionData, 0, len(missing))
	for _, node := range missing {
		execs = append(execs, r.CreateSubExecutionData(node, r.args.Time, r.args.View,
			r.args.ProxyScale, r.args.MipMapLevel, plane, roi))
	}
	return execs
}

// SetResults merges st into the render's aggregate status and files the
// request into its result slot: the output slot if its node is the render
// target, otherwise the matching auxiliary slot. Every slot is written at
// most once; the first writer wins and later writes are ignored, which
// makes concurrent completions of the same result race-safe.
func (r *TreeRender) SetResults(req *FrameViewRequest, st Status) {
	r.state.merge(st)
	if req == nil {
		return
	}

	node := req.Effect().Node()

	r.resultsMu.Lock()
	defer r.resultsMu.Unlock()
	if node == r.root {
		if r.outputRequest == nil {
			r.outputRequest = req
		}
		return
	}
	if cur, ok := r.extraResults[node]; ok && cur == nil {
		r.extraResults[node] = req
	}
}

// OutputRequest returns the result produced for the render target, or
// nil if none has been published yet.
func (r *TreeRender) OutputRequest() *FrameViewRequest {
	r.resultsMu.Lock()
	defer r.resultsMu.Unlock()
	return r.outputRequest
}

// ExtraRequestedResultsForNode returns the captured result for an extra
// requested node, or nil if it was not requested or not yet produced.
func (r *TreeRender) ExtraRequestedResultsForNode(node Node) *FrameViewRequest {
	r.resultsMu.Lock()
	defer r.resultsMu.Unlock()
	return r.extraResults[node]
}

// IsExtraResultsRequestedForNode reports whether node's result was
// requested alongside the main output.
func (r *TreeRender) IsExtraResultsRequestedForNode(node Node) bool {
	r.resultsMu.Lock()
	defer r.resultsMu.Unlock()
	_, ok := r.extraResults[node]
	return ok
}

// ActiveStrokeUpdateArea returns the pixel area to refresh for the paint
// stroke being drawn, if one was recorded.
func (r *TreeRender) ActiveStrokeUpdateArea() (RectI, bool) {
	r.resultsMu.Lock()
	defer r.resultsMu.Unlock()
	return r.strokeArea, r.strokeAreaSet
}

// SetActiveStrokeUpdateArea records the pixel area affected by the paint
// stroke being drawn.
func (r *TreeRender) SetActiveStrokeUpdateArea(area RectI) {
	r.resultsMu.Lock()
	defer r.resultsMu.Unlock()
	r.strokeArea = area
	r.strokeAreaSet = true
}

// Status returns the aggregate status of the render. Failure is sticky:
// once any episode or task fails, Status reports that failure forever.
func (r *TreeRender) Status() Status { return r.state.get() }

// SetRenderAborted requests cooperative cancellation. It never preempts
// running tasks; long renders must poll IsRenderAborted. Aborting is
// one-directional and idempotent.
func (r *TreeRender) SetRenderAborted() { r.aborted.Add(1) }

// IsRenderAborted reports whether SetRenderAborted has been called.
func (r *TreeRender) IsRenderAborted() bool { return r.aborted.Load() > 0 }

// RegisterRenderClone records render-local effect state to be released
// by CleanupRenderClones.
func (r *TreeRender) RegisterRenderClone(c RenderClone) {
	if c == nil {
		return
	}
	r.clonesMu.Lock()
	defer r.clonesMu.Unlock()
	r.renderClones = append(r.renderClones, c)
}

// CleanupRenderClones releases every render-local clone registered with
// this render. The render's owner calls it exactly once at teardown;
// nothing reclaims clones implicitly.
func (r *TreeRender) CleanupRenderClones() {
	r.clonesMu.Lock()
	clones := r.renderClones
	r.renderClones = nil
	r.clonesMu.Unlock()
	for _, c := range clones {
		c.ReleaseRenderClone(r)
	}
}

// GPUContext returns the GPU rendering context assigned to this render,
// or nil if acquisition failed or no pool was supplied.
func (r *TreeRender) GPUContext() RenderContext { return r.gpuContext }

// CPUContext returns the CPU rendering context assigned to this render,
// or nil if acquisition failed or no pool was supplied.
func (r *TreeRender) CPUContext() RenderContext { return r.cpuContext }

// OriginalTreeRoot returns the resolved render target node.
func (r *TreeRender) OriginalTreeRoot() Node { return r.root }

// CurrentlyPaintingItem returns the paint item this render serves, if
// any.
func (r *TreeRender) CurrentlyPaintingItem() PaintItem { return r.args.ActivePaintItem }

// StatsObject returns the injected stats collector, if any.
func (r *TreeRender) StatsObject() StatsCollector { return r.stats }

// Time returns the requested frame time.
func (r *TreeRender) Time() TimeValue { return r.args.Time }

// View returns the requested view.
func (r *TreeRender) View() ViewIdx { return r.args.View }

// ProxyScale returns the requested proxy scale.
func (r *TreeRender) ProxyScale() RenderScale { return r.args.ProxyScale }

// MipMapLevel returns the requested mip-map level.
func (r *TreeRender) MipMapLevel() uint32 { return r.args.MipMapLevel }

// CtorRoI returns the region of interest supplied at construction; a
// null rectangle if the region was left to be resolved.
func (r *TreeRender) CtorRoI() RectD { return r.args.CanonicalRoI }

// IsDraftRender reports whether this is a draft-quality render.
func (r *TreeRender) IsDraftRender() bool { return r.args.Draft }

// IsPlayback reports whether this render is part of continuous playback.
func (r *TreeRender) IsPlayback() bool { return r.args.Playback }

// IsByPassCacheEnabled reports whether cache reads are bypassed.
func (r *TreeRender) IsByPassCacheEnabled() bool { return r.args.BypassCache }

// IsNaNHandlingEnabled reports the NaN policy frozen at construction.
func (r *TreeRender) IsNaNHandlingEnabled() bool { return r.handleNaNs }

// IsConcatenationEnabled reports the transform-concatenation policy
// frozen at construction.
func (r *TreeRender) IsConcatenationEnabled() bool { return r.useConcatenations }

// IsConcurrentRendersAllowed reports whether the caller-level queue may
// schedule this tree concurrently with other renders of it.
func (r *TreeRender) IsConcurrentRendersAllowed() bool { return !r.args.PreventConcurrentRenders }
