package rendertree

import (
	"fmt"
	"sync"
)

// fakeGraph is a test double for the node-graph collaborator. It builds
// one FrameViewRequest per effect per execution, wiring dependency edges
// the way the real request pass would.
type fakeGraph struct {
	mu       sync.Mutex
	built    map[*ExecutionData]map[*fakeEffect]*FrameViewRequest
	released int
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{built: make(map[*ExecutionData]map[*fakeEffect]*FrameViewRequest)}
}

// node creates a graph node whose effect depends on the given inputs.
func (g *fakeGraph) node(name string, inputs ...*fakeNode) *fakeNode {
	eff := &fakeEffect{
		graph:  g,
		rod:    RectD{X1: 0, Y1: 0, X2: 100, Y2: 100},
		planes: []ImagePlaneDesc{ColorPlaneDesc},
	}
	n := &fakeNode{name: name, effect: eff}
	eff.node = n
	for _, in := range inputs {
		eff.inputs = append(eff.inputs, in.effect)
	}
	return n
}

// request recursively materializes the task DAG rooted at eff, returning
// eff's own request. Inputs are requested before the effect's request is
// registered, so zero-dependency leaves seed the frontier.
func (g *fakeGraph) request(eff *fakeEffect, tm TimeValue, view ViewIdx,
	plane ImagePlaneDesc, roi RectD, exec *ExecutionData) (*FrameViewRequest, Status) {

	if eff.requestStatus.IsFailure() {
		return nil, eff.requestStatus
	}

	g.mu.Lock()
	m := g.built[exec]
	if m == nil {
		m = make(map[*fakeEffect]*FrameViewRequest)
		g.built[exec] = m
	}
	if req, ok := m[eff]; ok {
		g.mu.Unlock()
		return req, StatusOK
	}
	req := NewFrameViewRequest(eff, tm, view, plane, roi)
	if eff.cached {
		req.SetStatus(RequestStatusRendered)
		req.SetResult("cached:" + eff.node.name)
	}
	m[eff] = req
	g.mu.Unlock()

	for _, in := range eff.inputs {
		depReq, st := g.request(in, tm, view, plane, roi, exec)
		if st.IsFailure() {
			return nil, st
		}
		req.AddDependency(exec, depReq)
	}
	exec.AddTask(req)
	return req, StatusOK
}

type fakeNode struct {
	name        string
	effect      *fakeEffect
	passThrough bool
	target      Node
}

func (n *fakeNode) Name() string            { return n.name }
func (n *fakeNode) Effect() EffectInstance  { return n.effect }
func (n *fakeNode) IsPassThrough() bool     { return n.passThrough }
func (n *fakeNode) PassThroughTarget() Node { return n.target }

type fakeEffect struct {
	graph  *fakeGraph
	node   *fakeNode
	inputs []*fakeEffect

	rod         RectD
	rodStatus   Status
	planes      []ImagePlaneDesc
	planeStatus Status

	// requestStatus, when a failure, fails the request pass at this
	// effect.
	requestStatus Status

	// requestFn overrides the default recursive request pass.
	requestFn func(tm TimeValue, view ViewIdx, plane ImagePlaneDesc, roi RectD, exec *ExecutionData) (*FrameViewRequest, Status)

	// cached marks this effect's request as already rendered.
	cached bool

	renderStatus Status

	cloneErr error

	mu      sync.Mutex
	renders int
}

func (e *fakeEffect) Node() Node          { return e.node }
func (e *fakeEffect) IsRenderClone() bool { return false }

func (e *fakeEffect) CreateRenderClone(key RenderCloneKey) (EffectInstance, error) {
	if e.cloneErr != nil {
		return nil, e.cloneErr
	}
	if key.Render != nil {
		key.Render.RegisterRenderClone(&fakeRenderClone{graph: e.graph})
	}
	return renderCloneEffect{e}, nil
}

func (e *fakeEffect) RegionOfDefinition(TimeValue, ViewIdx, RenderScale) (RectD, Status) {
	return e.rod, e.rodStatus
}

func (e *fakeEffect) ProducedPlanes(TimeValue, ViewIdx) ([]ImagePlaneDesc, Status) {
	return e.planes, e.planeStatus
}

func (e *fakeEffect) RequestRender(tm TimeValue, view ViewIdx, _ RenderScale, _ uint32,
	plane ImagePlaneDesc, roi RectD, exec *ExecutionData) (*FrameViewRequest, Status) {
	if e.requestFn != nil {
		return e.requestFn(tm, view, plane, roi, exec)
	}
	return e.graph.request(e, tm, view, plane, roi, exec)
}

func (e *fakeEffect) Render(_ *ExecutionData, req *FrameViewRequest) Status {
	if req.Status() == RequestStatusRendered {
		// Result already served from the cache; nothing to do.
		return StatusOK
	}
	e.mu.Lock()
	e.renders++
	e.mu.Unlock()
	if e.renderStatus.IsFailure() {
		return e.renderStatus
	}
	req.SetResult(fmt.Sprintf("img:%s", e.node.name))
	return StatusOK
}

func (e *fakeEffect) renderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.renders
}

// renderCloneEffect marks an effect as a render-local clone while
// delegating everything else to the main instance.
type renderCloneEffect struct {
	*fakeEffect
}

func (renderCloneEffect) IsRenderClone() bool { return true }

// fakeRenderClone counts releases on the graph.
type fakeRenderClone struct {
	graph *fakeGraph
}

func (c *fakeRenderClone) ReleaseRenderClone(*TreeRender) {
	c.graph.mu.Lock()
	c.graph.released++
	c.graph.mu.Unlock()
}

// manualPool queues submitted tasks and runs them only when the test
// says so, making scheduling steps observable.
type manualPool struct {
	mu    sync.Mutex
	tasks []Task
}

func (p *manualPool) Submit(t Task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, t)
}

func (p *manualPool) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// runAll runs queued tasks, including ones queued while running.
func (p *manualPool) runAll() {
	for {
		p.mu.Lock()
		if len(p.tasks) == 0 {
			p.mu.Unlock()
			return
		}
		t := p.tasks[0]
		p.tasks = p.tasks[1:]
		p.mu.Unlock()
		t.Run()
	}
}

// recordingQueue records queue-manager notifications.
type recordingQueue struct {
	mu       sync.Mutex
	execs    []*ExecutionData
	onWorker []bool
}

func (q *recordingQueue) NotifyTaskFinished(exec *ExecutionData, onWorker bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.execs = append(q.execs, exec)
	q.onWorker = append(q.onWorker, onWorker)
}

// frontierNodeNames returns the names of the frontier tasks in selection
// order, without removing them.
func (e *ExecutionData) frontierNodeNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Pop into a scratch copy to observe selection order.
	savedFrontier := append([]*FrameViewRequest(nil), e.frontier...)
	savedStates := make(map[*FrameViewRequest]bool)
	for _, req := range savedFrontier {
		if st, ok := e.tasks[req]; ok {
			savedStates[req] = st.inFrontier
		}
	}
	var names []string
	for {
		req := e.popFrontierLocked()
		if req == nil {
			break
		}
		names = append(names, req.Effect().Node().Name())
	}
	e.frontier = savedFrontier
	for req, in := range savedStates {
		if st, ok := e.tasks[req]; ok {
			st.inFrontier = in
		}
	}
	return names
}

// fakeSettings is a fixed-value settings store.
type fakeSettings struct {
	nan    bool
	concat bool
}

func (s fakeSettings) NaNHandling() bool            { return s.nan }
func (s fakeSettings) TransformConcatenation() bool { return s.concat }

// fakeContext is a trivial RenderContext.
type fakeContext struct {
	gpu bool
}

func (c *fakeContext) IsGPU() bool { return c.gpu }

// fakeContextPool hands out fresh fakeContexts, optionally failing, and
// remembers the last pair for retrieveLast.
type fakeContextPool struct {
	mu       sync.Mutex
	fail     error
	acquired int
	lastGPU  *fakeContext
	lastCPU  *fakeContext
}

func (p *fakeContextPool) GPUContext(retrieveLast bool) (RenderContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return nil, p.fail
	}
	if retrieveLast && p.lastGPU != nil {
		return p.lastGPU, nil
	}
	p.acquired++
	p.lastGPU = &fakeContext{gpu: true}
	return p.lastGPU, nil
}

func (p *fakeContextPool) CPUContext(retrieveLast bool) (RenderContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return nil, p.fail
	}
	if retrieveLast && p.lastCPU != nil {
		return p.lastCPU, nil
	}
	p.acquired++
	p.lastCPU = &fakeContext{gpu: false}
	return p.lastCPU, nil
}

// fakePaintItem pins a context pair like a paint stroke item.
type fakePaintItem struct {
	mu       sync.Mutex
	gpu, cpu RenderContext
	pinned   bool
	bounds   RectI
}

func (p *fakePaintItem) DrawingContexts() (RenderContext, RenderContext, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gpu, p.cpu, p.pinned
}

func (p *fakePaintItem) SetDrawingContexts(gpu, cpu RenderContext) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gpu, p.cpu, p.pinned = gpu, cpu, true
}

func (p *fakePaintItem) StrokeBounds() RectI {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bounds
}
