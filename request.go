package rendertree

import (
	"sync"
	"sync/atomic"
)

// RequestStatus is the render state of a single FrameViewRequest.
type RequestStatus int32

const (
	// RequestStatusNotRendered means the request still needs an actual
	// render; it will be dispatched to a worker.
	RequestStatusNotRendered RequestStatus = iota

	// RequestStatusRendered means the result is already available, e.g.
	// served from a cache during the request pass. The scheduler finalizes
	// such requests inline without consuming a worker.
	RequestStatusRendered
)

// FrameViewRequest is one unit of render work: a single node at a fixed
// time and view, producing one plane over one region.
//
// A request can participate in several execution episodes of the same
// render (the main execution and auxiliary ones); its dependency edges,
// listener list and rendered-dependency stash are all scoped per
// execution. The execution's task set is the one authoritative owner of
// a request; edges and frontier membership are back-references resolved
// by lookup.
type FrameViewRequest struct {
	effect EffectInstance
	time   TimeValue
	view   ViewIdx
	plane  ImagePlaneDesc
	roi    RectD

	status atomic.Int32 // RequestStatus

	resultMu sync.Mutex
	result   any

	mu    sync.Mutex
	execs map[*ExecutionData]*requestExecState
}

// requestExecState is the per-execution dependency bookkeeping of one
// request.
type requestExecState struct {
	// pending holds the dependencies not yet rendered.
	pending map[*FrameViewRequest]struct{}

	// rendered stashes completed dependencies until this request itself
	// completes, keeping their results alive exactly as long as needed.
	rendered map[*FrameViewRequest]struct{}

	// listeners are the downstream requests waiting on this one.
	listeners []*FrameViewRequest
}

// NewFrameViewRequest creates a request for rendering one plane of the
// given effect at (time, view) over roi. Requests are created by the
// graph model during the request pass and handed to the execution via
// [ExecutionData.AddTask].
func NewFrameViewRequest(effect EffectInstance, time TimeValue, view ViewIdx, plane ImagePlaneDesc, roi RectD) *FrameViewRequest {
	return &FrameViewRequest{
		effect: effect,
		time:   time,
		view:   view,
		plane:  plane,
		roi:    roi,
		execs:  make(map[*ExecutionData]*requestExecState),
	}
}

// Effect returns the effect instance this request renders.
func (fv *FrameViewRequest) Effect() EffectInstance { return fv.effect }

// Time returns the frame time of this request.
func (fv *FrameViewRequest) Time() TimeValue { return fv.time }

// View returns the view of this request.
func (fv *FrameViewRequest) View() ViewIdx { return fv.view }

// Plane returns the image plane this request produces.
func (fv *FrameViewRequest) Plane() ImagePlaneDesc { return fv.plane }

// RoI returns the canonical region of interest of this request.
func (fv *FrameViewRequest) RoI() RectD { return fv.roi }

// Status returns the render state of the request.
func (fv *FrameViewRequest) Status() RequestStatus {
	return RequestStatus(fv.status.Load())
}

// SetStatus sets the render state of the request. The graph model marks
// a request Rendered when its result was found in a cache.
func (fv *FrameViewRequest) SetStatus(s RequestStatus) {
	fv.status.Store(int32(s))
}

// Result returns the rendered result, or nil if none was produced yet.
// The engine treats results as opaque; their concrete type is whatever
// the effect's Render stored.
func (fv *FrameViewRequest) Result() any {
	fv.resultMu.Lock()
	defer fv.resultMu.Unlock()
	return fv.result
}

// SetResult stores the rendered result. The first stored result wins;
// later calls are ignored so concurrent producers of the same request
// converge on one value.
func (fv *FrameViewRequest) SetResult(res any) {
	fv.resultMu.Lock()
	defer fv.resultMu.Unlock()
	if fv.result == nil {
		fv.result = res
	}
}

// execState returns the per-execution state, creating it if needed.
// Caller must hold fv.mu.
func (fv *FrameViewRequest) execState(exec *ExecutionData) *requestExecState {
	st, ok := fv.execs[exec]
	if !ok {
		st = &requestExecState{
			pending:  make(map[*FrameViewRequest]struct{}),
			rendered: make(map[*FrameViewRequest]struct{}),
		}
		fv.execs[exec] = st
	}
	return st
}

// AddDependency records that, within exec, this request cannot render
// until dep has completed. The reverse listener edge is added to dep.
// Adding the same dependency twice is a no-op.
func (fv *FrameViewRequest) AddDependency(exec *ExecutionData, dep *FrameViewRequest) {
	if dep == nil || dep == fv {
		return
	}
	fv.mu.Lock()
	st := fv.execState(exec)
	_, dup := st.pending[dep]
	if !dup {
		st.pending[dep] = struct{}{}
	}
	fv.mu.Unlock()
	if dup {
		return
	}

	dep.mu.Lock()
	ds := dep.execState(exec)
	ds.listeners = append(ds.listeners, fv)
	dep.mu.Unlock()
}

// NumDependencies returns the number of dependencies of this request not
// yet rendered within exec.
func (fv *FrameViewRequest) NumDependencies(exec *ExecutionData) int {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	st, ok := fv.execs[exec]
	if !ok {
		return 0
	}
	return len(st.pending)
}

// MarkDependencyRendered moves dep from the pending set to the rendered
// stash and returns the number of pending dependencies left. The stash
// keeps dep (and therefore its result) reachable until this request
// completes and calls ClearRenderedDependencies.
func (fv *FrameViewRequest) MarkDependencyRendered(exec *ExecutionData, dep *FrameViewRequest) int {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	st, ok := fv.execs[exec]
	if !ok {
		return 0
	}
	if _, ok := st.pending[dep]; ok {
		delete(st.pending, dep)
		st.rendered[dep] = struct{}{}
	}
	return len(st.pending)
}

// Listeners returns the requests waiting on this one within exec.
func (fv *FrameViewRequest) Listeners(exec *ExecutionData) []*FrameViewRequest {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	st, ok := fv.execs[exec]
	if !ok {
		return nil
	}
	out := make([]*FrameViewRequest, len(st.listeners))
	copy(out, st.listeners)
	return out
}

// NumListeners returns the number of requests waiting on this one within
// exec. The scheduler uses it to prioritize tasks whose completion
// unblocks the most downstream work.
func (fv *FrameViewRequest) NumListeners(exec *ExecutionData) int {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	st, ok := fv.execs[exec]
	if !ok {
		return 0
	}
	return len(st.listeners)
}

// RenderedDependencies returns the completed dependencies stashed for
// this request within exec. Effects read their inputs from here during
// Render.
func (fv *FrameViewRequest) RenderedDependencies(exec *ExecutionData) []*FrameViewRequest {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	st, ok := fv.execs[exec]
	if !ok {
		return nil
	}
	out := make([]*FrameViewRequest, 0, len(st.rendered))
	for dep := range st.rendered {
		out = append(out, dep)
	}
	return out
}

// ClearRenderedDependencies drops the rendered-dependency stash for exec,
// releasing results that were held only for the pending duration of this
// request.
func (fv *FrameViewRequest) ClearRenderedDependencies(exec *ExecutionData) {
	fv.mu.Lock()
	defer fv.mu.Unlock()
	if st, ok := fv.execs[exec]; ok {
		st.rendered = make(map[*FrameViewRequest]struct{})
	}
}
