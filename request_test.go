package rendertree

import "testing"

func newBareExec() *ExecutionData {
	g := newFakeGraph()
	root := g.node("Root")
	render := New(RenderArgs{TreeRoot: root, Pool: &manualPool{}})
	return newExecutionData(render, true)
}

func TestRequestDependencyLifecycle(t *testing.T) {
	g := newFakeGraph()
	n := g.node("N")
	exec := newBareExec()

	a := NewFrameViewRequest(n.effect, 1, 0, ColorPlaneDesc, RectD{})
	b := NewFrameViewRequest(n.effect, 1, 0, ColorPlaneDesc, RectD{})
	c := NewFrameViewRequest(n.effect, 1, 0, ColorPlaneDesc, RectD{})

	c.AddDependency(exec, a)
	c.AddDependency(exec, b)
	if got := c.NumDependencies(exec); got != 2 {
		t.Fatalf("NumDependencies = %d, want 2", got)
	}

	// The reverse listener edges exist on the dependencies.
	if got := a.NumListeners(exec); got != 1 {
		t.Errorf("a.NumListeners = %d, want 1", got)
	}
	if got := a.Listeners(exec); len(got) != 1 || got[0] != c {
		t.Errorf("a.Listeners = %v, want [c]", got)
	}

	if left := c.MarkDependencyRendered(exec, a); left != 1 {
		t.Errorf("after first mark, %d pending, want 1", left)
	}
	if left := c.MarkDependencyRendered(exec, b); left != 0 {
		t.Errorf("after second mark, %d pending, want 0", left)
	}

	// Rendered dependencies are stashed until cleared.
	if got := c.RenderedDependencies(exec); len(got) != 2 {
		t.Errorf("stash holds %d entries, want 2", len(got))
	}
	c.ClearRenderedDependencies(exec)
	if got := c.RenderedDependencies(exec); len(got) != 0 {
		t.Errorf("stash holds %d entries after clear, want 0", len(got))
	}
}

func TestRequestDuplicateDependencyIgnored(t *testing.T) {
	g := newFakeGraph()
	n := g.node("N")
	exec := newBareExec()

	a := NewFrameViewRequest(n.effect, 1, 0, ColorPlaneDesc, RectD{})
	b := NewFrameViewRequest(n.effect, 1, 0, ColorPlaneDesc, RectD{})

	b.AddDependency(exec, a)
	b.AddDependency(exec, a)
	if got := b.NumDependencies(exec); got != 1 {
		t.Errorf("NumDependencies = %d, want 1", got)
	}
	if got := a.NumListeners(exec); got != 1 {
		t.Errorf("NumListeners = %d, want 1", got)
	}

	// Self-dependencies and nil dependencies are rejected.
	b.AddDependency(exec, b)
	b.AddDependency(exec, nil)
	if got := b.NumDependencies(exec); got != 1 {
		t.Errorf("NumDependencies = %d after bogus adds, want 1", got)
	}
}

func TestRequestStateScopedPerExecution(t *testing.T) {
	g := newFakeGraph()
	n := g.node("N")
	exec1 := newBareExec()
	exec2 := newBareExec()

	a := NewFrameViewRequest(n.effect, 1, 0, ColorPlaneDesc, RectD{})
	b := NewFrameViewRequest(n.effect, 1, 0, ColorPlaneDesc, RectD{})

	b.AddDependency(exec1, a)
	if got := b.NumDependencies(exec1); got != 1 {
		t.Errorf("exec1 NumDependencies = %d, want 1", got)
	}
	if got := b.NumDependencies(exec2); got != 0 {
		t.Errorf("exec2 NumDependencies = %d, want 0 (state must be per-execution)", got)
	}
	if got := a.NumListeners(exec2); got != 0 {
		t.Errorf("exec2 NumListeners = %d, want 0", got)
	}
}

func TestRequestResultFirstWriteWins(t *testing.T) {
	g := newFakeGraph()
	n := g.node("N")

	req := NewFrameViewRequest(n.effect, 1, 0, ColorPlaneDesc, RectD{})
	if req.Result() != nil {
		t.Fatal("fresh request has a result")
	}
	req.SetResult("first")
	req.SetResult("second")
	if got := req.Result(); got != "first" {
		t.Errorf("Result = %v, want first (first writer wins)", got)
	}
}

func TestRequestAccessors(t *testing.T) {
	g := newFakeGraph()
	n := g.node("N")
	roi := RectD{X1: 1, Y1: 2, X2: 3, Y2: 4}

	req := NewFrameViewRequest(n.effect, 7, 2, ColorPlaneDesc, roi)
	if req.Effect() != n.effect {
		t.Error("Effect mismatch")
	}
	if req.Time() != 7 || req.View() != 2 {
		t.Error("Time/View mismatch")
	}
	if req.Plane().PlaneID != ColorPlaneDesc.PlaneID {
		t.Error("Plane mismatch")
	}
	if req.RoI() != roi {
		t.Error("RoI mismatch")
	}
	if req.Status() != RequestStatusNotRendered {
		t.Error("fresh request must be not-rendered")
	}
	req.SetStatus(RequestStatusRendered)
	if req.Status() != RequestStatusRendered {
		t.Error("SetStatus did not stick")
	}
}
