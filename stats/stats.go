package stats

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gogpu/rendertree"
)

// NodeStats aggregates the render work done for one node during a
// render.
type NodeStats struct {
	// TimeSpent is the total wall time spent rendering the node's tasks.
	TimeSpent time.Duration

	// Renders is the number of tasks rendered for the node.
	Renders int

	// Failures is the number of tasks that finished with a failure
	// status.
	Failures int
}

// RenderStats collects per-node timing for one render. It implements
// rendertree.StatsCollector and is safe for concurrent use from worker
// goroutines.
//
// When created with NewTraced, every task additionally emits an
// OpenTelemetry span, so a whole render shows up as a flame of per-node
// task spans under the caller's span.
type RenderStats struct {
	mu    sync.Mutex
	nodes map[string]*NodeStats

	ctx    context.Context
	tracer trace.Tracer
}

// New creates a collector that aggregates timing only.
func New() *RenderStats {
	return &RenderStats{nodes: make(map[string]*NodeStats)}
}

// NewTraced creates a collector that also emits one span per task, as a
// child of the span in ctx.
func NewTraced(ctx context.Context, tracer trace.Tracer) *RenderStats {
	return &RenderStats{
		nodes:  make(map[string]*NodeStats),
		ctx:    ctx,
		tracer: tracer,
	}
}

// TaskStarted records the start of one task for the named node and
// returns the completion callback the engine invokes with the task's
// final status.
func (s *RenderStats) TaskStarted(nodeName string) func(rendertree.Status) {
	start := time.Now()

	var span trace.Span
	if s.tracer != nil {
		_, span = s.tracer.Start(s.ctx, "rendertree.task",
			trace.WithAttributes(attribute.String("rendertree.node", nodeName)))
	}

	return func(st rendertree.Status) {
		elapsed := time.Since(start)

		s.mu.Lock()
		ns, ok := s.nodes[nodeName]
		if !ok {
			ns = &NodeStats{}
			s.nodes[nodeName] = ns
		}
		ns.TimeSpent += elapsed
		ns.Renders++
		if st.IsFailure() {
			ns.Failures++
		}
		s.mu.Unlock()

		if span != nil {
			span.SetAttributes(attribute.String("rendertree.status", st.String()))
			span.End()
		}
	}
}

// NodeStats returns the aggregated stats for one node.
func (s *RenderStats) NodeStats(nodeName string) (NodeStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.nodes[nodeName]
	if !ok {
		return NodeStats{}, false
	}
	return *ns, true
}

// TotalTimeSpent returns the summed wall time across all nodes. Note
// that concurrent tasks overlap, so this can exceed the render's
// elapsed time.
func (s *RenderStats) TotalTimeSpent() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total time.Duration
	for _, ns := range s.nodes {
		total += ns.TimeSpent
	}
	return total
}

var _ rendertree.StatsCollector = (*RenderStats)(nil)
