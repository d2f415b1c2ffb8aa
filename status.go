package rendertree

import "sync/atomic"

// Status is the result code shared by every level of the engine: a single
// task, one execution episode, and the whole render. There is exactly one
// success value; everything else is a failure.
//
// No error values cross the engine's public boundary. Collaborator
// initialization errors are converted into a Status at construction and
// observed through the status accessors.
type Status int32

const (
	// StatusOK is the only success value.
	StatusOK Status = iota

	// StatusFailed is a generic render failure.
	StatusFailed

	// StatusAborted indicates the render was cancelled cooperatively.
	StatusAborted

	// StatusInputDisconnected indicates a node was asked to render without
	// a required input connection.
	StatusInputDisconnected

	// StatusOutOfMemory indicates an allocation failure in a collaborator.
	StatusOutOfMemory
)

// IsFailure reports whether s is any failure value.
func (s Status) IsFailure() bool { return s != StatusOK }

// String returns a short human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusAborted:
		return "aborted"
	case StatusInputDisconnected:
		return "input-disconnected"
	case StatusOutOfMemory:
		return "out-of-memory"
	default:
		return "unknown"
	}
}

// stickyStatus is a monotonic status cell: it starts at StatusOK and can
// only move to a failure value, exactly once. Later merges are ignored,
// whether success or failure, so the first failure reported is the one
// observed forever after.
//
// Merge is a compare-and-set loop rather than a plain store so that the
// first-failure-wins invariant holds under concurrent merges from worker
// goroutines without any external lock.
type stickyStatus struct {
	v atomic.Int32
}

// get returns the current status.
func (s *stickyStatus) get() Status {
	return Status(s.v.Load())
}

// merge records st if and only if st is a failure and no failure has been
// recorded yet. Merging StatusOK is always a no-op.
func (s *stickyStatus) merge(st Status) {
	if !st.IsFailure() {
		return
	}
	for {
		cur := s.v.Load()
		if Status(cur).IsFailure() {
			return
		}
		if s.v.CompareAndSwap(cur, int32(st)) {
			return
		}
	}
}
