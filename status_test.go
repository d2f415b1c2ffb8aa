package rendertree

import (
	"sync"
	"testing"
)

func TestStatusIsFailure(t *testing.T) {
	if StatusOK.IsFailure() {
		t.Error("StatusOK must not be a failure")
	}
	for _, st := range []Status{StatusFailed, StatusAborted, StatusInputDisconnected, StatusOutOfMemory} {
		if !st.IsFailure() {
			t.Errorf("%v must be a failure", st)
		}
	}
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusOK:                 "ok",
		StatusFailed:             "failed",
		StatusAborted:            "aborted",
		StatusInputDisconnected:  "input-disconnected",
		StatusOutOfMemory:        "out-of-memory",
		Status(99):               "unknown",
	}
	for st, want := range cases {
		if got := st.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", int32(st), got, want)
		}
	}
}

func TestStickyStatusFirstFailureWins(t *testing.T) {
	var s stickyStatus
	if got := s.get(); got != StatusOK {
		t.Fatalf("initial status = %v, want ok", got)
	}

	s.merge(StatusOK)
	if got := s.get(); got != StatusOK {
		t.Errorf("merging ok changed status to %v", got)
	}

	s.merge(StatusAborted)
	if got := s.get(); got != StatusAborted {
		t.Fatalf("status = %v, want aborted", got)
	}

	// Neither a later failure nor a later success may overwrite it.
	s.merge(StatusFailed)
	s.merge(StatusOK)
	if got := s.get(); got != StatusAborted {
		t.Errorf("status = %v, want aborted (first failure is sticky)", got)
	}
}

func TestStickyStatusConcurrentMerge(t *testing.T) {
	var s stickyStatus
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		st := StatusFailed
		if i%2 == 1 {
			st = StatusAborted
		}
		wg.Add(1)
		go func(st Status) {
			defer wg.Done()
			s.merge(st)
		}(st)
	}
	wg.Wait()

	got := s.get()
	if got != StatusFailed && got != StatusAborted {
		t.Errorf("status = %v, want one of the merged failures", got)
	}
	// Whatever won must stay put.
	s.merge(StatusOutOfMemory)
	if s.get() != got {
		t.Error("winning failure was overwritten")
	}
}
