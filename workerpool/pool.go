package workerpool

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/gogpu/rendertree"
)

// Pool is a bounded implementation of [rendertree.TaskPool]. At most the
// configured number of tasks run concurrently; Submit itself never
// blocks, so a task completing on a worker may safely submit more work.
type Pool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// New creates a pool running at most workers tasks concurrently.
// workers <= 0 selects GOMAXPROCS.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers))}
}

// Submit schedules t to run as soon as a worker slot is free.
func (p *Pool) Submit(t rendertree.Task) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// Acquire with a background context never returns an error.
		_ = p.sem.Acquire(context.Background(), 1)
		defer p.sem.Release(1)
		t.Run()
	}()
}

// Wait blocks until every submitted task has finished. Intended for
// teardown and tests; new submissions during Wait are allowed but may
// extend the wait.
func (p *Pool) Wait() {
	p.wg.Wait()
}

var _ rendertree.TaskPool = (*Pool)(nil)
