package executor

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	hiero "github.com/joshmarinacci/hiero-consensus-node-sub002"
)

// Pool is an executor that runs the work on goroutines while bounding the
// number of concurrent units. Execute never blocks the caller.
//
// - implements executor.Executor
// - implements executor.Aborter
type Pool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a new pool that runs at most size units concurrently. A
// non-positive size uses the number of CPUs.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Execute implements executor.Executor. The work is dropped when the pool is
// closed before a slot becomes available.
func (p *Pool) Execute(fn func()) {
	p.ExecuteOrAbort(fn, nil)
}

// ExecuteOrAbort implements executor.Aborter. The abort callback runs when the
// pool is closed before the work gets a slot.
func (p *Pool) ExecuteOrAbort(fn, abort func()) {
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		err := p.ctx.Err()
		if err == nil {
			err = p.sem.Acquire(p.ctx, 1)
		}

		if err != nil {
			hiero.Logger.Debug().Msg("pool closed, dropping work")

			if abort != nil {
				abort()
			}

			return
		}

		defer p.sem.Release(1)

		fn()
	}()
}

// Wait blocks until the units executed so far are done. It must not be called
// concurrently with Execute.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close stops accepting pending work and waits for the running units to
// finish.
func (p *Pool) Close() {
	p.cancel()
	p.wg.Wait()
}
