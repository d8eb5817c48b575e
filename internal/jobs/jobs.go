// Package jobs runs persistence work off the caller's goroutine.
//
// A Pool has a fixed number of worker slots. Submit hands a job to a free
// slot and returns immediately; when every slot is busy (or the pool is nil
// or closed) the job runs inline on the caller's goroutine instead, so
// callers never wait for a slot and never lose work.
package jobs

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Job is a unit of background work.
type Job func(ctx context.Context) error

// Pool is a bounded set of background workers.
type Pool struct {
	mu     sync.Mutex
	g      *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	inline     atomic.Int64
	background atomic.Int64
}

// NewPool creates a pool with the given number of workers. workers <= 0
// creates a pool that always runs inline.
func NewPool(workers int) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{ctx: ctx, cancel: cancel}
	if workers > 0 {
		p.g = &errgroup.Group{}
		p.g.SetLimit(workers)
	}
	return p
}

// Submit runs job on a free worker, or inline when none is free, and calls
// done with its result. It reports whether the job went to the background.
func (p *Pool) Submit(job Job, done func(error)) bool {
	if done == nil {
		done = func(error) {}
	}

	if p != nil {
		p.mu.Lock()
		if !p.closed && p.g != nil {
			ctx := p.ctx
			started := p.g.TryGo(func() error {
				done(job(ctx))
				// Job errors are delivered through done, never through the group.
				return nil
			})
			p.mu.Unlock()
			if started {
				p.background.Add(1)
				return true
			}
		} else {
			p.mu.Unlock()
		}
		p.inline.Add(1)
	}

	done(job(context.Background()))
	return false
}

// Close waits for running jobs and makes later submissions run inline.
// Submissions racing with Close run inline; none is started on a worker
// once Close has begun waiting.
func (p *Pool) Close() {
	if p == nil {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	g := p.g
	p.mu.Unlock()

	if g != nil {
		_ = g.Wait()
	}
	p.cancel()
}

// Stats returns how many jobs ran in the background and inline.
func (p *Pool) Stats() (background, inline int64) {
	if p == nil {
		return 0, 0
	}
	return p.background.Load(), p.inline.Load()
}
