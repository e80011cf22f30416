// File: rpool/pool.go
// Author: momentics <momentics@gmail.com>
//
// Pool is a fixed set of reactors, one per OS thread, selected round
// robin. AwaitOnAll/AwaitOnAllAsync fan a callback out to every reactor
// and (for the blocking variant) wait for all of them, mirroring
// Proactor::Pool's AwaitOnAll used throughout the original pipeline
// executor and accept server.

package rpool

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/momentics/fiberflow/affinity"
	"github.com/momentics/fiberflow/fibererr"
	"github.com/momentics/fiberflow/reactor"
)

// Pool owns a fixed slice of reactors and drives each on its own thread.
type Pool struct {
	reactors []*reactor.Reactor
	next     atomic.Uint64
}

// New constructs a Pool of n reactors built via newReactor, and starts
// each one's Drive loop on a dedicated, locked OS thread.
func New(n int, newReactor func(index int) (*reactor.Reactor, error)) (*Pool, error) {
	p := &Pool{reactors: make([]*reactor.Reactor, 0, n)}
	for i := 0; i < n; i++ {
		r, err := newReactor(i)
		if err != nil {
			p.Stop()
			return nil, fibererr.New(fibererr.KindInternal, "rpool.New", err)
		}
		p.reactors = append(p.reactors, r)
	}
	for i, r := range p.reactors {
		i, r := i, r
		go func() {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			if err := affinity.SetAffinity(i); err != nil {
				r.Logger().Warnf("rpool: pin reactor %d to cpu %d: %v", i, i, err)
			}
			r.Drive()
		}()
	}
	return p, nil
}

// Size returns the number of reactors in the pool.
func (p *Pool) Size() int { return len(p.reactors) }

// Next returns the next reactor in round-robin order.
func (p *Pool) Next() *reactor.Reactor {
	i := p.next.Add(1) - 1
	return p.reactors[i%uint64(len(p.reactors))]
}

// At returns the reactor at a fixed index, for callers that already
// picked one (e.g. the pipeline executor labelling per-reactor state).
func (p *Pool) At(i int) *reactor.Reactor { return p.reactors[i] }

// All returns the pool's reactors in construction order. Callers must
// not mutate the slice.
func (p *Pool) All() []*reactor.Reactor { return p.reactors }

// AwaitOnAll runs fn as a fiber on every reactor in the pool and blocks
// until all of them have returned. Calling this from inside a fiber that
// is itself owned by one of this pool's reactors is rejected, since that
// reactor's drive loop would deadlock waiting on its own fiber.
func (p *Pool) AwaitOnAll(fn func(r *reactor.Reactor)) error {
	if caller := reactor.Current(); caller != nil {
		for _, r := range p.reactors {
			if caller.Reactor() == r {
				return fibererr.ErrReentrantAwait
			}
		}
	}
	var g errgroup.Group
	for _, r := range p.reactors {
		r := r
		g.Go(func() error {
			done := make(chan struct{})
			r.Spawn(func() {
				defer close(done)
				fn(r)
			})
			_ = r.Notify()
			<-done
			return nil
		})
	}
	return g.Wait()
}

// AwaitOnAllAsync dispatches fn onto every reactor without waiting for
// completion, for shutdown-signalling paths that must not block (e.g.
// Pipeline.Executor.Stop's stop_early flag).
func (p *Pool) AwaitOnAllAsync(fn func(r *reactor.Reactor)) {
	for _, r := range p.reactors {
		r := r
		r.Spawn(func() { fn(r) })
		_ = r.Notify()
	}
}

// Stop requests every reactor's drive loop to exit.
func (p *Pool) Stop() {
	for _, r := range p.reactors {
		r.Stop()
	}
}

// Close closes every reactor's I/O driver. Call only after every Drive
// loop has returned.
func (p *Pool) Close() error {
	var firstErr error
	for _, r := range p.reactors {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
