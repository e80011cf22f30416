// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Reactor ties together a fiber ready queue, a pending-timer heap, and an
// ioDriver into the five-method scheduling contract used throughout this
// runtime: Awakened, PickNext, HasReady, SuspendUntil, Notify. The
// contract mirrors a fiber-library scheduling algorithm: Awakened marks a
// fiber runnable, PickNext/HasReady drive the ready queue, SuspendUntil
// parks the drive loop itself until either a ready fiber exists or a
// timer fires, and Notify wakes a reactor blocked in SuspendUntil from
// another thread.

package reactor

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/fiberflow/control"
	"github.com/momentics/fiberflow/fibererr"
)

// Reactor drives one OS thread's worth of fibers and I/O.
type Reactor struct {
	cfg    Config
	driver ioDriver

	mu      sync.Mutex
	ready   *readyQueue
	timers  timerHeap
	fibers  map[uint64]*Fiber
	nextID  uint64
	started bool

	stopCh   chan struct{}
	stopOnce sync.Once
	driving  sync.WaitGroup

	logger  *control.Logger
	metrics *control.Metrics
}

// New constructs a Reactor of the requested flavour. Linux-only: both
// drivers are backed by golang.org/x/sys/unix syscalls that do not exist
// on other platforms, matching this runtime's Linux-only scope.
func New(opts ...Option) (*Reactor, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	r := &Reactor{
		cfg:     cfg,
		ready:   newReadyQueue(),
		fibers:  make(map[uint64]*Fiber),
		stopCh:  make(chan struct{}),
		logger:  cfg.Logger.With("reactor", cfg.Name),
		metrics: cfg.Metrics,
	}
	heap.Init(&r.timers)

	var driver ioDriver
	var err error
	switch cfg.Kind {
	case KindURing:
		driver, err = newURingDriver(cfg.RingDepth, cfg.LinkedSQE)
	default:
		driver, err = newGeneralDriver()
	}
	if err != nil {
		return nil, fibererr.New(fibererr.KindInternal, "reactor.New", err)
	}
	r.driver = driver
	return r, nil
}

// Kind reports which I/O backend this reactor drives.
func (r *Reactor) Kind() Kind { return r.cfg.Kind }

// Name returns the reactor's configured label, used for log/metric fields.
func (r *Reactor) Name() string { return r.cfg.Name }

// Logger returns the reactor's logger, scoped with its name.
func (r *Reactor) Logger() *control.Logger { return r.logger }

// Metrics returns the shared Metrics handle this reactor reports into.
func (r *Reactor) Metrics() *control.Metrics { return r.metrics }

// RegisterFD registers fd for readiness notifications. cb runs on the
// reactor's own goroutine and must not block.
func (r *Reactor) RegisterFD(fd uintptr, events FDEventType, cb FDCallback) error {
	return r.driver.Register(fd, events, cb)
}

// UnregisterFD removes a previously registered fd.
func (r *Reactor) UnregisterFD(fd uintptr) error {
	return r.driver.Unregister(fd)
}

// ReadAsync suspends the calling fiber until one read from fd into buf
// completes, returning its result. It must be called from a fiber owned
// by this reactor (package socket's FiberSocket.Read is the intended
// caller).
func (r *Reactor) ReadAsync(fd uintptr, buf []byte) (int, error) {
	f := Current()
	if f == nil || f.owner != r {
		panic("reactor: ReadAsync called outside an owned fiber")
	}
	var n int
	var rerr error
	r.driver.SubmitRead(fd, buf, func(resN int, resErr error) {
		n, rerr = resN, resErr
		r.Awakened(f)
	})
	f.Suspend()
	return n, rerr
}

// WriteAsync is the write-side counterpart of ReadAsync.
func (r *Reactor) WriteAsync(fd uintptr, buf []byte) (int, error) {
	f := Current()
	if f == nil || f.owner != r {
		panic("reactor: WriteAsync called outside an owned fiber")
	}
	var n int
	var rerr error
	r.driver.SubmitWrite(fd, buf, func(resN int, resErr error) {
		n, rerr = resN, resErr
		r.Awakened(f)
	})
	f.Suspend()
	return n, rerr
}

// AcceptAsync suspends the calling fiber until one connection has been
// accepted on the listening fd, returning the new connection's fd.
func (r *Reactor) AcceptAsync(fd uintptr) (int, error) {
	f := Current()
	if f == nil || f.owner != r {
		panic("reactor: AcceptAsync called outside an owned fiber")
	}
	var newFd int
	var rerr error
	r.driver.SubmitAccept(fd, func(resFd int, resErr error) {
		newFd, rerr = resFd, resErr
		r.Awakened(f)
	})
	f.Suspend()
	return newFd, rerr
}

// AwaitOn runs fn as a new fiber on target and blocks the calling fiber
// (which may belong to a different reactor) until fn returns, delivering
// fn's result back across reactors via r.Notify so the caller's own
// reactor wakes promptly. This is the cross-reactor trampoline mentioned
// in the data model: a fiber on reactor A can run work bound to reactor
// B's sockets only by hopping over via AwaitOn.
func (r *Reactor) AwaitOn(target *Reactor, fn func()) {
	caller := Current()
	if caller == nil || caller.owner != r {
		panic("reactor: AwaitOn called outside a fiber owned by r")
	}
	target.Spawn(func() {
		fn()
		r.Awakened(caller)
		_ = r.Notify()
	})
	caller.Suspend()
}

// Spawn creates a new fiber bound to this reactor and marks it runnable.
// fn runs on its own goroutine the first time the reactor hands it the
// baton; it must only block at legitimate suspension points (socket I/O,
// bounded-channel operations, Fiber.Yield, or Reactor.SleepUntil).
func (r *Reactor) Spawn(fn func()) *Fiber {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.mu.Unlock()

	f := &Fiber{
		id:      id,
		owner:   r,
		baton:   make(chan struct{}),
		yielded: make(chan struct{}),
	}
	f.state.Store(int32(fiberReady))

	r.mu.Lock()
	r.fibers[id] = f
	r.mu.Unlock()

	go func() {
		<-f.baton
		gid := currentGoroutineID()
		f.gid.Store(gid)
		fiberRegistry.Store(gid, f)
		defer fiberRegistry.Delete(gid)
		defer func() {
			if p := recover(); p != nil {
				r.logger.Errorf("fiber %d panic: %v", f.id, p)
			}
			f.state.Store(int32(fiberDone))
			f.yielded <- struct{}{}
		}()
		fn()
	}()

	r.Awakened(f)
	return f
}

// --- five-method scheduling contract ---

// Awakened marks f runnable, enqueueing it if it is not already linked
// into the ready queue. Safe to call from any goroutine; callers outside
// the reactor's own drive-loop goroutine must route through Notify (see
// AwaitOn and rpool.AwaitOnAll) so a blocked driver.Wait wakes up.
func (r *Reactor) Awakened(f *Fiber) {
	r.mu.Lock()
	if f.linked || f.state.Load() == int32(fiberDone) {
		r.mu.Unlock()
		return
	}
	f.linked = true
	r.ready.push(f)
	depth := r.ready.len()
	r.mu.Unlock()
	r.metrics.ReadyQueueDepth.WithLabelValues(r.cfg.Name).Set(float64(depth))
}

// PickNext removes and returns the next runnable fiber, or nil.
func (r *Reactor) PickNext() *Fiber {
	r.mu.Lock()
	f := r.ready.pop()
	if f != nil {
		f.linked = false
	}
	depth := r.ready.len()
	r.mu.Unlock()
	r.metrics.ReadyQueueDepth.WithLabelValues(r.cfg.Name).Set(float64(depth))
	return f
}

// HasReady reports whether any fiber is runnable right now.
func (r *Reactor) HasReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready.len() > 0
}

// SuspendUntil blocks the calling (drive-loop) goroutine in the I/O
// driver until either a registered fd becomes ready, the earliest
// pending timer fires, or Notify is called from another thread. It is
// the dispatcher-side half of the scheduling contract: only called when
// HasReady() is false.
func (r *Reactor) SuspendUntil() error {
	r.mu.Lock()
	deadline, ok := r.timers.peekDeadline()
	r.mu.Unlock()
	if ok {
		if err := r.driver.ArmSentinel(deadline); err != nil {
			return fibererr.New(fibererr.KindInternal, "reactor.SuspendUntil", err)
		}
	}
	_, err := r.driver.Wait(-1)
	if err != nil {
		return fibererr.New(fibererr.KindIO, "reactor.SuspendUntil", err)
	}
	r.fireDueTimers()
	return nil
}

// Notify wakes a reactor blocked in SuspendUntil, for cross-thread use
// (e.g. rpool.AwaitOnAll dispatching work onto an idle reactor, or Stop).
func (r *Reactor) Notify() error {
	return r.driver.Notify()
}

// SleepUntil parks the calling fiber until wall-clock deadline (a
// time.Time) elapses, or forever if deadline is the zero Time. Must be
// called from within a fiber (Current() != nil).
func (r *Reactor) SleepUntil(deadline time.Time) {
	f := Current()
	if f == nil || f.owner != r {
		panic("reactor: SleepUntil called outside an owned fiber")
	}
	if deadline.IsZero() {
		f.Suspend()
		return
	}
	r.mu.Lock()
	heap.Push(&r.timers, &timerEntry{deadline: monotonicNowNs() + int64(time.Until(deadline)), fiber: f})
	r.mu.Unlock()
	f.Suspend()
}

// monotonicNowNs reads CLOCK_MONOTONIC, the clock the drivers' sentinel
// timers are armed against.
func monotonicNowNs() int64 {
	var ts unix.Timespec
	_ = unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	return ts.Nano()
}

func (r *Reactor) fireDueTimers() {
	now := monotonicNowNs()
	var due []*Fiber
	r.mu.Lock()
	for len(r.timers) > 0 && r.timers[0].deadline <= now {
		e := heap.Pop(&r.timers).(*timerEntry)
		due = append(due, e.fiber)
	}
	r.mu.Unlock()
	for _, f := range due {
		r.Awakened(f)
	}
}

// runFiber hands the baton to f and blocks until it suspends or finishes.
func (r *Reactor) runFiber(f *Fiber) {
	f.state.Store(int32(fiberRunning))
	f.baton <- struct{}{}
	<-f.yielded
	if f.state.Load() == int32(fiberDone) {
		r.mu.Lock()
		delete(r.fibers, f.id)
		r.mu.Unlock()
	}
}

// Drive runs the reactor's event loop on the calling goroutine until
// Stop is called. The caller should dedicate one OS thread to this call
// (runtime.LockOSThread), matching the "one reactor per thread" model.
func (r *Reactor) Drive() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		panic("reactor: Drive called twice")
	}
	r.started = true
	r.mu.Unlock()

	for {
		select {
		case <-r.stopCh:
			return
		default:
		}
		for r.HasReady() {
			select {
			case <-r.stopCh:
				return
			default:
			}
			r.runFiber(r.PickNext())
		}
		if err := r.SuspendUntil(); err != nil {
			r.logger.Errorf("reactor %s: suspend error: %v", r.cfg.Name, err)
		}
	}
}

// Stop requests the drive loop to exit and wakes it if it is currently
// blocked. It does not wait for in-flight fibers; callers that need a
// clean drain should arrange that at a higher level (see accept.Server
// and pipeline.Executor's own shutdown sequencing).
func (r *Reactor) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		_ = r.driver.Notify()
	})
}

// Close releases the underlying I/O driver. Call only after Drive has
// returned.
func (r *Reactor) Close() error {
	if err := r.driver.Close(); err != nil {
		return fmt.Errorf("reactor %s: close: %w", r.cfg.Name, err)
	}
	return nil
}
