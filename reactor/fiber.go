// File: reactor/fiber.go
// Author: momentics <momentics@gmail.com>
//
// Fiber models a cooperatively scheduled unit of work. Go has no stackful
// coroutines, so each Fiber is backed by an ordinary goroutine parked on a
// private baton channel: the owning Reactor hands it the baton to run and
// blocks until the fiber either suspends (a legitimate suspension point:
// socket I/O, a bounded-channel push/pop, or an explicit Yield) or
// terminates. Only one fiber's user code ever runs per reactor at a time.

package reactor

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

type fiberState int32

const (
	fiberReady fiberState = iota
	fiberRunning
	fiberSuspended
	fiberDone
)

// Fiber is a single cooperatively scheduled goroutine.
type Fiber struct {
	id      uint64
	owner   *Reactor
	baton   chan struct{}
	yielded chan struct{}
	state   atomic.Int32
	gid     atomic.Uint64
	linked  bool // true while present in the owner's ready queue
}

// ID returns the fiber's reactor-scoped identifier.
func (f *Fiber) ID() uint64 { return f.id }

// Reactor returns the reactor this fiber is bound to.
func (f *Fiber) Reactor() *Reactor { return f.owner }

// Suspend yields control back to the owning reactor's drive loop. It must
// be called from the fiber's own goroutine. The caller is responsible for
// having arranged a later call to Reactor.Awakened(f) (directly, or via a
// registered FDCallback / bounded-channel waiter) — otherwise the fiber
// never runs again.
func (f *Fiber) Suspend() {
	f.state.Store(int32(fiberSuspended))
	f.yielded <- struct{}{}
	<-f.baton
	f.state.Store(int32(fiberRunning))
}

// Yield is an explicit cooperative suspension point with no external
// wakeup source: it immediately re-enqueues the fiber as ready and hands
// control back to the reactor, giving other ready fibers a turn.
func (f *Fiber) Yield() {
	f.owner.Awakened(f)
	f.Suspend()
}

var fiberRegistry sync.Map // goroutine id (uint64) -> *Fiber

// Current returns the Fiber bound to the calling goroutine, or nil if the
// caller is not running inside a fiber (e.g. it is the reactor's own
// drive-loop goroutine, or an unrelated goroutine entirely).
func Current() *Fiber {
	if v, ok := fiberRegistry.Load(currentGoroutineID()); ok {
		return v.(*Fiber)
	}
	return nil
}

// currentGoroutineID parses the numeric id out of runtime.Stack's header
// line, the same technique used to detect "is this the loop's own
// goroutine" in event-loop implementations that lack a native handle for
// the running goroutine.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
