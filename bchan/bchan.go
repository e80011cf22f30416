// File: bchan/bchan.go
// Author: momentics <momentics@gmail.com>
//
// BoundedChannel is a capacity-bounded MPMC queue whose Push/Pop are
// legitimate fiber suspension points: a blocked caller releases its
// reactor's baton rather than parking an OS thread, so cross-reactor
// producers and consumers can wake a specific other reactor's sleeping
// drive loop. Grounded on mr/pipeline_executor.cc's StringQueue/
// RecordQueue usage (fixed capacity, Push/Pop, StartClosing distinct
// from Close).

package bchan

import (
	"sync"

	"github.com/momentics/fiberflow/fibererr"
	"github.com/momentics/fiberflow/reactor"
)

type waiter struct {
	r     *reactor.Reactor
	fiber *reactor.Fiber
}

// BoundedChannel[T] is a FIFO queue with a fixed capacity.
type BoundedChannel[T any] struct {
	mu       sync.Mutex
	buf      []T
	cap      int
	closing  bool // StartClosing: no more pushes accepted, drains then closes
	closed   bool
	pushers  []waiter
	poppers  []waiter
}

// New creates a channel with the given capacity (must be > 0).
func New[T any](capacity int) *BoundedChannel[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &BoundedChannel[T]{cap: capacity}
}

// Push blocks (suspending the calling fiber, if any) until there is room,
// or the channel is closed/closing, in which case it returns
// fibererr.ErrClosed.
func (c *BoundedChannel[T]) Push(v T) error {
	for {
		c.mu.Lock()
		if c.closed || c.closing {
			c.mu.Unlock()
			return fibererr.ErrClosed
		}
		if len(c.buf) < c.cap {
			c.buf = append(c.buf, v)
			w := c.popFirstWaiter()
			c.mu.Unlock()
			c.wake([]waiter{w})
			return nil
		}
		w := c.park(&c.pushers)
		c.mu.Unlock()
		c.suspend(w)
	}
}

// Pop blocks until an item is available, or the channel has drained and
// closed, in which case it returns (zero, false).
func (c *BoundedChannel[T]) Pop() (T, bool) {
	for {
		c.mu.Lock()
		if len(c.buf) > 0 {
			v := c.buf[0]
			c.buf = c.buf[1:]
			w := c.popFirstPusherWaiter()
			c.mu.Unlock()
			c.wake([]waiter{w})
			return v, true
		}
		if c.closed || (c.closing && len(c.buf) == 0) {
			c.mu.Unlock()
			var zero T
			return zero, false
		}
		w := c.park(&c.poppers)
		c.mu.Unlock()
		c.suspend(w)
	}
}

// Close wakes every waiter (both producers and consumers) immediately
// and makes all future Push/Pop calls fail/drain.
func (c *BoundedChannel[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closing = true
	all := append(append([]waiter{}, c.pushers...), c.poppers...)
	c.pushers, c.poppers = nil, nil
	c.mu.Unlock()
	for _, w := range all {
		c.wake([]waiter{w})
	}
}

// StartClosing stops accepting new pushes (they return ErrClosed
// immediately) but lets consumers drain whatever is already buffered;
// once the buffer is empty, Pop starts returning (zero, false). Per the
// original's shutdown ordering, this wakes only consumers — producers are
// expected to have already stopped on their own by the time this is
// called.
func (c *BoundedChannel[T]) StartClosing() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	woken := c.poppers
	c.poppers = nil
	c.mu.Unlock()
	for _, w := range woken {
		c.wake([]waiter{w})
	}
}

// Len reports the number of buffered items.
func (c *BoundedChannel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

func (c *BoundedChannel[T]) park(list *[]waiter) waiter {
	w := waiter{}
	if f := reactor.Current(); f != nil {
		w = waiter{r: f.Reactor(), fiber: f}
	}
	*list = append(*list, w)
	return w
}

func (c *BoundedChannel[T]) popFirstWaiter() waiter {
	if len(c.poppers) == 0 {
		return waiter{}
	}
	w := c.poppers[0]
	c.poppers = c.poppers[1:]
	return w
}

func (c *BoundedChannel[T]) popFirstPusherWaiter() waiter {
	if len(c.pushers) == 0 {
		return waiter{}
	}
	w := c.pushers[0]
	c.pushers = c.pushers[1:]
	return w
}

func (c *BoundedChannel[T]) wake(ws []waiter) {
	for _, w := range ws {
		if w.fiber == nil {
			continue
		}
		w.r.Awakened(w.fiber)
		_ = w.r.Notify()
	}
}

// suspend blocks the calling goroutine until woken. If it is running
// inside a fiber, it suspends the fiber (releasing the reactor's baton);
// otherwise (a plain goroutine, e.g. in tests) a helper goroutine polls
// the channel's state and releases the caller once the buffer is
// non-empty, has room, or the channel is closing, leaving the caller's
// loop to retry.
func (c *BoundedChannel[T]) suspend(w waiter) {
	if w.fiber != nil {
		w.fiber.Suspend()
		return
	}
	// No owning fiber: park on a short poll loop. This path is only
	// exercised by tests driving a BoundedChannel directly, outside any
	// reactor.
	ch := make(chan struct{})
	go func() {
		for {
			c.mu.Lock()
			has := len(c.buf) > 0 || len(c.buf) < c.cap || c.closed || c.closing
			c.mu.Unlock()
			if has {
				close(ch)
				return
			}
		}
	}()
	<-ch
}
