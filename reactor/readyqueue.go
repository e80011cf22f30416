// File: reactor/readyqueue.go
// Author: momentics <momentics@gmail.com>
//
// FIFO ready queue of runnable fibers, backed by eapache/queue's growable
// ring buffer rather than a hand-rolled slice, matching the teacher's
// declared-but-unused dependency on the package.

package reactor

import "github.com/eapache/queue"

type readyQueue struct {
	q *queue.Queue
}

func newReadyQueue() *readyQueue {
	return &readyQueue{q: queue.New()}
}

func (r *readyQueue) push(f *Fiber) {
	r.q.Add(f)
}

func (r *readyQueue) pop() *Fiber {
	if r.q.Length() == 0 {
		return nil
	}
	v := r.q.Remove()
	return v.(*Fiber)
}

func (r *readyQueue) len() int {
	return r.q.Length()
}
