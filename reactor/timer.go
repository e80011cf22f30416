// File: reactor/timer.go
// Author: momentics <momentics@gmail.com>
//
// Min-heap of pending fiber sleeps, ordered by monotonic deadline. No
// third-party heap implementation appears anywhere in the retrieved
// example repos, so this uses container/heap directly; the sentinel
// timer fd is armed to the earliest entry's deadline.

package reactor

import "container/heap"

type timerEntry struct {
	deadline int64
	fiber    *Fiber
	index    int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline < h[j].deadline }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

func (h *timerHeap) peekDeadline() (int64, bool) {
	if len(*h) == 0 {
		return 0, false
	}
	return (*h)[0].deadline, true
}

var _ = heap.Interface(&timerHeap{})
