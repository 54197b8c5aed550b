// Package desim is the logical-time event queue the simulation kernel, the
// network model, and the reference worker are all built on. There is no
// wall-clock sleeping and no goroutine-per-entity concurrency: "entities"
// (the master process, the network control loop, a worker) are modeled as
// callback handlers registered against a single min-heap of pending events,
// which is the idiomatic way to get deterministic, single-threaded
// discrete-event simulation in Go without fighting the scheduler over
// virtual-time ordering.
package desim

import "container/heap"

// Time is simulated time. It has no relation to wall-clock time.
type Time = float64

type event struct {
	time      Time
	seq       int64
	cancelled *bool
	fn        func()
}

type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) { *h = append(*h, x.(*event)) }
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Handle cancels a previously scheduled event, provided it has not fired
// yet. Cancelling an already-fired or already-cancelled handle is a no-op.
type Handle struct {
	cancelled *bool
}

func (h Handle) Cancel() {
	if h.cancelled != nil {
		*h.cancelled = true
	}
}

// Clock drives the simulation: a single priority queue of (time, fn) pairs,
// processed strictly in (time, insertion-order) sequence. fn callbacks run
// to completion before the next event is popped, so mutation within a
// callback is always atomic with respect to every other entity.
type Clock struct {
	now  Time
	seq  int64
	heap eventHeap
}

func New() *Clock {
	c := &Clock{}
	heap.Init(&c.heap)
	return c
}

func (c *Clock) Now() Time { return c.now }

// Schedule runs fn at now+delay. Events scheduled for the same instant run
// in the order Schedule was called (FIFO per simulated instant), which is
// what keeps runs deterministic.
func (c *Clock) Schedule(delay Time, fn func()) Handle {
	if delay < 0 {
		delay = 0
	}
	cancelled := new(bool)
	heap.Push(&c.heap, &event{time: c.now + delay, seq: c.seq, cancelled: cancelled, fn: fn})
	c.seq++
	return Handle{cancelled: cancelled}
}

// Pending reports whether any event remains in the queue.
func (c *Clock) Pending() bool { return c.heap.Len() > 0 }

// Run drains the event queue until it is empty or stop returns true,
// checked after every event. Returns the final simulated time.
func (c *Clock) Run(stop func() bool) Time {
	for c.heap.Len() > 0 {
		ev := heap.Pop(&c.heap).(*event)
		if *ev.cancelled {
			continue
		}
		c.now = ev.time
		ev.fn()
		if stop != nil && stop() {
			break
		}
	}
	return c.now
}
