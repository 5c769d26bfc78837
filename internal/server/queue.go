package server

import (
	"sync"

	"alerta/internal/alert"
)

// Queue is the in-process FIFO between the ingress dispatcher and the
// worker pool. Push never blocks: when the broker outruns the workers the
// queue grows and its length is surfaced as a gauge. A nil item is the
// worker shutdown sentinel.
type Queue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []*alert.Alert
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a and wakes one waiting worker.
func (q *Queue) Push(a *alert.Alert) {
	q.mu.Lock()
	q.items = append(q.items, a)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop blocks until an item is available and removes it in FIFO order.
func (q *Queue) Pop() *alert.Alert {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.cond.Wait()
	}
	a := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return a
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
