package dispatch

import "sync"

// Queue is a thread-safe ring queue that doubles its capacity when it
// passes 70% full, so producers never block and never drop. Used on the
// persistence path where losing rows is worse than growing memory.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	tail   int
	count  int
	cap    int
	closed bool

	pushed int64
	popped int64
	grows  int
}

// NewQueue creates a queue with the given initial capacity.
func NewQueue[T any](initial int) *Queue[T] {
	if initial < 1 {
		initial = 1
	}
	q := &Queue[T]{items: make([]T, initial), cap: initial}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues an item, growing if needed. Returns false after Close.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := (q.cap * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold {
		q.grow()
	}

	q.items[q.tail] = item
	q.tail = (q.tail + 1) % q.cap
	q.count++
	q.pushed++
	q.cond.Signal()
	return true
}

// Pop blocks until an item is available or the queue is closed and empty.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// Drain dequeues up to max items without blocking. Returns nil when empty.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}
	n := q.count
	if max > 0 && max < n {
		n = max
	}
	out := make([]T, n)
	for i := range out {
		out[i] = q.popLocked()
	}
	return out
}

// Close stops accepting pushes and wakes blocked consumers. Remaining
// items stay poppable.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// QueueStats reports queue counters.
type QueueStats struct {
	Count    int   `json:"count"`
	Capacity int   `json:"capacity"`
	Pushed   int64 `json:"pushed"`
	Popped   int64 `json:"popped"`
	Grows    int   `json:"grows"`
}

// Stats returns a snapshot of queue counters.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{Count: q.count, Capacity: q.cap, Pushed: q.pushed, Popped: q.popped, Grows: q.grows}
}

// popLocked removes the head item. Caller holds q.mu with count > 0.
func (q *Queue[T]) popLocked() T {
	item := q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head = (q.head + 1) % q.cap
	q.count--
	q.popped++
	return item
}

// grow doubles capacity, compacting the ring to the front. Caller holds q.mu.
func (q *Queue[T]) grow() {
	next := make([]T, q.cap*2)
	if q.count > 0 {
		if q.head < q.tail {
			copy(next, q.items[q.head:q.tail])
		} else {
			n := copy(next, q.items[q.head:])
			copy(next[n:], q.items[:q.tail])
		}
	}
	q.items = next
	q.head = 0
	q.tail = q.count
	q.cap = len(next)
	q.grows++
}
