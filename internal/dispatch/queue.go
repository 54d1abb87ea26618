package dispatch

import (
	"sync"
)

// Queue is a thread-safe ring buffer that doubles its capacity when it
// fills past 70%, up to a hard maximum. Once at maximum capacity and
// full, Enqueue fails instead of growing, bounding memory under a
// stalled consumer.
type Queue[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	maxCap   int
	closed   bool

	// Stats
	enqueued int64
	dequeued int64
	rejected int64
	resizes  int
}

// QueueStats is a point-in-time view of queue counters.
type QueueStats struct {
	Count    int
	Capacity int
	Enqueued int64
	Dequeued int64
	Rejected int64
	Resizes  int
}

// NewQueue creates a queue with the given initial and maximum capacity.
// A maxCapacity of 0 means the initial capacity is also the maximum.
func NewQueue[T any](initialCapacity, maxCapacity int) *Queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if maxCapacity < initialCapacity {
		maxCapacity = initialCapacity
	}
	q := &Queue[T]{
		items:    make([]T, initialCapacity),
		capacity: initialCapacity,
		maxCap:   maxCapacity,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds an item, growing the ring if it is past 70% of the
// current capacity and below the maximum. Returns false when the queue
// is closed or full at maximum capacity.
func (q *Queue[T]) Enqueue(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := (q.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold && q.capacity < q.maxCap {
		q.grow()
	}

	if q.count == q.capacity {
		q.rejected++
		return false
	}

	q.items[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.enqueued++

	q.cond.Signal()
	return true
}

// Dequeue removes an item, blocking until one is available or the queue
// is closed. Returns false only when closed and drained.
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// TryDequeue removes an item without blocking.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// Drain removes up to max items (all items when max <= 0).
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
	for i := 0; i < n; i++ {
		out[i] = q.take()
	}
	return out
}

// Close marks the queue closed. Enqueue fails afterwards; blocked
// receivers drain remaining items, then observe the close.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the current ring capacity.
func (q *Queue[T]) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

// Stats returns queue counters.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Count:    q.count,
		Capacity: q.capacity,
		Enqueued: q.enqueued,
		Dequeued: q.dequeued,
		Rejected: q.rejected,
		Resizes:  q.resizes,
	}
}

// take removes the head item. Caller must hold the lock and have
// checked count > 0.
func (q *Queue[T]) take() T {
	item := q.items[q.head]
	var zero T
	q.items[q.head] = zero // release the reference for GC
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.dequeued++
	return item
}

// grow doubles capacity, clamped to maxCap. Caller must hold the lock.
func (q *Queue[T]) grow() {
	newCap := q.capacity * 2
	if newCap > q.maxCap {
		newCap = q.maxCap
	}
	if newCap == q.capacity {
		return
	}

	items := make([]T, newCap)
	if q.count > 0 {
		if q.head < q.tail {
			copy(items, q.items[q.head:q.tail])
		} else {
			n := copy(items, q.items[q.head:])
			copy(items[n:], q.items[:q.tail])
		}
	}

	q.items = items
	q.head = 0
	q.tail = q.count
	q.capacity = newCap
	q.resizes++
}
