// Package lockfree provides lock-free data structures for high-rate ingest paths
package lockfree

import (
	"sync/atomic"
)

// SPSC is a bounded single-producer single-consumer ring queue. It is the
// only structure shared between a feed handler and its writer goroutine:
// Enqueue is called from exactly one producer, Dequeue from exactly one
// consumer, and both are wait-free. FIFO order is preserved; nothing is
// coalesced or reordered.
type SPSC[T any] struct {
	// Head and tail live on separate cache lines to avoid false sharing
	// between the producer and consumer cores.
	head     atomic.Uint64
	_padding [7]uint64 //nolint:unused // 56 bytes padding

	tail      atomic.Uint64
	_padding2 [7]uint64 //nolint:unused // 56 bytes padding

	buffer   []T
	capacity uint64
	mask     uint64
}

// NewSPSC creates a queue with the given capacity, rounded up to the next
// power of 2 for efficient masking. Slots are allocated up front; the queue
// never allocates after construction.
func NewSPSC[T any](capacity int) *SPSC[T] {
	c := uint64(1)
	for c < uint64(capacity) {
		c <<= 1
	}

	return &SPSC[T]{
		buffer:   make([]T, c),
		capacity: c,
		mask:     c - 1,
	}
}

// Enqueue appends v to the queue. It never blocks; it returns false when the
// queue is full so the producer can count the drop and move on.
func (q *SPSC[T]) Enqueue(v T) bool {
	tail := q.tail.Load()
	if tail-q.head.Load() == q.capacity {
		return false
	}

	q.buffer[tail&q.mask] = v
	q.tail.Store(tail + 1)
	return true
}

// Dequeue removes the oldest item. It never blocks; ok is false when the
// queue is empty. Ownership of the item passes to the caller.
func (q *SPSC[T]) Dequeue() (v T, ok bool) {
	head := q.head.Load()
	if head == q.tail.Load() {
		return v, false
	}

	v = q.buffer[head&q.mask]
	q.head.Store(head + 1)
	return v, true
}

// Len returns the current number of queued items. The value is approximate
// while the producer is running.
func (q *SPSC[T]) Len() int {
	return int(q.tail.Load() - q.head.Load())
}

// Cap returns the slot count the queue was built with.
func (q *SPSC[T]) Cap() int {
	return int(q.capacity)
}

// IsEmpty reports whether the queue has no items. The check is atomic but
// may be stale by the time the caller acts on it.
func (q *SPSC[T]) IsEmpty() bool {
	return q.head.Load() == q.tail.Load()
}

// IsFull reports whether the queue has no free slots.
func (q *SPSC[T]) IsFull() bool {
	return q.tail.Load()-q.head.Load() == q.capacity
}

// AtomicCounter is a lock-free counter for drop and row statistics.
type AtomicCounter struct {
	value atomic.Uint64
}

// Increment atomically increments the counter by one.
func (c *AtomicCounter) Increment() {
	c.value.Add(1)
}

// Add atomically adds delta to the counter.
func (c *AtomicCounter) Add(delta uint64) {
	c.value.Add(delta)
}

// Get returns the current value.
func (c *AtomicCounter) Get() uint64 {
	return c.value.Load()
}

// Reset sets the counter back to zero.
func (c *AtomicCounter) Reset() {
	c.value.Store(0)
}
