// Package ringbuf provides a fixed-capacity, thread-safe ring buffer that
// evicts its oldest entry when full. It backs the bounded audit logs kept by
// the connection manager (state transitions, error log).
package ringbuf

import "sync"

// Buffer is a fixed-capacity FIFO. Push never blocks: when the buffer is full
// the oldest item is overwritten.
type Buffer[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // oldest item
	count    int
	capacity int

	// Stats
	totalPushed int64
	evicted     int64
}

// New creates a buffer holding at most capacity items.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends an item, evicting the oldest one if the buffer is full.
// Returns true if an item was evicted.
func (b *Buffer[T]) Push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalPushed++

	if b.count < b.capacity {
		b.buf[(b.head+b.count)%b.capacity] = item
		b.count++
		return false
	}

	// Full: overwrite oldest and advance head
	b.buf[b.head] = item
	b.head = (b.head + 1) % b.capacity
	b.evicted++
	return true
}

// Snapshot returns a copy of the contents, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.buf[(b.head+i)%b.capacity]
	}
	return out
}

// Last returns the newest item, or false if the buffer is empty.
func (b *Buffer[T]) Last() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.buf[(b.head+b.count-1)%b.capacity], true
}

// Reset drops all items. Stats are kept.
func (b *Buffer[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	for i := range b.buf {
		b.buf[i] = zero // Clear references for GC
	}
	b.head = 0
	b.count = 0
}

// Len returns the number of items currently held.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return b.capacity
}

// Stats returns buffer statistics.
func (b *Buffer[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Count:       b.count,
		Capacity:    b.capacity,
		TotalPushed: b.totalPushed,
		Evicted:     b.evicted,
	}
}

// Stats contains buffer statistics.
type Stats struct {
	Count       int
	Capacity    int
	TotalPushed int64
	Evicted     int64
}
