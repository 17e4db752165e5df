package buffer

import (
	"sync"
)

// Ring is a thread-safe bounded buffer. When full, the oldest item is dropped.
type Ring[T any] struct {
	mu       sync.Mutex
	data     []T
	capacity int
}

// NewRing creates a Ring with the specified capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		data:     make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push adds an item. If the ring is full, the oldest item is dropped.
func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.data) >= r.capacity {
		// Drop oldest (shift left)
		r.data = r.data[1:]
	}
	r.data = append(r.data, item)
}

// Snapshot returns a copy of the buffered items, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, len(r.data))
	copy(out, r.data)
	return out
}

// Last returns up to n most recent items, oldest first.
func (r *Ring[T]) Last(n int) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || len(r.data) == 0 {
		return nil
	}
	if n > len(r.data) {
		n = len(r.data)
	}
	out := make([]T, n)
	copy(out, r.data[len(r.data)-n:])
	return out
}

// Newest returns the most recent item, or false if empty.
func (r *Ring[T]) Newest() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.data) == 0 {
		var zero T
		return zero, false
	}
	return r.data[len(r.data)-1], true
}

// Len returns the current number of items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

// Capacity returns the maximum number of items the ring retains.
func (r *Ring[T]) Capacity() int {
	return r.capacity
}
