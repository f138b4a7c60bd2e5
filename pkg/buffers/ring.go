// Package buffers provides bounded in-memory buffers for captured browser
// events. Every buffer has a fixed capacity and evicts oldest entries first.
package buffers

import (
	"sync"
)

// RingBuffer is a generic fixed-capacity circular buffer.
// Entries are evicted in FIFO order once capacity is reached.
// All methods are safe for concurrent use.
type RingBuffer[T any] struct {
	mu sync.RWMutex

	entries  []T
	capacity int

	// totalAdded counts every entry ever written, including evicted ones.
	totalAdded int64
	head       int
}

// NewRingBuffer creates a ring buffer with the given capacity.
// A capacity below 1 is raised to 1.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{
		entries:  make([]T, 0, capacity),
		capacity: capacity,
	}
}

// WriteOne appends a single entry, evicting the oldest entry when full.
func (rb *RingBuffer[T]) WriteOne(entry T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.entries) < rb.capacity {
		rb.entries = append(rb.entries, entry)
	} else {
		rb.entries[rb.head] = entry
	}
	rb.head = (rb.head + 1) % rb.capacity
	rb.totalAdded++
}

// ReadAll returns a copy of every buffered entry, oldest first.
func (rb *RingBuffer[T]) ReadAll() []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.orderedLocked()
}

// Last returns up to n of the newest entries, oldest first.
// A non-positive n returns everything.
func (rb *RingBuffer[T]) Last(n int) []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	all := rb.orderedLocked()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Filter returns the entries accepted by keep, oldest first.
func (rb *RingBuffer[T]) Filter(keep func(T) bool) []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := make([]T, 0, len(rb.entries))
	for _, entry := range rb.orderedLocked() {
		if keep(entry) {
			out = append(out, entry)
		}
	}
	return out
}

// Len returns the number of buffered entries.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}

// Cap returns the buffer capacity.
func (rb *RingBuffer[T]) Cap() int {
	return rb.capacity
}

// TotalAdded returns the number of entries ever written.
func (rb *RingBuffer[T]) TotalAdded() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.totalAdded
}

// Clear drops every buffered entry. TotalAdded is preserved.
func (rb *RingBuffer[T]) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.entries = make([]T, 0, rb.capacity)
	rb.head = 0
}

// orderedLocked returns entries oldest first. Caller must hold mu.
func (rb *RingBuffer[T]) orderedLocked() []T {
	out := make([]T, 0, len(rb.entries))
	if len(rb.entries) < rb.capacity {
		return append(out, rb.entries...)
	}
	out = append(out, rb.entries[rb.head:]...)
	return append(out, rb.entries[:rb.head]...)
}
