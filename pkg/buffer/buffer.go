// Package buffer provides a bounded, thread-safe ring buffer. A full ring
// evicts its oldest item so producers never block.
package buffer

import (
	"sync"

	"github.com/c360/mavcot/errors"
)

// DropCallback is called, outside the lock, with each item lost to overflow.
type DropCallback[T any] func(item T)

// Ring is a fixed-capacity FIFO. Write never blocks.
type Ring[T any] struct {
	mu      sync.Mutex
	items   []T
	head    int // next write position
	tail    int // oldest item
	size    int
	closed  bool
	stats   *Statistics
	metrics *bufferMetrics
	onDrop  DropCallback[T]
}

// NewRing creates a ring with the given capacity. Capacities below 1 become 1.
// An error is returned only when metrics were requested and registration failed.
func NewRing[T any](capacity int, options ...Option[T]) (*Ring[T], error) {
	if capacity < 1 {
		capacity = 1
	}
	opts := applyOptions(options...)

	r := &Ring[T]{
		items:  make([]T, capacity),
		stats:  NewStatistics(),
		onDrop: opts.dropCallback,
	}

	if opts.metricsReg != nil {
		m, err := newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "Ring", "NewRing", "metrics registration")
		}
		r.metrics = m
	}
	return r, nil
}

// Write appends item, evicting the oldest item when full.
func (r *Ring[T]) Write(item T) error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Ring", "Write", "buffer closed")
	}

	var (
		dropped    T
		hasDropped bool
	)

	if r.size == len(r.items) {
		r.stats.overflow()
		if r.metrics != nil {
			r.metrics.overflows.Inc()
			r.metrics.drops.Inc()
		}

		dropped, hasDropped = r.items[r.tail], true
		r.tail = (r.tail + 1) % len(r.items)
		r.size--
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	r.size++
	r.stats.write(r.size)
	if r.metrics != nil {
		r.metrics.recordWrite(r.size, len(r.items))
	}
	r.mu.Unlock()

	if hasDropped && r.onDrop != nil {
		r.onDrop(dropped)
	}
	return nil
}

// Drain removes and returns every buffered item, oldest first.
// It returns nil when the buffer is empty.
func (r *Ring[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil
	}

	var zero T
	out := make([]T, r.size)
	for i := range out {
		out[i] = r.items[r.tail]
		r.items[r.tail] = zero
		r.tail = (r.tail + 1) % len(r.items)
	}
	n := r.size
	r.size = 0
	r.head, r.tail = 0, 0
	r.stats.read(n, 0)
	if r.metrics != nil {
		r.metrics.recordRead(n, 0, len(r.items))
	}
	return out
}

// Size returns the number of buffered items.
func (r *Ring[T]) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the fixed capacity.
func (r *Ring[T]) Capacity() int {
	return len(r.items)
}

// Stats returns the live statistics tracker.
func (r *Ring[T]) Stats() *Statistics {
	return r.stats
}

// Close rejects further writes. Buffered items stay drainable.
func (r *Ring[T]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
