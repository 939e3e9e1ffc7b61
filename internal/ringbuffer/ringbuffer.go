// Package ringbuffer implements a bounded, blocking, multi-producer
// multi-consumer queue backed by a fixed slice of slots.
package ringbuffer

import (
	"errors"
	"sync"
)

var (
	// ErrInvalidCapacity is returned by New for a non-positive capacity.
	ErrInvalidCapacity = errors.New("ringbuffer: capacity must be positive")
	// ErrClosed is returned by Push once the buffer has been closed.
	ErrClosed = errors.New("ringbuffer: closed")
)

// RingBuffer is a fixed-capacity circular queue safe for any number of
// concurrent pushers and poppers. Push blocks while the buffer is full and
// Pop blocks while it is empty; Close releases both.
type RingBuffer[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	slots  []T
	head   int // next slot to pop
	tail   int // next slot to push
	count  int
	closed bool
}

// New returns an empty buffer holding at most capacity items.
func New[T any](capacity int) (*RingBuffer[T], error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	rb := &RingBuffer[T]{slots: make([]T, capacity)}
	rb.notFull = sync.NewCond(&rb.mu)
	rb.notEmpty = sync.NewCond(&rb.mu)
	return rb, nil
}

// Push appends item, waiting for a free slot if the buffer is full. It
// returns ErrClosed without blocking when the buffer is already closed, and
// also when the buffer is closed while the caller waits.
func (rb *RingBuffer[T]) Push(item T) error {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for rb.count == len(rb.slots) && !rb.closed {
		rb.notFull.Wait()
	}
	if rb.closed {
		return ErrClosed
	}

	rb.slots[rb.tail] = item
	rb.tail = (rb.tail + 1) % len(rb.slots)
	rb.count++
	rb.notEmpty.Signal()
	return nil
}

// Pop removes the oldest item, waiting while the buffer is empty. The second
// result is false once the buffer is closed and fully drained.
func (rb *RingBuffer[T]) Pop() (T, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for rb.count == 0 && !rb.closed {
		rb.notEmpty.Wait()
	}
	var zero T
	if rb.count == 0 {
		return zero, false
	}

	item := rb.slots[rb.head]
	rb.slots[rb.head] = zero
	rb.head = (rb.head + 1) % len(rb.slots)
	rb.count--
	rb.notFull.Signal()
	return item, true
}

// Close stops the buffer from accepting items and wakes every waiter.
// Items already queued remain available to Pop. Calling Close more than once
// has no further effect.
func (rb *RingBuffer[T]) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed {
		return
	}
	rb.closed = true
	rb.notFull.Broadcast()
	rb.notEmpty.Broadcast()
}

// Len reports the number of queued items.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Cap reports the fixed capacity.
func (rb *RingBuffer[T]) Cap() int { return len(rb.slots) }

// IsClosed reports whether Close has been called.
func (rb *RingBuffer[T]) IsClosed() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.closed
}
