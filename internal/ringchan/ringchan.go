// Package ringchan provides a bounded channel that overwrites its oldest element
// instead of blocking the producer.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// Ring is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Producers call Publish from any goroutine and never block. Consumers read from C()
// like a normal channel until Close is called.
//
//	r := ringchan.New[string](2)
//	r.Publish("a")
//	r.Publish("b")
//	r.Publish("c") // "a" is dropped
//	r.Close()
//	for v := range r.C() {
//	    fmt.Println(v) // b, c
//	}
type Ring[T any] struct {
	ch     chan T
	mu     sync.Mutex
	closed bool
	stats  Stats
}

// New creates a Ring with the given capacity.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// C returns the receive side of the ring.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Publish inserts v, discarding the oldest element if the ring is full.
// It reports whether an element was dropped. Publishing after Close is a no-op.
func (r *Ring[T]) Publish(v T) (dropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		atomic.AddInt64(&r.stats.Rejected, 1)
		return false
	}

	for {
		select {
		case r.ch <- v:
			atomic.AddInt64(&r.stats.Written, 1)
			return dropped
		default:
		}
		// Full: the consumer may drain concurrently, so the drop is best effort.
		select {
		case <-r.ch:
			atomic.AddInt64(&r.stats.Overwritten, 1)
			dropped = true
		default:
		}
	}
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	return len(r.ch)
}

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int {
	return cap(r.ch)
}

// Close closes the ring. Buffered elements remain readable. Safe to call twice.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.ch)
}

// Stats returns a snapshot of the counters.
func (r *Ring[T]) Stats() Stats {
	return Stats{
		Written:     atomic.LoadInt64(&r.stats.Written),
		Overwritten: atomic.LoadInt64(&r.stats.Overwritten),
		Rejected:    atomic.LoadInt64(&r.stats.Rejected),
	}
}

// Stats counts ring activity.
type Stats struct {
	Written     int64
	Overwritten int64
	Rejected    int64 // publishes after Close
}
