// Package ringchan provides a bounded channel that never blocks its producer.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// RingChannel is a buffered channel with overwrite-oldest semantics.
//
// Producers call ForceSend and never block: when the buffer is full the
// oldest element is discarded. Consumers read from C() like a normal channel.
//
//	rc := ringchan.New[int](3)
//	for i := 0; i < 10; i++ {
//	    rc.ForceSend(i)
//	}
//	// C() now yields 7, 8, 9
type RingChannel[T any] struct {
	ch     chan T
	stats  Stats
	mu     sync.RWMutex
	closed bool
}

// Stats counts channel traffic. Read it through Stats().
type Stats struct {
	Written     int64
	Overwritten int64
	Rejected    int64
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// ForceSend inserts v, discarding the oldest element if the buffer is full.
// It reports whether an element was dropped. After Close it is a no-op.
func (rc *RingChannel[T]) ForceSend(v T) (dropped bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if rc.closed {
		atomic.AddInt64(&rc.stats.Rejected, 1)
		return false
	}

	for {
		select {
		case rc.ch <- v:
			atomic.AddInt64(&rc.stats.Written, 1)
			return dropped
		default:
		}

		select {
		case <-rc.ch:
			atomic.AddInt64(&rc.stats.Overwritten, 1)
			dropped = true
		default:
		}
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close stops accepting elements and closes the channel. Buffered elements
// can still be drained from C().
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !rc.closed {
		rc.closed = true
		close(rc.ch)
	}
}

// Stats returns a snapshot of the counters.
func (rc *RingChannel[T]) Stats() Stats {
	return Stats{
		Written:     atomic.LoadInt64(&rc.stats.Written),
		Overwritten: atomic.LoadInt64(&rc.stats.Overwritten),
		Rejected:    atomic.LoadInt64(&rc.stats.Rejected),
	}
}
