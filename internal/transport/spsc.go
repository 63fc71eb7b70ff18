// Package transport provides the bounded lock-free queues and the slab
// allocator that connect the engine's worker goroutines. All operations are
// non-blocking: a full or empty structure reports "not admitted" instead of
// waiting, and nothing here allocates after construction.
package transport

import "sync/atomic"

const cachePad = 56

type slot[T any] struct {
	seq atomic.Uint64
	val T
}

// SPSC is a single-producer single-consumer bounded FIFO. Each slot carries
// its own sequence word: the producer publishes a slot by storing seq=pos+1
// after the payload write, and the consumer recycles it with seq=pos+N, so
// slot hand-off needs no ordering through head and tail at all. Head and
// tail live on separate cache lines.
type SPSC[T any] struct {
	slots []slot[T]
	mask  uint64
	_     [cachePad]byte
	head  atomic.Uint64
	_     [cachePad]byte
	tail  atomic.Uint64
	_     [cachePad]byte
}

// NewSPSC builds a queue with the given capacity, which must be a power of
// two. Invalid capacities are a programming error and panic.
func NewSPSC[T any](capacity uint64) *SPSC[T] {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("transport: capacity must be a power of two")
	}
	q := &SPSC[T]{
		slots: make([]slot[T], capacity),
		mask:  capacity - 1,
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

// TryPush admits v unless the queue is full. Producer side only.
func (q *SPSC[T]) TryPush(v T) bool {
	pos := q.tail.Load()
	s := &q.slots[pos&q.mask]
	if s.seq.Load() != pos {
		return false // slot not yet recycled: full
	}
	s.val = v
	s.seq.Store(pos + 1)
	q.tail.Store(pos + 1)
	return true
}

// TryPop removes the oldest element. Consumer side only.
func (q *SPSC[T]) TryPop() (T, bool) {
	var zero T
	pos := q.head.Load()
	s := &q.slots[pos&q.mask]
	if s.seq.Load() != pos+1 {
		return zero, false
	}
	v := s.val
	s.val = zero // drop references held by the slot
	s.seq.Store(pos + uint64(len(q.slots)))
	q.head.Store(pos + 1)
	return v, true
}

// Size is the approximate number of queued elements. Only advisory for
// concurrent observers.
func (q *SPSC[T]) Size() uint64 {
	return q.tail.Load() - q.head.Load()
}

// Empty reports whether the queue appears empty.
func (q *SPSC[T]) Empty() bool {
	return q.head.Load() == q.tail.Load()
}

// Cap returns the fixed capacity.
func (q *SPSC[T]) Cap() uint64 { return q.mask + 1 }
