package transport

import "sync/atomic"

// MPMC is a bounded multi-producer multi-consumer FIFO using per-slot
// sequence reservation: a producer claims a position by CAS on tail when the
// slot's sequence matches it, writes the payload, then releases the slot to
// consumers by bumping the sequence. The sign of seq−pos distinguishes
// "ready" (0), "full/empty" (<0) and "raced, reread" (>0).
type MPMC[T any] struct {
	slots []slot[T]
	mask  uint64
	_     [cachePad]byte
	head  atomic.Uint64
	_     [cachePad]byte
	tail  atomic.Uint64
	_     [cachePad]byte
}

// NewMPMC builds a queue with power-of-two capacity.
func NewMPMC[T any](capacity uint64) *MPMC[T] {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("transport: capacity must be a power of two")
	}
	q := &MPMC[T]{
		slots: make([]slot[T], capacity),
		mask:  capacity - 1,
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

// TryPush admits v unless the queue is full.
func (q *MPMC[T]) TryPush(v T) bool {
	pos := q.tail.Load()
	for {
		s := &q.slots[pos&q.mask]
		diff := int64(s.seq.Load()) - int64(pos)
		switch {
		case diff == 0:
			if q.tail.CompareAndSwap(pos, pos+1) {
				s.val = v
				s.seq.Store(pos + 1)
				return true
			}
			pos = q.tail.Load()
		case diff < 0:
			return false
		default:
			pos = q.tail.Load()
		}
	}
}

// TryPop removes the oldest element.
func (q *MPMC[T]) TryPop() (T, bool) {
	var zero T
	pos := q.head.Load()
	for {
		s := &q.slots[pos&q.mask]
		diff := int64(s.seq.Load()) - int64(pos+1)
		switch {
		case diff == 0:
			if q.head.CompareAndSwap(pos, pos+1) {
				v := s.val
				s.val = zero
				s.seq.Store(pos + q.mask + 1)
				return v, true
			}
			pos = q.head.Load()
		case diff < 0:
			return zero, false
		default:
			pos = q.head.Load()
		}
	}
}

// Size is the approximate number of queued elements.
func (q *MPMC[T]) Size() uint64 {
	tail := q.tail.Load()
	head := q.head.Load()
	if tail < head {
		return 0
	}
	return tail - head
}

// Empty reports whether the queue appears empty.
func (q *MPMC[T]) Empty() bool {
	return q.head.Load() == q.tail.Load()
}

// Cap returns the fixed capacity.
func (q *MPMC[T]) Cap() uint64 { return q.mask + 1 }
