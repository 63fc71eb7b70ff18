package transport

import (
	"math"
	"sync/atomic"
	"unsafe"
)

const slabNil = math.MaxUint32

// Slab is a fixed-capacity allocator for records of type T. Free cells form
// an index-linked list; Get pops the head with CAS, Put pushes with CAS. The
// head word packs a generation counter above the index, so a cell freed and
// re-allocated between a reader's load and its CAS cannot be mistaken for
// the original (the classic ABA case). Get returns nil on exhaustion and
// never blocks. Links are atomic because a reader that loses the head CAS
// may have read a link concurrently with a Put relinking it.
type Slab[T any] struct {
	cells []T
	next  []atomic.Uint32
	head  atomic.Uint64 // generation<<32 | free-list head index
	avail atomic.Int64
}

// NewSlab pre-allocates capacity cells. Capacity must fit in 32 bits.
func NewSlab[T any](capacity int) *Slab[T] {
	if capacity <= 0 || capacity >= slabNil {
		panic("transport: invalid slab capacity")
	}
	s := &Slab[T]{
		cells: make([]T, capacity),
		next:  make([]atomic.Uint32, capacity),
	}
	for i := 0; i < capacity-1; i++ {
		s.next[i].Store(uint32(i + 1))
	}
	s.next[capacity-1].Store(slabNil)
	s.avail.Store(int64(capacity))
	return s
}

// Get returns a zeroed cell, or nil when the slab is exhausted.
func (s *Slab[T]) Get() *T {
	for {
		h := s.head.Load()
		idx := uint32(h)
		if idx == slabNil {
			return nil
		}
		gen := h >> 32
		nxt := s.next[idx].Load()
		if s.head.CompareAndSwap(h, (gen+1)<<32|uint64(nxt)) {
			s.avail.Add(-1)
			return &s.cells[idx]
		}
	}
}

// Put returns a cell obtained from Get. The cell is zeroed before it rejoins
// the free list. Passing a pointer that did not come from this slab is a
// programming error.
func (s *Slab[T]) Put(p *T) {
	var zero T
	*p = zero
	idx := s.indexOf(p)
	for {
		h := s.head.Load()
		gen := h >> 32
		s.next[idx].Store(uint32(h))
		if s.head.CompareAndSwap(h, (gen+1)<<32|uint64(idx)) {
			s.avail.Add(1)
			return
		}
	}
}

// Available is the approximate number of free cells.
func (s *Slab[T]) Available() int64 { return s.avail.Load() }

// Cap returns the fixed capacity.
func (s *Slab[T]) Cap() int { return len(s.cells) }

func (s *Slab[T]) indexOf(p *T) uint32 {
	base := uintptr(unsafe.Pointer(&s.cells[0]))
	off := uintptr(unsafe.Pointer(p)) - base
	return uint32(off / unsafe.Sizeof(s.cells[0]))
}
