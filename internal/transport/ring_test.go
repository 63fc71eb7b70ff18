package transport

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSPSCRoundTrip(t *testing.T) {
	q := NewSPSC[string](4)

	require.True(t, q.TryPush("A"))
	require.True(t, q.TryPush("B"))
	require.True(t, q.TryPush("C"))
	require.True(t, q.TryPush("D"))

	// Fifth push refused at capacity.
	assert.False(t, q.TryPush("X"))
	assert.Equal(t, uint64(4), q.Size())

	v, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "A", v)

	// One pop frees exactly one slot.
	require.True(t, q.TryPush("E"))
	assert.False(t, q.TryPush("X"))

	var drained []string
	for {
		v, ok := q.TryPop()
		if !ok {
			break
		}
		drained = append(drained, v)
	}
	assert.Equal(t, []string{"B", "C", "D", "E"}, drained)
	assert.True(t, q.Empty())
}

func TestSPSCEmptyPop(t *testing.T) {
	q := NewSPSC[int](8)
	_, ok := q.TryPop()
	assert.False(t, ok)
	assert.True(t, q.Empty())
	assert.Equal(t, uint64(8), q.Cap())
}

func TestSPSCWrapAround(t *testing.T) {
	q := NewSPSC[int](4)
	// Several full cycles through the ring.
	for round := 0; round < 10; round++ {
		for i := 0; i < 4; i++ {
			require.True(t, q.TryPush(round*4+i))
		}
		assert.False(t, q.TryPush(-1))
		for i := 0; i < 4; i++ {
			v, ok := q.TryPop()
			require.True(t, ok)
			assert.Equal(t, round*4+i, v)
		}
	}
}

func TestSPSCConcurrentFIFO(t *testing.T) {
	const n = 100000
	q := NewSPSC[int](1024)

	go func() {
		for i := 0; i < n; i++ {
			for !q.TryPush(i) {
				runtime.Gosched()
			}
		}
	}()

	for want := 0; want < n; want++ {
		var v int
		var ok bool
		for {
			v, ok = q.TryPop()
			if ok {
				break
			}
			runtime.Gosched()
		}
		if v != want {
			t.Fatalf("out of order: got %d, want %d", v, want)
		}
	}
}

func TestSPSCInvalidCapacity(t *testing.T) {
	assert.Panics(t, func() { NewSPSC[int](3) })
	assert.Panics(t, func() { NewSPSC[int](0) })
}

func TestMPMCSaturation(t *testing.T) {
	q := NewMPMC[int](4)
	for i := 0; i < 4; i++ {
		require.True(t, q.TryPush(i))
	}
	assert.False(t, q.TryPush(99))

	v, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 0, v)
	require.True(t, q.TryPush(4))
	assert.False(t, q.TryPush(99))

	for want := 1; want <= 4; want++ {
		v, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, want, v)
	}
	_, ok = q.TryPop()
	assert.False(t, ok)
}

func TestMPMCConcurrent(t *testing.T) {
	const (
		producers = 4
		consumers = 4
		perProd   = 25000
	)
	q := NewMPMC[int](256)

	var wg sync.WaitGroup
	results := make(chan int, producers*perProd)

	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, ok := q.TryPop()
				if !ok {
					runtime.Gosched()
					continue
				}
				if v < 0 {
					return
				}
				results <- v
			}
		}()
	}

	var pwg sync.WaitGroup
	for p := 0; p < producers; p++ {
		pwg.Add(1)
		go func(p int) {
			defer pwg.Done()
			for i := 0; i < perProd; i++ {
				for !q.TryPush(p*perProd + i) {
					runtime.Gosched()
				}
			}
		}(p)
	}
	pwg.Wait()

	// Poison pill per consumer.
	for c := 0; c < consumers; c++ {
		for !q.TryPush(-1) {
			runtime.Gosched()
		}
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool, producers*perProd)
	for v := range results {
		if seen[v] {
			t.Fatalf("duplicate value %d", v)
		}
		seen[v] = true
	}
	assert.Len(t, seen, producers*perProd)
}
