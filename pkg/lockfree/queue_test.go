package lockfree

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSPSCBasic(t *testing.T) {
	q := NewSPSC[int](8)

	assert.True(t, q.IsEmpty())
	assert.Equal(t, 8, q.Cap())

	_, ok := q.Dequeue()
	assert.False(t, ok, "dequeue on empty queue must not block or succeed")

	require.True(t, q.Enqueue(42))
	v, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestSPSCCapacityRounding(t *testing.T) {
	q := NewSPSC[byte](5)
	assert.Equal(t, 8, q.Cap())
}

func TestSPSCFull(t *testing.T) {
	q := NewSPSC[int](4)

	for i := 0; i < 4; i++ {
		require.True(t, q.Enqueue(i))
	}
	assert.True(t, q.IsFull())
	assert.False(t, q.Enqueue(99), "enqueue on full queue returns false")

	// Draining one slot makes room again.
	v, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 0, v)
	assert.True(t, q.Enqueue(99))
}

func TestSPSCFIFO(t *testing.T) {
	q := NewSPSC[int](1024)
	const n = 1000

	for i := 0; i < n; i++ {
		require.True(t, q.Enqueue(i))
	}
	assert.Equal(t, n, q.Len())

	for i := 0; i < n; i++ {
		v, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, i, v, "FIFO order must hold")
	}
	assert.True(t, q.IsEmpty())
}

// TestSPSCConcurrent drives one producer and one consumer and checks that
// every value arrives exactly once in order.
func TestSPSCConcurrent(t *testing.T) {
	q := NewSPSC[uint64](1 << 10)
	const n = 1 << 18

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(0); i < n; {
			if q.Enqueue(i) {
				i++
			}
		}
	}()

	var next uint64
	for next < n {
		v, ok := q.Dequeue()
		if !ok {
			continue
		}
		if v != next {
			t.Fatalf("out of order: got %d, want %d", v, next)
		}
		next++
	}
	wg.Wait()
}

func TestAtomicCounter(t *testing.T) {
	var c AtomicCounter
	c.Increment()
	c.Add(41)
	assert.Equal(t, uint64(42), c.Get())
	c.Reset()
	assert.Equal(t, uint64(0), c.Get())
}
