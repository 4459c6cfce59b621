// Package pool provides type-safe object pooling for scratch buffers on the
// encode and archival paths, reducing garbage collection pressure when whole
// day ranges are recompressed in one pass.
package pool

import (
	"bytes"
	"sync"
)

// Pool wraps sync.Pool with type safety and an optional reset hook applied
// before an object is returned to the pool.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
}

// New creates a pool. newFn produces fresh objects when the pool is empty;
// reset, if non-nil, cleans objects up on Put.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} { return newFn() }
	return p
}

// Get retrieves an object from the pool, allocating if necessary.
func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put returns an object to the pool after applying the reset hook.
func (p *Pool[T]) Put(v T) {
	if p.reset != nil {
		p.reset(v)
	}
	p.pool.Put(v)
}

var bufferPool = New(
	func() *bytes.Buffer { return bytes.NewBuffer(make([]byte, 0, 64<<10)) },
	func(b *bytes.Buffer) { b.Reset() },
)

// GetBuffer retrieves a reusable bytes.Buffer.
func GetBuffer() *bytes.Buffer { return bufferPool.Get() }

// PutBuffer returns a buffer obtained from GetBuffer.
func PutBuffer(b *bytes.Buffer) { bufferPool.Put(b) }

var byteSlicePool = New(
	func() *[]byte {
		b := make([]byte, 64<<10)
		return &b
	},
	nil,
)

// GetByteSlice retrieves a reusable 64 KiB scratch slice.
func GetByteSlice() *[]byte { return byteSlicePool.Get() }

// PutByteSlice returns a slice obtained from GetByteSlice.
func PutByteSlice(b *[]byte) { byteSlicePool.Put(b) }
