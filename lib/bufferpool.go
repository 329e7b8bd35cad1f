package lib

import (
	"sync"

	"github.com/valyala/bytebufferpool"
)

// BufferPool hands out byte buffers used to hold partial frames between reads.
type BufferPool struct {
	sp sync.Pool
	m  *PoolMetrics
}

func (p *BufferPool) Acquire() *bytebufferpool.ByteBuffer {
	v := p.sp.Get()
	if v == nil {
		p.m.acquiredNew()
		return &bytebufferpool.ByteBuffer{}
	}
	p.m.acquiredReused()
	return v.(*bytebufferpool.ByteBuffer)
}

func (p *BufferPool) Release(b *bytebufferpool.ByteBuffer) {
	if b == nil {
		return
	}
	b.Reset()
	p.sp.Put(b)
	p.m.putBack()
}

// Metrics returns the reuse counters of the pool.
func (p *BufferPool) Metrics() *PoolMetrics { return p.m }

// AcquireBuffer takes an empty buffer from the shared overflow buffer pool.
func AcquireBuffer() *bytebufferpool.ByteBuffer { return bufferPool.Acquire() }

// ReleaseBuffer resets b and returns it to the shared overflow buffer pool.
func ReleaseBuffer(b *bytebufferpool.ByteBuffer) { bufferPool.Release(b) }

// GrowBuffer makes sure b can take n more bytes past its length. The backing
// array is replaced by one whose capacity is rounded up to a multiple of
// increment; the existing bytes are carried over.
func GrowBuffer(b *bytebufferpool.ByteBuffer, n, increment int) {
	need := len(b.B) + n
	if cap(b.B) >= need {
		return
	}
	if increment <= 0 {
		increment = need
	}
	size := ((need + increment - 1) / increment) * increment
	nb := make([]byte, len(b.B), size)
	copy(nb, b.B)
	b.B = nb
}
