package http1

import (
	"sync"
)

// ============================================================================
// Buffer Pool for Response Chunks
// ============================================================================
//
// Streaming a file copies it through one chunk buffer per response. Chunks
// come from sized pools so that a busy server reuses a small working set of
// slices instead of allocating per request. Request bodies are not pooled:
// they are allocated at their exact Content-Length and handed to the caller.
//
// Size classes (by requested chunk size):
// - small:  up to 4KB
// - medium: up to 64KB, the default streaming chunk
// - large:  up to 1MB
//
// All operations are safe for concurrent use.

const (
	smallBufferSize  = 4 << 10  // 4KB
	mediumBufferSize = 64 << 10 // 64KB
	largeBufferSize  = 1 << 20  // 1MB

	// DefaultChunkSize is the chunk size used to stream response bodies.
	DefaultChunkSize = mediumBufferSize
)

type bufferPool struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool
}

var globalBufferPool = &bufferPool{
	small: sync.Pool{
		New: func() any {
			buf := make([]byte, smallBufferSize)
			return &buf
		},
	},
	medium: sync.Pool{
		New: func() any {
			buf := make([]byte, mediumBufferSize)
			return &buf
		},
	},
	large: sync.Pool{
		New: func() any {
			buf := make([]byte, largeBufferSize)
			return &buf
		},
	},
}

// Get returns a slice of exactly size bytes, backed by a pooled buffer when
// size fits a class. Larger requests are allocated directly and never pooled.
func (p *bufferPool) Get(size int) []byte {
	var bufPtr *[]byte

	switch {
	case size <= smallBufferSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= mediumBufferSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= largeBufferSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}

	buf := *bufPtr
	return buf[:size]
}

// Put returns buf to the pool matching its capacity. Buffers of any other
// capacity are left to the garbage collector.
func (p *bufferPool) Put(buf []byte) {
	if buf == nil {
		return
	}

	full := buf[:cap(buf)]
	switch cap(buf) {
	case smallBufferSize:
		p.small.Put(&full)
	case mediumBufferSize:
		p.medium.Put(&full)
	case largeBufferSize:
		p.large.Put(&full)
	}
}

// GetBuffer acquires a buffer from the global pool.
//
//	buf := GetBuffer(size)
//	defer PutBuffer(buf)
func GetBuffer(size int) []byte {
	return globalBufferPool.Get(size)
}

// PutBuffer returns a buffer obtained from GetBuffer.
func PutBuffer(buf []byte) {
	globalBufferPool.Put(buf)
}
