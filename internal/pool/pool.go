package pool

import (
	"bytes"
	"sync"
)

// maxPooledBuffer caps what goes back into a pool so one huge payload
// does not pin memory for the life of the process
const maxPooledBuffer = 64 * 1024

// byteBufferPool holds byte buffers for export encoding and bulk bodies
var byteBufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// GetByteBuffer retrieves a byte buffer from the pool
func GetByteBuffer() *bytes.Buffer {
	buf := byteBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutByteBuffer returns a byte buffer to the pool
func PutByteBuffer(buf *bytes.Buffer) {
	if buf != nil && buf.Cap() < maxPooledBuffer {
		buf.Reset()
		byteBufferPool.Put(buf)
	}
}

// ChunkPool hands out fixed-size read buffers for chunked file parsing
type ChunkPool struct {
	size int
	pool sync.Pool
}

// NewChunkPool creates a pool of size-byte chunks
func NewChunkPool(size int) *ChunkPool {
	cp := &ChunkPool{size: size}
	cp.pool.New = func() interface{} {
		b := make([]byte, size)
		return &b
	}
	return cp
}

// Size returns the chunk size served by the pool
func (cp *ChunkPool) Size() int {
	return cp.size
}

// Get retrieves a chunk of exactly Size() bytes
func (cp *ChunkPool) Get() []byte {
	return (*cp.pool.Get().(*[]byte))[:cp.size]
}

// Put returns a chunk to the pool. Slices of another capacity are dropped.
func (cp *ChunkPool) Put(chunk []byte) {
	if cap(chunk) != cp.size {
		return
	}
	chunk = chunk[:cp.size]
	cp.pool.Put(&chunk)
}

var (
	chunkPoolsMu sync.Mutex
	chunkPools   = make(map[int]*ChunkPool)
)

// ForSize returns the shared chunk pool for a given chunk size
func ForSize(size int) *ChunkPool {
	chunkPoolsMu.Lock()
	defer chunkPoolsMu.Unlock()

	cp, ok := chunkPools[size]
	if !ok {
		cp = NewChunkPool(size)
		chunkPools[size] = cp
	}
	return cp
}
