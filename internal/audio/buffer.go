package audio

import (
	"errors"
	"sync"
	"time"
)

// ErrBufferClosed is returned by Push once the buffer has been closed.
var ErrBufferClosed = errors.New("capture buffer closed")

// Chunk is the raw sample bytes delivered by one device callback.
// The final chunk of a recording may be shorter than the nominal size.
type Chunk []byte

// Buffer is the unbounded FIFO between the device callback (producer) and the
// session controller (consumer). Flush and DrainAll swap the whole queue out
// under the lock, so they never wait on the producer for more than one append.
type Buffer struct {
	chunks []Chunk
	closed bool

	// Statistics
	totalChunks   uint64
	totalBytes    uint64
	flushedChunks uint64
	drainedChunks uint64
	droppedChunks uint64 // trimmed by dropLastN
	lastPush      time.Time

	mu sync.Mutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	Queued        int       `json:"queued_chunks"`
	TotalChunks   uint64    `json:"total_chunks"`
	TotalBytes    uint64    `json:"total_bytes"`
	FlushedChunks uint64    `json:"flushed_chunks"`
	DrainedChunks uint64    `json:"drained_chunks"`
	DroppedChunks uint64    `json:"dropped_chunks"`
	LastPush      time.Time `json:"last_push"`
}

// NewBuffer creates an empty capture buffer
func NewBuffer() *Buffer {
	return &Buffer{
		chunks: make([]Chunk, 0, 64),
	}
}

// Push appends one chunk. The buffer takes ownership of chunk; the caller must
// not modify it afterwards.
func (b *Buffer) Push(chunk Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBufferClosed
	}

	b.chunks = append(b.chunks, chunk)
	b.totalChunks++
	b.totalBytes += uint64(len(chunk))
	b.lastPush = time.Now()
	return nil
}

// Flush discards every queued chunk and returns how many were discarded.
func (b *Buffer) Flush() int {
	taken := b.take()
	b.mu.Lock()
	b.flushedChunks += uint64(len(taken))
	b.mu.Unlock()
	return len(taken)
}

// DrainAll empties the queue and returns the concatenation of its chunks in
// push order, excluding the final dropLastN chunks. Fewer than dropLastN queued
// chunks yields an empty result.
func (b *Buffer) DrainAll(dropLastN int) []byte {
	taken := b.take()

	if dropLastN < 0 {
		dropLastN = 0
	}
	keep := len(taken) - dropLastN
	if keep < 0 {
		keep = 0
	}

	b.mu.Lock()
	b.drainedChunks += uint64(keep)
	b.droppedChunks += uint64(len(taken) - keep)
	b.mu.Unlock()

	size := 0
	for _, c := range taken[:keep] {
		size += len(c)
	}
	out := make([]byte, 0, size)
	for _, c := range taken[:keep] {
		out = append(out, c...)
	}
	return out
}

// take swaps the queue for a fresh one and hands back the old contents.
func (b *Buffer) take() []Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()

	taken := b.chunks
	b.chunks = make([]Chunk, 0, cap(taken))
	return taken
}

// Len returns the number of queued chunks
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Close makes further pushes fail. Queued chunks stay drainable.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// GetStats returns current buffer statistics
func (b *Buffer) GetStats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BufferStats{
		Queued:        len(b.chunks),
		TotalChunks:   b.totalChunks,
		TotalBytes:    b.totalBytes,
		FlushedChunks: b.flushedChunks,
		DrainedChunks: b.drainedChunks,
		DroppedChunks: b.droppedChunks,
		LastPush:      b.lastPush,
	}
}
