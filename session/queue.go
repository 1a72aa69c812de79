package session

import (
	"errors"
	"sync"
	"time"
)

// ErrQueueFull is returned when a chunk would exceed the queue limits
var ErrQueueFull = errors.New("audio queue full")

// Chunk is one audio payload waiting for translation. Language is resolved
// when the chunk arrives, so a later language-toggle does not affect it.
type Chunk struct {
	Data       []byte
	Language   Language
	ReceivedAt time.Time
}

// AudioQueue holds a sender's pending chunks in arrival order
type AudioQueue struct {
	chunks    []Chunk
	totalSize int
	maxChunks int
	maxSize   int
	ready     chan struct{}
	mu        sync.Mutex
}

// NewAudioQueue creates a queue bounded by chunk count and total bytes.
// A non-positive limit disables that bound.
func NewAudioQueue(maxChunks, maxSize int) *AudioQueue {
	return &AudioQueue{
		maxChunks: maxChunks,
		maxSize:   maxSize,
		ready:     make(chan struct{}, 1),
	}
}

// Push appends a chunk and wakes the consumer
func (q *AudioQueue) Push(c Chunk) error {
	q.mu.Lock()
	if q.maxChunks > 0 && len(q.chunks) >= q.maxChunks {
		q.mu.Unlock()
		return ErrQueueFull
	}
	if q.maxSize > 0 && q.totalSize+len(c.Data) > q.maxSize {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.chunks = append(q.chunks, c)
	q.totalSize += len(c.Data)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Pop removes the oldest chunk
func (q *AudioQueue) Pop() (Chunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.chunks) == 0 {
		return Chunk{}, false
	}
	c := q.chunks[0]
	q.chunks[0] = Chunk{}
	q.chunks = q.chunks[1:]
	q.totalSize -= len(c.Data)
	return c, true
}

// Ready fires after Push. One signal may cover several chunks, so consumers
// drain with Pop until it reports false.
func (q *AudioQueue) Ready() <-chan struct{} {
	return q.ready
}

// Clear drops everything still queued
func (q *AudioQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.chunks = nil
	q.totalSize = 0
}

// Size returns the queued byte count
func (q *AudioQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.totalSize
}

// Len returns the number of queued chunks
func (q *AudioQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}
