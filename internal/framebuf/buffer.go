// Package framebuf provides the bounded index→image store that couples the
// frame sampler to the persistence writer.
//
// There is no automatic eviction. The producer inserts with Set, the
// consumer calls Remove once the image is durably written, and that explicit
// remove is what bounds memory: every buffered image must be persisted
// exactly once, so an eviction-based cache could silently drop unwritten
// data.
package framebuf

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the buffer bound used when none is configured.
const DefaultCapacity = 10

// Buffer is a bounded, thread-safe index→image store.
type Buffer struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	images   map[int]image.Image
	capacity int

	// Metrics
	totalSets    atomic.Uint64
	totalRemoves atomic.Uint64
	peakCount    atomic.Int64
}

// New creates a buffer bounded at capacity images.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer{
		images:   make(map[int]image.Image, capacity),
		capacity: capacity,
	}
	b.notFull = sync.NewCond(&b.mu)
	return b
}

// Set inserts or overwrites the image at index. Inserting a new index while
// the buffer is at capacity is a caller bug; callers must gate inserts on
// WaitNotFull.
func (b *Buffer) Set(index int, img image.Image) error {
	if img == nil {
		return fmt.Errorf("framebuf: nil image at index %d", index)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.images[index]; !exists && len(b.images) >= b.capacity {
		return fmt.Errorf("framebuf: buffer full (capacity %d), cannot insert index %d", b.capacity, index)
	}

	b.images[index] = img
	b.totalSets.Add(1)
	if n := int64(len(b.images)); n > b.peakCount.Load() {
		b.peakCount.Store(n)
	}
	return nil
}

// Get returns the image at index, or nil if absent.
func (b *Buffer) Get(index int) image.Image {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.images[index]
}

// Contains reports whether an image is resident at index.
func (b *Buffer) Contains(index int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.images[index]
	return ok
}

// Remove frees the slot at index. Removing an absent index is a no-op.
func (b *Buffer) Remove(index int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.images[index]; ok {
		delete(b.images, index)
		b.totalRemoves.Add(1)
		b.notFull.Signal()
	}
}

// Len returns the current number of resident images.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.images)
}

// Capacity returns the configured bound.
func (b *Buffer) Capacity() int { return b.capacity }

// Clear drops all resident images and wakes blocked producers.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.images = make(map[int]image.Image, b.capacity)
	b.notFull.Broadcast()
}

// WaitNotFull blocks until at least one slot is free or ctx is done. This is
// the producer's backpressure point: extraction rate is coupled to the
// consumer's drain rate through it.
func (b *Buffer) WaitNotFull(ctx context.Context) error {
	// Registered before taking the lock and stopped on return; the callback
	// takes b.mu itself, so the waiter must never block on the callback while
	// holding the mutex.
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.notFull.Broadcast()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.images) >= b.capacity {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.notFull.Wait()
		if err := ctx.Err(); err != nil {
			// A consumer Signal landing on a cancelled waiter must not be
			// lost; pass it on to any live waiter.
			b.notFull.Signal()
			return err
		}
	}
	return nil
}

// Metrics returns buffer statistics.
func (b *Buffer) Metrics() map[string]interface{} {
	b.mu.Lock()
	current := len(b.images)
	b.mu.Unlock()
	return map[string]interface{}{
		"capacity":      b.capacity,
		"current_count": current,
		"peak_count":    b.peakCount.Load(),
		"total_sets":    b.totalSets.Load(),
		"total_removes": b.totalRemoves.Load(),
	}
}
