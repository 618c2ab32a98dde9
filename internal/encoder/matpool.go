// Package encoder appends composite frames to an encoded video container.
package encoder

import (
	"sync"

	"gocv.io/x/gocv"
)

// MatPool manages reusable BGR mats of a fixed canvas size so the append
// loop does not allocate per frame.
type MatPool struct {
	pool   chan gocv.Mat
	width  int
	height int

	mu     sync.Mutex
	closed bool
}

// NewMatPool pre-allocates size mats of width×height.
func NewMatPool(width, height, size int) *MatPool {
	if size <= 0 {
		size = 4
	}
	p := &MatPool{
		pool:   make(chan gocv.Mat, size),
		width:  width,
		height: height,
	}
	for i := 0; i < size; i++ {
		p.pool <- gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	}
	return p
}

// Get retrieves a mat from the pool, allocating a fresh one when empty.
func (p *MatPool) Get() gocv.Mat {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return gocv.NewMat()
	}

	select {
	case m := <-p.pool:
		return m
	default:
		return gocv.NewMatWithSize(p.height, p.width, gocv.MatTypeCV8UC3)
	}
}

// Put returns a mat to the pool, releasing it if the pool is full or closed.
// The send happens under the mutex so a racing Close cannot close the
// channel between the closed check and the send.
func (p *MatPool) Put(m gocv.Mat) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = m.Close()
		return
	}

	select {
	case p.pool <- m:
	default:
		_ = m.Close()
	}
}

// Close releases all pooled mats.
func (p *MatPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.pool)
	for m := range p.pool {
		_ = m.Close()
	}
	p.mu.Unlock()
}
