package encoder

import (
	"sync"
	"testing"

	"gocv.io/x/gocv"
)

func TestMatPoolPutAfterClose(t *testing.T) {
	p := NewMatPool(4, 4, 2)

	m := p.Get()
	p.Close()

	// A late Put after Close must release the mat, not send on the closed
	// channel.
	p.Put(m)

	// Get on a closed pool hands back a throwaway mat rather than a pooled
	// one.
	fresh := p.Get()
	if !fresh.Empty() {
		t.Fatal("Get after Close should return an unallocated mat")
	}
	_ = fresh.Close()
}

func TestMatPoolPutCloseRace(t *testing.T) {
	for i := 0; i < 100; i++ {
		p := NewMatPool(4, 4, 1)
		m := p.Get()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.Put(m)
		}()
		go func() {
			defer wg.Done()
			p.Close()
		}()
		wg.Wait()
	}
}

func TestMatPoolReusesMats(t *testing.T) {
	p := NewMatPool(8, 6, 1)
	defer p.Close()

	m := p.Get()
	if m.Cols() != 8 || m.Rows() != 6 {
		t.Fatalf("mat size = %dx%d, want 8x6", m.Cols(), m.Rows())
	}
	p.Put(m)

	again := p.Get()
	if again.Cols() != 8 || again.Rows() != 6 {
		t.Fatalf("pooled mat size = %dx%d, want 8x6", again.Cols(), again.Rows())
	}
	p.Put(again)
}
