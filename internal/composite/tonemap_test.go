package composite

import (
	"math"
	"testing"
)

func planeWithPeak(peak float64) *Plane {
	p := NewPlane(4, 4)
	for i := range p.Pix {
		p.Pix[i] = peak * float64(i%7) / 6
	}
	p.Pix[0] = peak
	return p
}

func TestToneMapPassThrough(t *testing.T) {
	p := planeWithPeak(0.8)
	before := append([]float64(nil), p.Pix...)

	if ToneMap(p, 1.0) {
		t.Fatal("compliant plane should not be rescaled")
	}
	for i := range p.Pix {
		if p.Pix[i] != before[i] {
			t.Fatalf("pass-through modified pixel %d", i)
		}
	}
}

func TestToneMapClampsPeak(t *testing.T) {
	p := planeWithPeak(2.5)
	if !ToneMap(p, 1.0) {
		t.Fatal("over-budget plane should be rescaled")
	}
	if got := p.Peak(); math.Abs(got-1.0) > 1e-12 {
		t.Fatalf("peak after clamp = %v, want 1.0", got)
	}
}

func TestToneMapUniformScale(t *testing.T) {
	// The clamp is a global diagonal rescale: channel ratios survive it.
	p := NewPlane(1, 1)
	p.Pix[0], p.Pix[1], p.Pix[2] = 2.0, 1.0, 0.5

	ToneMap(p, 1.0)

	if math.Abs(p.Pix[0]/p.Pix[1]-2.0) > 1e-12 || math.Abs(p.Pix[1]/p.Pix[2]-2.0) > 1e-12 {
		t.Fatalf("channel ratios changed: %v", p.Pix[:3])
	}
}

func TestToneMapIdempotence(t *testing.T) {
	// Twice on an already-compliant plane is bit-identical to once.
	p := planeWithPeak(3.0)
	ToneMap(p, 1.0)
	after := append([]float64(nil), p.Pix...)

	if ToneMap(p, 1.0) {
		t.Fatal("second application should be a no-op")
	}
	for i := range p.Pix {
		if p.Pix[i] != after[i] {
			t.Fatalf("second application modified pixel %d", i)
		}
	}
}
