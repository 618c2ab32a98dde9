package composite

import (
	"context"
	"fmt"
	"image"
	"math"
)

// WindowSpec parameterizes one composite frame.
type WindowSpec struct {
	CenterIndex int
	RingCount   int
	// Gamma tunes how fast outer rings fade; weight(d) = 1/(d+1)^gamma.
	Gamma float64
	// TargetPeak is the light budget: the theoretical maximum combined
	// brightness after weighting never exceeds it.
	TargetPeak float64
}

// LoadFrame resolves an ordinal index to its raster image. A (nil, nil)
// return means the index is absent (sequence boundary or dedup gap).
type LoadFrame func(ctx context.Context, index int) (image.Image, error)

// Ring is the additively merged pair of frames at ± distance from the
// center (a singleton for distance 0). It exists only during composition of
// one output frame.
type Ring struct {
	Distance int
	Present  int // frames merged into this ring: 1 for d=0, up to 2 otherwise
	images   []image.Image
}

// RingWeight returns the blend weight for ring distance d. Monotonically
// decreasing in d for gamma > 0.
func RingWeight(d int, gamma float64) float64 {
	return 1 / math.Pow(float64(d+1), gamma)
}

// BudgetScale returns min(targetPeak/totalWeight, 1): a conservative static
// bound that caps worst-case combined brightness without measuring pixels.
func BudgetScale(totalWeight, targetPeak float64) float64 {
	if totalWeight <= 0 {
		return 1
	}
	s := targetPeak / totalWeight
	if s > 1 {
		return 1
	}
	return s
}

// Compose builds the composite plane for one center index. It loads rings
// sequentially, which bounds residency at 2×ringCount+1 source images and
// keeps output deterministic.
func Compose(ctx context.Context, load LoadFrame, spec WindowSpec) (*Plane, error) {
	if spec.RingCount < 0 {
		return nil, fmt.Errorf("composite: negative ring count %d", spec.RingCount)
	}
	if spec.Gamma <= 0 {
		return nil, fmt.Errorf("composite: gamma must be > 0, got %v", spec.Gamma)
	}

	rings := make([]Ring, 0, spec.RingCount+1)
	for d := 0; d <= spec.RingCount; d++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ring, err := loadRing(ctx, load, spec.CenterIndex, d)
		if err != nil {
			return nil, err
		}
		rings = append(rings, ring)
	}

	totalWeight := 0.0
	var canvas image.Image
	for _, ring := range rings {
		totalWeight += RingWeight(ring.Distance, spec.Gamma) * float64(ring.Present)
		if canvas == nil && ring.Present > 0 {
			canvas = ring.images[0]
		}
	}
	if canvas == nil {
		return nil, fmt.Errorf("composite: no frames present in window around index %d", spec.CenterIndex)
	}

	scale := BudgetScale(totalWeight, spec.TargetPeak)

	b := canvas.Bounds()
	plane := NewPlane(b.Dx(), b.Dy())

	// Stack farthest to nearest. Addition commutes, but the fixed order
	// keeps float rounding deterministic across runs.
	for d := len(rings) - 1; d >= 0; d-- {
		ring := rings[d]
		w := RingWeight(ring.Distance, spec.Gamma) * scale
		for _, img := range ring.images {
			plane.Accumulate(img, w)
		}
	}

	return plane, nil
}

// loadRing merges the frames at center±d (just center for d=0). Absent
// neighbors reduce Present rather than failing.
func loadRing(ctx context.Context, load LoadFrame, center, d int) (Ring, error) {
	ring := Ring{Distance: d}

	indices := []int{center - d, center + d}
	if d == 0 {
		indices = indices[:1]
	}

	for _, idx := range indices {
		img, err := load(ctx, idx)
		if err != nil {
			return Ring{}, fmt.Errorf("composite: load frame %d: %w", idx, err)
		}
		if img == nil {
			continue
		}
		ring.images = append(ring.images, img)
		ring.Present++
	}
	return ring, nil
}
