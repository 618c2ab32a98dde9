package composite

// ToneMap clamps the plane's measured peak to targetPeak. It is the safety
// net behind the static light budget: real content with many overlapping
// bright regions can still exceed the conservative bound.
//
// When peak <= targetPeak the plane is untouched, so applying ToneMap to an
// already-compliant plane is a no-op. When triggered, every channel is
// scaled uniformly by targetPeak/peak (a global diagonal rescale, not a
// local tone curve).
//
// Returns true when a rescale was applied.
func ToneMap(p *Plane, targetPeak float64) bool {
	if targetPeak <= 0 {
		return false
	}
	peak := p.Peak()
	if peak <= targetPeak {
		return false
	}
	s := targetPeak / peak
	for i, v := range p.Pix {
		nv := v * s
		// Rounding in v*s can land a hair above the target; pin it so a
		// second pass sees a compliant plane and does nothing.
		if nv > targetPeak {
			nv = targetPeak
		}
		p.Pix[i] = nv
	}
	return true
}
