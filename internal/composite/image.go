// Package composite builds temporal composite frames: for each center frame
// it additively blends a symmetric window of neighbors with distance-decayed
// weights, then clamps measured brightness to a target peak.
package composite

import (
	"image"
	"image/color"
)

// Plane is a linear-light RGB accumulation surface. Channel values are
// normalized so 1.0 is full intensity; additive compositing can push values
// above 1.0, which is why tone mapping happens before 8-bit conversion.
type Plane struct {
	W, H int
	Pix  []float64 // 3 channels per pixel, RGB order
}

// NewPlane returns a black plane of the given size.
func NewPlane(w, h int) *Plane {
	return &Plane{W: w, H: h, Pix: make([]float64, w*h*3)}
}

// Accumulate adds img scaled by weight onto the plane. Only the overlapping
// region contributes; alpha is ignored (additive, not alpha, compositing).
func (p *Plane) Accumulate(img image.Image, weight float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > p.W {
		w = p.W
	}
	if h > p.H {
		h = p.H
	}

	if src, ok := img.(*image.RGBA); ok {
		for y := 0; y < h; y++ {
			srcRow := src.Pix[(y+b.Min.Y-src.Rect.Min.Y)*src.Stride:]
			dstRow := p.Pix[y*p.W*3:]
			for x := 0; x < w; x++ {
				si := (x + b.Min.X - src.Rect.Min.X) * 4
				di := x * 3
				dstRow[di+0] += weight * float64(srcRow[si+0]) / 255
				dstRow[di+1] += weight * float64(srcRow[si+1]) / 255
				dstRow[di+2] += weight * float64(srcRow[si+2]) / 255
			}
		}
		return
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bch, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			di := (y*p.W + x) * 3
			p.Pix[di+0] += weight * float64(r) / 65535
			p.Pix[di+1] += weight * float64(g) / 65535
			p.Pix[di+2] += weight * float64(bch) / 65535
		}
	}
}

// Peak returns the maximum channel value over the whole plane.
func (p *Plane) Peak() float64 {
	peak := 0.0
	for _, v := range p.Pix {
		if v > peak {
			peak = v
		}
	}
	return peak
}

// ToRGBA converts the plane to an 8-bit image, clamping at full intensity.
func (p *Plane) ToRGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, p.W, p.H))
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			si := (y*p.W + x) * 3
			out.SetRGBA(x, y, color.RGBA{
				R: clamp8(p.Pix[si+0]),
				G: clamp8(p.Pix[si+1]),
				B: clamp8(p.Pix[si+2]),
				A: 255,
			})
		}
	}
	return out
}

func clamp8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
