package encoder

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// fillMatBGR copies an RGBA image into a pre-sized CV8UC3 mat, swapping to
// the BGR channel order the writer expects. The mat's canvas size is fixed
// by the first frame; source pixels outside it are cropped and any
// uncovered area is left black.
func fillMatBGR(img *image.RGBA, mat *gocv.Mat) error {
	if img == nil {
		return &SinkError{Op: "convert", Fatal: true, Err: fmt.Errorf("nil frame image")}
	}
	if mat.Empty() || mat.Type() != gocv.MatTypeCV8UC3 {
		return &SinkError{Op: "convert", Fatal: true, Err: fmt.Errorf("pixel buffer allocation failed")}
	}

	data, err := mat.DataPtrUint8()
	if err != nil {
		return &SinkError{Op: "convert", Fatal: true, Err: fmt.Errorf("pixel buffer base address: %w", err)}
	}

	mw, mh := mat.Cols(), mat.Rows()
	b := img.Bounds()
	copyW, copyH := b.Dx(), b.Dy()
	if copyW > mw {
		copyW = mw
	}
	if copyH > mh {
		copyH = mh
	}

	for y := 0; y < copyH; y++ {
		srcRow := img.Pix[y*img.Stride : y*img.Stride+copyW*4]
		dstRow := data[y*mw*3 : y*mw*3+copyW*3]
		for x := 0; x < copyW; x++ {
			si, di := x*4, x*3
			dstRow[di+0] = srcRow[si+2] // B
			dstRow[di+1] = srcRow[si+1] // G
			dstRow[di+2] = srcRow[si+0] // R
		}
	}
	return nil
}
