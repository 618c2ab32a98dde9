package extract

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/jasonagola/tennisvision/internal/framebuf"
	"github.com/jasonagola/tennisvision/internal/project"
	"github.com/jasonagola/tennisvision/internal/store"

	"github.com/google/uuid"
)

// WriterMetrics counts persistence outcomes for one run.
type WriterMetrics struct {
	Persisted         int
	WriteFailures     int
	ThumbnailFailures int
}

// Writer drains the frame buffer on its own goroutine, encoding and writing
// a full-resolution JPEG plus a thumbnail for each sample, then recording a
// PersistedFrame. Disk latency here never blocks the sampling loop beyond
// the buffer's capacity bound.
//
// A write failure drops the frame: it is logged, no record is created, and
// the run continues. Callers that need completeness compare the store count
// against the expected sample count.
type Writer struct {
	proj     project.Context
	buf      *framebuf.Buffer
	frames   store.FrameStore
	logger   *zap.Logger
	maxThumb int
	quality  int

	metrics WriterMetrics
}

// NewWriter creates a persistence writer. maxThumb is the thumbnail bounding
// box edge in pixels; quality is the JPEG quality for both outputs.
func NewWriter(proj project.Context, buf *framebuf.Buffer, frames store.FrameStore, maxThumb, quality int, logger *zap.Logger) *Writer {
	if maxThumb <= 0 {
		maxThumb = 128
	}
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	return &Writer{
		proj:     proj,
		buf:      buf,
		frames:   frames,
		logger:   logger.Named("persist-writer"),
		maxThumb: maxThumb,
		quality:  quality,
	}
}

// Run drains samples until the channel is closed. Samples already handed
// off are written out even when the run is being cancelled, so the store
// reflects exactly the frames that completed.
func (w *Writer) Run(ctx context.Context, samples <-chan Sample) error {
	if err := os.MkdirAll(w.proj.Abs(w.proj.FramesDir()), 0o755); err != nil {
		return fmt.Errorf("extract: create frames dir: %w", err)
	}
	if err := os.MkdirAll(w.proj.Abs(w.proj.ThumbsDir()), 0o755); err != nil {
		return fmt.Errorf("extract: create thumbnails dir: %w", err)
	}

	for sample := range samples {
		w.persist(ctx, sample)
	}
	return nil
}

// Metrics returns counters for the finished run.
func (w *Writer) Metrics() WriterMetrics { return w.metrics }

func (w *Writer) persist(ctx context.Context, sample Sample) {
	// Ownership of the image transfers from the buffer to this writer; the
	// slot is freed whether or not the write succeeds.
	defer w.buf.Remove(sample.OrdinalIndex)

	img := w.buf.Get(sample.OrdinalIndex)
	if img == nil {
		w.metrics.WriteFailures++
		w.logger.Error("buffered frame missing", zap.Int("index", sample.OrdinalIndex))
		return
	}

	imageRel := w.proj.FrameImagePath(sample.OrdinalIndex)
	if err := w.writeJPEG(w.proj.Abs(imageRel), img); err != nil {
		w.metrics.WriteFailures++
		w.logger.Error("frame write failed, dropping frame",
			zap.Int("index", sample.OrdinalIndex),
			zap.String("path", imageRel),
			zap.Error(err))
		return
	}

	// Thumbnail failure is non-fatal: the record is created without one.
	thumbRel := w.proj.ThumbnailPath(sample.OrdinalIndex)
	if err := w.writeThumbnail(w.proj.Abs(thumbRel), img); err != nil {
		w.metrics.ThumbnailFailures++
		w.logger.Warn("thumbnail generation failed",
			zap.Int("index", sample.OrdinalIndex), zap.Error(err))
		thumbRel = ""
	}

	frame := store.PersistedFrame{
		ID:            uuid.New(),
		ProjectID:     w.proj.ID,
		OrdinalIndex:  sample.OrdinalIndex,
		FrameName:     fmt.Sprintf("frame_%06d", sample.OrdinalIndex),
		ImagePath:     imageRel,
		ThumbnailPath: thumbRel,
	}
	if err := w.frames.Insert(ctx, frame); err != nil {
		w.metrics.WriteFailures++
		w.logger.Error("frame metadata insert failed, dropping frame",
			zap.Int("index", sample.OrdinalIndex), zap.Error(err))
		// Best-effort cleanup so disk and store stay consistent.
		_ = os.Remove(w.proj.Abs(imageRel))
		if thumbRel != "" {
			_ = os.Remove(w.proj.Abs(thumbRel))
		}
		return
	}

	w.metrics.Persisted++
}

func (w *Writer) writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: w.quality}); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

// writeThumbnail scales the frame into a maxThumb bounding box, preserving
// aspect ratio, and writes it as JPEG.
func (w *Writer) writeThumbnail(path string, img image.Image) error {
	thumb := Thumbnail(img, w.maxThumb)
	if thumb == nil {
		return fmt.Errorf("extract: empty thumbnail for %s", filepath.Base(path))
	}
	return w.writeJPEG(path, thumb)
}

// Thumbnail returns img scaled to fit a max×max bounding box. Images already
// inside the box are returned unscaled.
func Thumbnail(img image.Image, max int) image.Image {
	b := img.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw <= 0 || sh <= 0 {
		return nil
	}
	if sw <= max && sh <= max {
		return img
	}

	var tw, th int
	if sw >= sh {
		tw = max
		th = sh * max / sw
	} else {
		th = max
		tw = sw * max / sh
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
