package video

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// FileSource reads frames from a video file through OpenCV. It is safe for
// use by one goroutine at a time; the sampler is strictly sequential so no
// internal queueing is needed.
type FileSource struct {
	mu   sync.Mutex
	cap  *gocv.VideoCapture
	path string

	frameRate float64
	duration  time.Duration
	width     int
	height    int

	closed bool
}

// OpenFile opens the video at path and probes its primary visual track.
func OpenFile(path string) (*FileSource, error) {
	cap, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("video: open %s: %w", path, err)
	}
	if !cap.IsOpened() {
		_ = cap.Close()
		return nil, fmt.Errorf("video: %s has no usable video track", path)
	}

	fps := cap.Get(gocv.VideoCaptureFPS)
	frames := cap.Get(gocv.VideoCaptureFrameCount)
	width := int(cap.Get(gocv.VideoCaptureFrameWidth))
	height := int(cap.Get(gocv.VideoCaptureFrameHeight))

	if fps <= 0 || frames <= 0 || width <= 0 || height <= 0 {
		_ = cap.Close()
		return nil, fmt.Errorf("video: %s has no usable video track (fps=%v frames=%v size=%dx%d)",
			path, fps, frames, width, height)
	}

	return &FileSource{
		cap:       cap,
		path:      path,
		frameRate: fps,
		duration:  time.Duration(frames / fps * float64(time.Second)),
		width:     width,
		height:    height,
	}, nil
}

// Duration implements Source.
func (s *FileSource) Duration() time.Duration { return s.duration }

// FrameRate implements Source.
func (s *FileSource) FrameRate() float64 { return s.frameRate }

// Size implements Source.
func (s *FileSource) Size() (int, int) { return s.width, s.height }

// FrameAt seeks to ts and decodes one frame. Seeking is frame-accurate: the
// position is set by frame number computed from ts, not by nearest keyframe.
func (s *FileSource) FrameAt(ctx context.Context, ts time.Duration) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("video: source %s is closed", s.path)
	}

	frameNo := ts.Seconds() * s.frameRate
	if ok := s.cap.Set(gocv.VideoCapturePosFrames, frameNo); !ok {
		// Some backends report seek support lazily; fall back to time-based
		// positioning before giving up.
		s.cap.Set(gocv.VideoCapturePosMsec, float64(ts.Milliseconds()))
	}

	mat := gocv.NewMat()
	defer mat.Close()

	if ok := s.cap.Read(&mat); !ok || mat.Empty() {
		return nil, fmt.Errorf("video: decode frame at %v in %s failed", ts, s.path)
	}

	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("video: convert frame at %v: %w", ts, err)
	}
	return img, nil
}

// Close releases the underlying capture.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.cap.Close()
}
