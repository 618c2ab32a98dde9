package encoder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// State is the sink lifecycle. Transitions are strictly forward:
// uninitialized → writing → finished.
type State int

const (
	StateUninitialized State = iota
	StateWriting
	StateFinishedOK
	StateFinishedErr
)

// ErrNotReady signals the writer cannot accept data yet; Append retries it
// internally with a short backoff.
var ErrNotReady = errors.New("encoder: writer not ready for more data")

// SinkError wraps a sink failure. Fatal errors abort the whole render:
// a video with silently dropped frames desyncs timing, so composite output
// is all-or-nothing.
type SinkError struct {
	Op    string
	Fatal bool
	Err   error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("encoder: %s: %v (fatal: %v)", e.Op, e.Err, e.Fatal)
}

func (e *SinkError) Unwrap() error { return e.Err }

// Sink accepts an ordered stream of composite frames and appends them to an
// output container at fixed frame intervals.
type Sink interface {
	// Begin opens the container with the canvas size of the first frame.
	// A configuration the writer cannot accept fails here, before any frame
	// is processed.
	Begin(width, height int) error
	// Append converts one frame and writes it at pts. Presentation times
	// must be monotonically increasing.
	Append(ctx context.Context, img *image.RGBA, pts time.Duration) error
	// Finalize closes the container and checks the writer's terminal
	// status; a non-success status is returned as an error, never swallowed.
	Finalize() error
	// Abort releases the writer and removes the partial artifact. Output is
	// all-or-nothing: a half-written container must not be left on disk
	// looking like a finished render. Safe in any state; a successfully
	// finalized artifact is never removed.
	Abort()
}

// VideoWriterSink writes H.264 video through OpenCV's VideoWriter.
type VideoWriterSink struct {
	path   string
	fourcc string
	fps    float64
	logger *zap.Logger

	state   State
	writer  *gocv.VideoWriter
	pool    *MatPool
	lastPTS time.Duration
	frames  int
	// failure is the first fatal error; Finalize after a failure reports it
	// instead of pretending the sink closed cleanly.
	failure error

	// pollInterval is the readiness backoff step; overridable in tests.
	pollInterval time.Duration
}

// NewVideoWriterSink creates an unopened sink targeting path.
func NewVideoWriterSink(path, fourcc string, fps float64, logger *zap.Logger) *VideoWriterSink {
	return &VideoWriterSink{
		path:         path,
		fourcc:       fourcc,
		fps:          fps,
		logger:       logger.Named("video-sink"),
		lastPTS:      -1,
		pollInterval: 10 * time.Millisecond,
	}
}

// fatal records the first fatal error and returns it wrapped.
func (s *VideoWriterSink) fatal(op string, err error) error {
	werr := &SinkError{Op: op, Fatal: true, Err: err}
	if s.failure == nil {
		s.failure = werr
	}
	return werr
}

// Begin implements Sink.
func (s *VideoWriterSink) Begin(width, height int) error {
	if s.state != StateUninitialized {
		return s.fatal("begin", fmt.Errorf("sink already started (state %d)", s.state))
	}
	if s.fps <= 0 || width <= 0 || height <= 0 {
		s.state = StateFinishedErr
		return s.fatal("begin", fmt.Errorf("unusable configuration fps=%v size=%dx%d", s.fps, width, height))
	}

	writer, err := gocv.VideoWriterFile(s.path, s.fourcc, s.fps, width, height, true)
	if err != nil {
		s.state = StateFinishedErr
		return s.fatal("begin", fmt.Errorf("open writer: %w", err))
	}
	if !writer.IsOpened() {
		_ = writer.Close()
		s.state = StateFinishedErr
		return s.fatal("begin", fmt.Errorf("writer cannot accept input configuration %q %vfps %dx%d", s.fourcc, s.fps, width, height))
	}

	s.writer = writer
	s.pool = NewMatPool(width, height, 4)
	s.state = StateWriting

	s.logger.Info("encoder sink opened",
		zap.String("path", s.path),
		zap.String("fourcc", s.fourcc),
		zap.Float64("fps", s.fps),
		zap.Int("width", width),
		zap.Int("height", height))
	return nil
}

// Append implements Sink. It blocks on the readiness backoff loop while the
// writer is saturated; this is the backpressure point coupling composite
// generation rate to encoder throughput.
func (s *VideoWriterSink) Append(ctx context.Context, img *image.RGBA, pts time.Duration) error {
	if s.state != StateWriting {
		return s.fatal("append", fmt.Errorf("sink not writing (state %d)", s.state))
	}
	if pts <= s.lastPTS {
		return s.fatal("append", fmt.Errorf("non-monotonic pts %v after %v", pts, s.lastPTS))
	}

	if err := s.waitReady(ctx); err != nil {
		return err
	}

	mat := s.pool.Get()
	defer s.pool.Put(mat)

	if err := fillMatBGR(img, &mat); err != nil {
		if s.failure == nil {
			s.failure = err
		}
		return err
	}
	if err := s.writer.Write(mat); err != nil {
		return s.fatal("append", fmt.Errorf("write frame at %v: %w", pts, err))
	}

	s.lastPTS = pts
	s.frames++
	return nil
}

// waitReady polls writer readiness with a constant short backoff. OpenCV's
// VideoWriter exposes no saturation signal, only IsOpened, so an open writer
// is never observed busy; the wait exists as the sink's single blocking
// point so a richer backend (or a queue-depth proxy) slots in here without
// touching Append, and so a torn-down writer is caught before Write. No
// timeout is modeled: a stalled encoder stalls the pipeline until the
// context is cancelled externally.
func (s *VideoWriterSink) waitReady(ctx context.Context) error {
	op := func() error {
		if s.writer == nil || !s.writer.IsOpened() {
			return ErrNotReady
		}
		return nil
	}
	bo := backoff.WithContext(backoff.NewConstantBackOff(s.pollInterval), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return s.fatal("append", err)
	}
	return nil
}

// Finalize implements Sink. Finalizing a sink that already failed reports
// the stored failure again rather than a clean close.
func (s *VideoWriterSink) Finalize() error {
	switch s.state {
	case StateFinishedOK:
		return nil
	case StateFinishedErr:
		return s.failure
	case StateUninitialized:
		s.state = StateFinishedErr
		return s.fatal("finalize", fmt.Errorf("sink was never started"))
	}

	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}

	err := s.writer.Close()
	s.writer = nil
	if err != nil {
		s.state = StateFinishedErr
		return s.fatal("finalize", fmt.Errorf("writer close: %w", err))
	}

	// Terminal status check: a writer that produced no playable output is a
	// failure even when Close itself returned nil.
	if s.frames == 0 {
		s.state = StateFinishedErr
		return s.fatal("finalize", fmt.Errorf("no frames were written to %s", s.path))
	}

	s.state = StateFinishedOK
	s.logger.Info("encoder sink finalized",
		zap.String("path", s.path), zap.Int("frames", s.frames))
	return nil
}

// Abort implements Sink. Any state is accepted; a successfully finalized
// artifact is left alone, everything else is torn down and the partial
// output file removed.
func (s *VideoWriterSink) Abort() {
	if s.state == StateFinishedOK {
		return
	}

	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	if s.writer != nil {
		_ = s.writer.Close()
		s.writer = nil
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove partial output",
				zap.String("path", s.path), zap.Error(err))
		}
		s.logger.Info("encoder sink aborted, partial output removed",
			zap.String("path", s.path), zap.Int("frames", s.frames))
	}
	s.state = StateFinishedErr
}

// State returns the current lifecycle state.
func (s *VideoWriterSink) State() State { return s.state }

// Frames returns the number of frames appended so far.
func (s *VideoWriterSink) Frames() int { return s.frames }
