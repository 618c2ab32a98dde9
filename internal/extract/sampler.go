// Package extract implements the frame-extraction phase: a sequential
// sampler that walks the source video at a fixed stride and an asynchronous
// writer that persists sampled frames to the project storage root.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/jasonagola/tennisvision/internal/framebuf"
	"github.com/jasonagola/tennisvision/internal/task"
	"github.com/jasonagola/tennisvision/internal/video"
)

// Sample identifies one accepted frame handed from the sampler to the
// persistence writer. The raster itself lives in the frame buffer until the
// writer drains it.
type Sample struct {
	OrdinalIndex int
	Timestamp    time.Duration
}

// ErrNoFrames is returned when the computed total sample count is zero.
var ErrNoFrames = fmt.Errorf("extract: no frames to process")

// SamplerMetrics counts what happened during one sampling run.
type SamplerMetrics struct {
	Attempted    int
	Accepted     int
	Duplicates   int
	SeekFailures int
}

// Sampler walks the source at a fixed stride, extracts frames with
// frame-accurate seeking, discards adjacent duplicates, and hands accepted
// frames to the buffer.
type Sampler struct {
	src     video.Source
	buf     *framebuf.Buffer
	skip    int
	tracker *task.Tracker
	logger  *zap.Logger

	metrics SamplerMetrics

	// Adjacent-only dedup state: the losslessly re-encoded bytes of the most
	// recently accepted frame. Sampler-owned, so detection does not depend on
	// how quickly the writer drains the buffer. Duplicates separated by a
	// non-duplicate frame are missed; that is a known limitation, not a
	// correctness guarantee.
	lastEncoded []byte
}

// NewSampler creates a sampler. Skip is the stride (>= 1).
func NewSampler(src video.Source, buf *framebuf.Buffer, skip int, tracker *task.Tracker, logger *zap.Logger) (*Sampler, error) {
	if skip < 1 {
		return nil, fmt.Errorf("extract: skip must be >= 1, got %d", skip)
	}
	return &Sampler{
		src:     src,
		buf:     buf,
		skip:    skip,
		tracker: tracker,
		logger:  logger.Named("sampler"),
	}, nil
}

// TotalFrames computes floor(frameRate × durationSeconds) for the source.
func TotalFrames(src video.Source) int {
	return int(math.Floor(src.FrameRate() * src.Duration().Seconds()))
}

// SampleIndices returns the ordinal indices the sampler will visit for a
// given total and stride: 0, skip, 2·skip, … < total.
func SampleIndices(total, skip int) []int {
	if total <= 0 || skip < 1 {
		return nil
	}
	out := make([]int, 0, (total+skip-1)/skip)
	for i := 0; i < total; i += skip {
		out = append(out, i)
	}
	return out
}

// Run executes the sampling loop, sending accepted samples on out. It
// returns ErrNoFrames when the source yields zero samples and ctx.Err() on
// cancellation. Per-frame seek failures are logged and skipped; the loop
// keeps going.
func (s *Sampler) Run(ctx context.Context, out chan<- Sample) error {
	total := TotalFrames(s.src)
	if total == 0 {
		return ErrNoFrames
	}

	fps := s.src.FrameRate()
	indices := SampleIndices(total, s.skip)

	s.logger.Info("starting frame sampling",
		zap.Int("total_frames", total),
		zap.Int("samples", len(indices)),
		zap.Int("skip", s.skip),
		zap.Float64("fps", fps))

	for n, idx := range indices {
		// Cancellation is cooperative, checked once per iteration.
		if err := ctx.Err(); err != nil {
			return err
		}

		// Backpressure: block while the buffer is at capacity. Extraction
		// rate is coupled to disk-write throughput here.
		if err := s.buf.WaitNotFull(ctx); err != nil {
			return err
		}

		s.metrics.Attempted++
		ts := time.Duration(float64(idx) / fps * float64(time.Second))

		img, err := s.src.FrameAt(ctx, ts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.metrics.SeekFailures++
			s.logger.Warn("frame extraction failed, skipping",
				zap.Int("index", idx), zap.Duration("timestamp", ts), zap.Error(err))
			s.report(n+1, len(indices))
			continue
		}

		encoded, err := encodeLossless(img)
		if err != nil {
			s.metrics.SeekFailures++
			s.logger.Warn("frame re-encode failed, skipping",
				zap.Int("index", idx), zap.Error(err))
			s.report(n+1, len(indices))
			continue
		}

		if s.isDuplicate(encoded) {
			s.metrics.Duplicates++
			s.logger.Debug("duplicate frame discarded", zap.Int("index", idx))
			s.report(n+1, len(indices))
			continue
		}

		if err := s.buf.Set(idx, img); err != nil {
			return fmt.Errorf("extract: buffer frame %d: %w", idx, err)
		}
		s.lastEncoded = encoded
		s.metrics.Accepted++

		select {
		case out <- Sample{OrdinalIndex: idx, Timestamp: ts}:
		case <-ctx.Done():
			return ctx.Err()
		}

		s.report(n+1, len(indices))
	}

	return nil
}

// Metrics returns counters for the finished run.
func (s *Sampler) Metrics() SamplerMetrics { return s.metrics }

func (s *Sampler) report(done, total int) {
	s.tracker.Progress(float64(done)/float64(total),
		fmt.Sprintf("Processing frame %d of %d", done, total))
}

// isDuplicate compares the re-encoded bytes against the most recently
// accepted frame.
func (s *Sampler) isDuplicate(encoded []byte) bool {
	return s.lastEncoded != nil && bytes.Equal(encoded, s.lastEncoded)
}

// encodeLossless produces a deterministic byte representation of the raster
// for equality comparison. PNG is used because lossy round-trips are not
// byte-stable.
func encodeLossless(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("extract: png encode: %w", err)
	}
	return buf.Bytes(), nil
}
