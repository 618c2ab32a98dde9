package composite

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jasonagola/tennisvision/internal/encoder"
	"github.com/jasonagola/tennisvision/internal/task"
)

// RenderConfig parameterizes one composite render run.
type RenderConfig struct {
	RingCount  int
	Gamma      float64
	TargetPeak float64
	// FPS spaces output presentation times at 1/FPS.
	FPS float64
}

// RenderMetrics counts render outcomes.
type RenderMetrics struct {
	FramesAppended int
	PeakClamps     int
}

// Render produces one composite frame per center index and streams them
// into the sink in order. Unlike extraction, any per-frame failure aborts
// the whole render: partial video output with frame gaps is worse than no
// output.
func Render(ctx context.Context, load LoadFrame, centers []int, cfg RenderConfig, sink encoder.Sink, tracker *task.Tracker, logger *zap.Logger) (m RenderMetrics, err error) {
	log := logger.Named("composite-render")

	began := false
	// Abort on any failure once the sink is open: the writer handle must be
	// released and the partial artifact must not survive.
	defer func() {
		if err != nil && began {
			sink.Abort()
		}
	}()

	if len(centers) == 0 {
		return m, fmt.Errorf("composite: no frames to render")
	}
	if cfg.FPS <= 0 {
		return m, fmt.Errorf("composite: invalid fps %v", cfg.FPS)
	}

	log.Info("starting composite render",
		zap.Int("frames", len(centers)),
		zap.Int("ring_count", cfg.RingCount),
		zap.Float64("gamma", cfg.Gamma),
		zap.Float64("target_peak", cfg.TargetPeak))

	frameInterval := time.Duration(float64(time.Second) / cfg.FPS)

	for n, center := range centers {
		// Cooperative cancellation once per output frame.
		if err := ctx.Err(); err != nil {
			return m, err
		}

		plane, err := Compose(ctx, load, WindowSpec{
			CenterIndex: center,
			RingCount:   cfg.RingCount,
			Gamma:       cfg.Gamma,
			TargetPeak:  cfg.TargetPeak,
		})
		if err != nil {
			// Cancellation surfaced mid-compose is not a frame failure.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return m, ctxErr
			}
			return m, fmt.Errorf("composite: frame %d (center %d): %w", n, center, err)
		}

		// Safety net behind the static light budget.
		if ToneMap(plane, cfg.TargetPeak) {
			m.PeakClamps++
			log.Debug("tone map clamped peak", zap.Int("center", center))
		}

		if !began {
			if err := sink.Begin(plane.W, plane.H); err != nil {
				return m, err
			}
			began = true
		}

		pts := time.Duration(n) * frameInterval
		if err := sink.Append(ctx, plane.ToRGBA(), pts); err != nil {
			return m, err
		}
		m.FramesAppended++

		tracker.Progress(float64(n+1)/float64(len(centers)),
			fmt.Sprintf("Rendering frame %d of %d", n+1, len(centers)))
	}

	if err := sink.Finalize(); err != nil {
		return m, err
	}

	log.Info("composite render finished",
		zap.Int("frames_appended", m.FramesAppended),
		zap.Int("peak_clamps", m.PeakClamps))
	return m, nil
}
