package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // frame images on disk are JPEG
	"os"

	"go.uber.org/zap"

	"github.com/jasonagola/tennisvision/internal/composite"
	"github.com/jasonagola/tennisvision/internal/config"
	"github.com/jasonagola/tennisvision/internal/encoder"
	"github.com/jasonagola/tennisvision/internal/project"
	"github.com/jasonagola/tennisvision/internal/store"
	"github.com/jasonagola/tennisvision/internal/task"
)

// Composite is the composite-render pipeline. It is strictly read-only over
// persisted frame metadata and image bytes; its only output is the encoded
// video artifact.
type Composite struct {
	proj    project.Context
	frames  store.FrameStore
	cfg     config.CompositeConfig
	tracker *task.Tracker
	logger  *zap.Logger

	// newSink is swappable for tests; defaults to the OpenCV video writer.
	newSink func(path string) encoder.Sink
}

// NewComposite assembles the composite pipeline.
func NewComposite(proj project.Context, frames store.FrameStore, cfg config.CompositeConfig, reporter task.Reporter, logger *zap.Logger) *Composite {
	log := logger.Named("composite")
	c := &Composite{
		proj:    proj,
		frames:  frames,
		cfg:     cfg,
		tracker: task.NewTracker(reporter),
		logger:  log,
	}
	c.newSink = func(path string) encoder.Sink {
		return encoder.NewVideoWriterSink(path, cfg.FourCC, proj.FrameRate, log)
	}
	return c
}

// Task returns the pipeline's task tracker.
func (c *Composite) Task() *task.Tracker { return c.tracker }

// Run renders the composite video to the project's output artifact,
// overwriting any previous render. Any per-frame failure aborts the run.
func (c *Composite) Run(ctx context.Context) (composite.RenderMetrics, error) {
	var m composite.RenderMetrics

	c.tracker.Start("Preparing composite render")

	frames, err := c.frames.Frames(ctx, c.proj.ID)
	if err != nil {
		err = fmt.Errorf("pipeline: load frame metadata: %w", err)
		c.tracker.Fail(err.Error())
		return m, err
	}
	if len(frames) == 0 {
		err = fmt.Errorf("pipeline: no frames to process")
		c.tracker.Fail(err.Error())
		return m, err
	}

	outPath := c.proj.Abs(c.proj.CompositePath())
	if err := os.Remove(outPath); err != nil && !os.IsNotExist(err) {
		err = fmt.Errorf("pipeline: remove previous render: %w", err)
		c.tracker.Fail(err.Error())
		return m, err
	}

	loader, centers := c.buildLoader(frames)
	sink := c.newSink(outPath)

	m, err = composite.Render(ctx, loader, centers, composite.RenderConfig{
		RingCount:  c.cfg.RingCount,
		Gamma:      c.cfg.Gamma,
		TargetPeak: c.cfg.TargetPeak,
		FPS:        c.proj.FrameRate,
	}, sink, c.tracker, c.logger)

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		c.tracker.Cancel()
		return m, err
	case err != nil:
		c.tracker.Fail(err.Error())
		return m, err
	}

	c.tracker.Complete(fmt.Sprintf("Rendered %d composite frames", m.FramesAppended))
	return m, nil
}

// buildLoader maps ordinal indices to lazily-decoded images on disk. Gaps
// left by deduplication resolve to absent frames, exactly like sequence
// boundaries.
func (c *Composite) buildLoader(frames []store.PersistedFrame) (composite.LoadFrame, []int) {
	paths := make(map[int]string, len(frames))
	centers := make([]int, 0, len(frames))
	for _, f := range frames {
		paths[f.OrdinalIndex] = c.proj.Abs(f.ImagePath)
		centers = append(centers, f.OrdinalIndex)
	}

	load := func(ctx context.Context, index int) (image.Image, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path, ok := paths[index]
		if !ok {
			return nil, nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("pipeline: open frame image: %w", err)
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("pipeline: decode frame image %s: %w", path, err)
		}
		return img, nil
	}
	return load, centers
}
