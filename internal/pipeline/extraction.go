// Package pipeline wires the components into the two top-level background
// units of work: frame extraction and composite rendering. The two phases
// are independent; compositing requires extraction to have completed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jasonagola/tennisvision/internal/config"
	"github.com/jasonagola/tennisvision/internal/extract"
	"github.com/jasonagola/tennisvision/internal/framebuf"
	"github.com/jasonagola/tennisvision/internal/project"
	"github.com/jasonagola/tennisvision/internal/store"
	"github.com/jasonagola/tennisvision/internal/task"
	"github.com/jasonagola/tennisvision/internal/video"
)

// ExtractionResult summarizes one extraction run.
type ExtractionResult struct {
	Sampler extract.SamplerMetrics
	Writer  extract.WriterMetrics
}

// Extraction is the frame-extraction pipeline: a single producer (the
// sampler) and a single consumer (the persistence writer) connected by the
// bounded frame buffer.
type Extraction struct {
	proj    project.Context
	src     video.Source
	frames  store.FrameStore
	cfg     config.ExtractionConfig
	tracker *task.Tracker
	logger  *zap.Logger
}

// NewExtraction assembles the extraction pipeline.
func NewExtraction(proj project.Context, src video.Source, frames store.FrameStore, cfg config.ExtractionConfig, reporter task.Reporter, logger *zap.Logger) *Extraction {
	return &Extraction{
		proj:    proj,
		src:     src,
		frames:  frames,
		cfg:     cfg,
		tracker: task.NewTracker(reporter),
		logger:  logger.Named("extraction"),
	}
}

// Task returns the pipeline's task tracker.
func (e *Extraction) Task() *task.Tracker { return e.tracker }

// Run executes the pipeline to completion. Per-frame failures are skipped
// (extraction favors completeness of effort); configuration problems and
// cancellation terminate the run with a failed task state.
func (e *Extraction) Run(ctx context.Context) (ExtractionResult, error) {
	var result ExtractionResult

	e.tracker.Start("Preparing frame extraction")

	buf := framebuf.New(e.cfg.BufferCapacity)
	sampler, err := extract.NewSampler(e.src, buf, e.cfg.FrameSkip, e.tracker, e.logger)
	if err != nil {
		e.tracker.Fail(err.Error())
		return result, err
	}
	writer := extract.NewWriter(e.proj, buf, e.frames, e.cfg.ThumbnailMaxDim, e.cfg.JPEGQuality, e.logger)

	samples := make(chan extract.Sample, e.cfg.BufferCapacity)

	// The writer drains on a detached context: samples already handed off
	// are persisted even while the sampler is being cancelled, so the store
	// reflects exactly the frames that completed.
	writeCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	var writeErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		writeErr = writer.Run(writeCtx, samples)
	}()

	runErr := sampler.Run(ctx, samples)
	close(samples)
	wg.Wait()

	result.Sampler = sampler.Metrics()
	result.Writer = writer.Metrics()

	switch {
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		e.tracker.Cancel()
		e.logResult(result)
		return result, runErr
	case runErr != nil:
		e.tracker.Fail(runErr.Error())
		return result, runErr
	case writeErr != nil:
		e.tracker.Fail(writeErr.Error())
		return result, writeErr
	}

	// Completeness is advisory: dropped frames were already logged, but a
	// mismatch against the expected sample count is worth surfacing once.
	if n, err := e.frames.Count(ctx, e.proj.ID); err == nil && n != result.Sampler.Accepted {
		e.logger.Warn("persisted frame count does not match accepted samples",
			zap.Int("persisted", n),
			zap.Int("accepted", result.Sampler.Accepted))
	}

	e.logResult(result)
	e.tracker.Complete(fmt.Sprintf("Extracted %d frames", result.Writer.Persisted))
	return result, nil
}

func (e *Extraction) logResult(r ExtractionResult) {
	e.logger.Info("extraction finished",
		zap.Int("attempted", r.Sampler.Attempted),
		zap.Int("accepted", r.Sampler.Accepted),
		zap.Int("duplicates", r.Sampler.Duplicates),
		zap.Int("seek_failures", r.Sampler.SeekFailures),
		zap.Int("persisted", r.Writer.Persisted),
		zap.Int("write_failures", r.Writer.WriteFailures),
		zap.Int("thumbnail_failures", r.Writer.ThumbnailFailures))
}
