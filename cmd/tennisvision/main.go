// Command tennisvision runs the frame-extraction and composite-render
// pipelines against a source video and a project directory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jasonagola/tennisvision/internal/config"
	"github.com/jasonagola/tennisvision/internal/export"
	"github.com/jasonagola/tennisvision/internal/logging"
	"github.com/jasonagola/tennisvision/internal/pipeline"
	"github.com/jasonagola/tennisvision/internal/project"
	"github.com/jasonagola/tennisvision/internal/store"
	"github.com/jasonagola/tennisvision/internal/task"
	"github.com/jasonagola/tennisvision/internal/video"
)

var (
	flagConfig     string
	flagProjectDir string
	flagSkip       int
	flagProjectID  string
	flagFPS        float64
)

func main() {
	root := &cobra.Command{
		Use:           "tennisvision",
		Short:         "Extract annotated frames from tennis video and render temporal composites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to TOML config file")
	root.PersistentFlags().StringVar(&flagProjectDir, "project-dir", ".", "project storage root")

	extractCmd := &cobra.Command{
		Use:   "extract <video>",
		Short: "Sample frames from a source video into the project directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runExtract,
	}
	extractCmd.Flags().IntVar(&flagSkip, "skip", 0, "sampling stride override (>= 1)")

	compositeCmd := &cobra.Command{
		Use:   "composite",
		Short: "Render the temporal composite video from extracted frames",
		RunE:  runComposite,
	}
	compositeCmd.Flags().StringVar(&flagProjectID, "project-id", "", "project id of a previous extraction (requires the Postgres store)")
	compositeCmd.Flags().Float64Var(&flagFPS, "fps", 30, "output frame rate")

	runCmd := &cobra.Command{
		Use:   "run <video>",
		Short: "Extract frames, then render the composite, in one process",
		Args:  cobra.ExactArgs(1),
		RunE:  runBoth,
	}
	runCmd.Flags().IntVar(&flagSkip, "skip", 0, "sampling stride override (>= 1)")

	root.AddCommand(extractCmd, compositeCmd, runCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads config, builds the logger and frame store, and installs
// signal-driven cancellation.
func setup() (context.Context, context.CancelFunc, *config.Config, *zap.Logger, store.FrameStore, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}

	var frames store.FrameStore
	if cfg.Store.PostgresDSN != "" {
		sqlStore, err := store.NewSQLStore(cfg.Store.PostgresDSN, log)
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		frames = sqlStore
	} else {
		frames = store.NewMemStore()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx, cancel, cfg, log, frames, nil
}

// logUpdates mirrors task updates into the log at debug level. The observer
// goroutine lives for the remainder of the process.
func logUpdates(log *zap.Logger, rep *task.ChanReporter) {
	go func() {
		for u := range rep.Updates() {
			log.Debug("task update",
				zap.String("task", u.TaskID.String()),
				zap.String("state", string(u.State)),
				zap.Float64("progress", u.Progress),
				zap.String("status", u.Status))
		}
	}()
}

func runExtract(_ *cobra.Command, args []string) error {
	ctx, cancel, cfg, log, frames, err := setup()
	if err != nil {
		return err
	}
	defer cancel()
	defer log.Sync()

	_, _, err = extractPhase(ctx, cfg, log, frames, args[0])
	return err
}

func extractPhase(ctx context.Context, cfg *config.Config, log *zap.Logger, frames store.FrameStore, videoPath string) (project.Context, float64, error) {
	src, err := video.OpenFile(videoPath)
	if err != nil {
		return project.Context{}, 0, err
	}
	defer src.Close()

	proj, err := project.New(flagProjectDir, src.FrameRate())
	if err != nil {
		return project.Context{}, 0, err
	}

	extCfg := cfg.Extraction
	if flagSkip > 0 {
		extCfg.FrameSkip = flagSkip
	}

	rep := task.NewChanReporter(256)
	logUpdates(log, rep)
	ext := pipeline.NewExtraction(proj, src, frames, extCfg, rep, log)

	log.Info("starting extraction",
		zap.String("video", videoPath),
		zap.String("project", proj.ID.String()),
		zap.String("root", proj.Root))

	if _, err := ext.Run(ctx); err != nil {
		return proj, 0, err
	}
	return proj, src.FrameRate(), nil
}

func runComposite(_ *cobra.Command, _ []string) error {
	ctx, cancel, cfg, log, frames, err := setup()
	if err != nil {
		return err
	}
	defer cancel()
	defer log.Sync()

	if flagProjectID == "" {
		return fmt.Errorf("composite requires --project-id from a previous extraction")
	}
	if cfg.Store.PostgresDSN == "" {
		return fmt.Errorf("standalone composite requires the Postgres store (set store.postgres_dsn)")
	}
	pid, err := uuid.Parse(flagProjectID)
	if err != nil {
		return fmt.Errorf("invalid project id %q: %w", flagProjectID, err)
	}

	proj, err := project.New(flagProjectDir, flagFPS)
	if err != nil {
		return err
	}
	proj.ID = pid

	return compositePhase(ctx, cfg, log, frames, proj)
}

func compositePhase(ctx context.Context, cfg *config.Config, log *zap.Logger, frames store.FrameStore, proj project.Context) error {
	rep := task.NewChanReporter(256)
	logUpdates(log, rep)
	comp := pipeline.NewComposite(proj, frames, cfg.Composite, rep, log)

	if _, err := comp.Run(ctx); err != nil {
		return err
	}

	if cfg.Export.Enabled {
		up, err := export.New(ctx, cfg.Export, log)
		if err != nil {
			return err
		}
		if err := up.Composite(ctx, proj, frames); err != nil {
			return err
		}
	}
	return nil
}

func runBoth(_ *cobra.Command, args []string) error {
	ctx, cancel, cfg, log, frames, err := setup()
	if err != nil {
		return err
	}
	defer cancel()
	defer log.Sync()

	proj, _, err := extractPhase(ctx, cfg, log, frames, args[0])
	if err != nil {
		return err
	}
	return compositePhase(ctx, cfg, log, frames, proj)
}
