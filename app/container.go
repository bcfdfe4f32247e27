package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/soocke/score-split-go/config"
	"github.com/soocke/score-split-go/domain/capture"
	"github.com/soocke/score-split-go/domain/recognize"
	"github.com/soocke/score-split-go/domain/split"
	"github.com/soocke/score-split-go/metrics"
	"github.com/soocke/score-split-go/store"
)

// Container assembles the recognizer, split manager, results store, frame
// source and metrics for one run.
type Container struct {
	Config   *config.Config
	Logger   *slog.Logger
	Manager  *split.Manager
	Store    *store.Store
	Source   capture.Source
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
}

// RecognizerFactory builds the OCR backend.
type RecognizerFactory func(cfg *config.Config, logger *slog.Logger) (recognize.Recognizer, error)

// NewManager builds a split manager from cfg and loads cfg.SplitsPath when
// the file exists.
func NewManager(cfg *config.Config, rec recognize.Recognizer, logger *slog.Logger) (*split.Manager, error) {
	m, err := split.NewManager(rec, split.Options{
		Threshold: cfg.Threshold,
		Method:    cfg.MatchMethod(),
		Stride:    cfg.Stride,
		Refine:    cfg.Refine,
		CacheSize: cfg.TriggerCacheSize,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	if cfg.SplitsPath == "" {
		return m, nil
	}
	if err := m.Open(cfg.SplitsPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, fmt.Errorf("load splits: %w", err)
	}
	return m, nil
}

// BuildContainer constructs all components. The inputs are used by the
// "files" source; other sources read cfg.Input.
func BuildContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, newRecognizer RecognizerFactory, inputs []string) (*Container, error) {
	if newRecognizer == nil {
		return nil, errors.New("build container: no recognizer factory")
	}
	c := &Container{Config: cfg, Logger: logger}

	rec, err := newRecognizer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("recognizer: %w", err)
	}
	if c.Manager, err = NewManager(cfg, rec, logger); err != nil {
		if closer, ok := rec.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
		return nil, err
	}
	if c.Manager.Len() == 0 {
		_ = c.Close()
		return nil, fmt.Errorf("no splits loaded from %s", cfg.SplitsPath)
	}

	if cfg.ResultsDB != "" {
		if c.Store, err = store.Open(cfg.ResultsDB); err != nil {
			_ = c.Close()
			return nil, err
		}
	}

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = metrics.New(c.Registry)

	if c.Source, err = OpenSource(ctx, cfg, logger, inputs); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// OpenSource builds the frame source named by cfg.Source.
func OpenSource(ctx context.Context, cfg *config.Config, logger *slog.Logger, inputs []string) (capture.Source, error) {
	switch cfg.Source {
	case "screen":
		return capture.NewScreenSource(capture.ScreenOptions{
			Interval:  time.Duration(cfg.CaptureIntervalMs) * time.Millisecond,
			Selection: cfg.Selection(),
			Logger:    logger,
		}), nil
	case "video":
		return capture.OpenVideo(ctx, capture.VideoOptions{
			Path:   cfg.Input,
			FPS:    cfg.FPS,
			Start:  time.Duration(cfg.StartSeconds * float64(time.Second)),
			Logger: logger,
		})
	case "dir":
		if cfg.Input == "" {
			return nil, errors.New("dir source: no directory configured")
		}
		return capture.WatchDir(capture.DirOptions{Dir: cfg.Input, Logger: logger})
	case "files":
		paths, err := expandInputs(append(append([]string(nil), inputs...), nonEmpty(cfg.Input)...))
		if err != nil {
			return nil, err
		}
		if len(paths) == 0 {
			return nil, errors.New("files source: no input files")
		}
		return capture.NewFileSource(paths), nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

// expandInputs replaces directories by the image files they contain, in
// name order.
func expandInputs(inputs []string) ([]string, error) {
	var out []string
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, in)
			continue
		}
		entries, err := os.ReadDir(in)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && capture.IsImageFile(e.Name()) {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			out = append(out, filepath.Join(in, n))
		}
	}
	return out, nil
}

// Execute runs the container's source through the manager, recording the
// run in the store when one is configured.
func (c *Container) Execute(ctx context.Context) (Summary, error) {
	var runID string
	if c.Store != nil {
		run, err := c.Store.CreateRun(ctx, c.Config.SplitsPath, c.Config.Source, c.Manager.Len())
		if err != nil {
			return Summary{}, err
		}
		runID = run.ID
	}
	opts := RunnerOptions{
		Source:           c.Source,
		SourceName:       c.Config.Source,
		Manager:          c.Manager,
		RunID:            runID,
		Logger:           c.Logger,
		FailureWarnAfter: c.Config.FailureWarnAfter,
	}
	if c.Store != nil {
		opts.Results = c.Store
	}
	if c.Metrics != nil {
		opts.Recorder = c.Metrics
	}
	sum, runErr := NewRunner(opts).Run(ctx)

	if c.Store != nil {
		status := store.StatusCompleted
		switch {
		case errors.Is(runErr, context.Canceled):
			status = store.StatusStopped
		case runErr != nil:
			status = store.StatusFailed
		case !sum.Exhausted:
			status = store.StatusStopped
		}
		// The run context may already be cancelled.
		if err := c.Store.FinishRun(context.WithoutCancel(ctx), runID, status, sum.Frames); err != nil && runErr == nil {
			runErr = err
		}
	}
	return sum, runErr
}

// Close releases every component that was constructed.
func (c *Container) Close() error {
	var errs []error
	if c.Source != nil {
		errs = append(errs, c.Source.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	if c.Manager != nil {
		errs = append(errs, c.Manager.Close())
	}
	return errors.Join(errs...)
}
