package watcher

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/patchline-watcher/internal/config"
	domain "github.com/oshokin/patchline-watcher/internal/domain/patchline"
	"github.com/oshokin/patchline-watcher/internal/logger"
)

// Source returns the current list of regions.
type Source interface {
	Fetch(ctx context.Context) ([]domain.RegionConfig, error)
}

// RegionProcessor handles one region and never fails past its boundary.
type RegionProcessor interface {
	Process(ctx context.Context, region domain.RegionConfig) domain.Outcome
}

// Observer is notified about cycle and region results.
type Observer interface {
	CycleCompleted(result domain.CycleResult)
	RegionProcessed(region string, outcome domain.Outcome, elapsed time.Duration)
}

// Reaper cleans up after a previous run before a cycle starts.
type Reaper func(ctx context.Context) error

// Watcher owns the poll cycle.
type Watcher struct {
	source    Source
	processor RegionProcessor
	observers []Observer
	reaper    Reaper
	// workDir is removed after every cycle.
	workDir string
	// versioningDir holds the snapshots.
	versioningDir string
	// interval is the sleep between cycles.
	interval time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithObservers adds observers of cycle results.
func WithObservers(observers ...Observer) Option {
	return func(w *Watcher) {
		for _, o := range observers {
			if o != nil {
				w.observers = append(w.observers, o)
			}
		}
	}
}

// WithReaper sets the cleanup run before every cycle.
func WithReaper(reaper Reaper) Option {
	return func(w *Watcher) {
		w.reaper = reaper
	}
}

// New creates a Watcher.
func New(cfg *config.Config, source Source, processor RegionProcessor, opts ...Option) *Watcher {
	w := &Watcher{
		source:        source,
		processor:     processor,
		workDir:       cfg.WorkDir,
		versioningDir: cfg.VersioningDir,
		interval:      cfg.CycleInterval,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Run repeats cycles separated by the configured interval until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	logger.InfoKV(ctx, "Watching patchlines", "interval", w.interval.String())

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")
			return nil
		case <-timer.C:
			w.RunCycle(ctx)

			timer.Reset(w.interval)
			logger.InfoKV(ctx, "Next cycle scheduled", "at", time.Now().Add(w.interval).Format(time.DateTime))
		}
	}
}

// RunCycle performs one pass over all regions. Regions are processed one
// after another in the order returned by the source.
func (w *Watcher) RunCycle(ctx context.Context) domain.CycleResult {
	ctx = logger.WithKV(ctx, "cycle_id", uuid.NewString())

	result := w.runCycle(ctx)

	if err := os.RemoveAll(w.workDir); err != nil {
		logger.WarnKV(ctx, "Unable to remove working directory", "path", w.workDir, "error", err)
	}

	for _, o := range w.observers {
		o.CycleCompleted(result)
	}

	logger.Infof(ctx, "Last checked on: %s", time.Now().Format(time.DateTime))

	return result
}

// runCycle does the work of RunCycle short of the cleanup.
func (w *Watcher) runCycle(ctx context.Context) domain.CycleResult {
	if err := w.prepare(); err != nil {
		logger.ErrorKV(ctx, "Cycle skipped, directories unavailable", "error", err)
		return domain.CycleSetupFailed
	}

	if w.reaper != nil {
		if err := w.reaper(ctx); err != nil {
			logger.WarnKV(ctx, "Leftover cleanup failed", "error", err)
		}
	}

	regions, err := w.source.Fetch(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Cycle skipped, region list unavailable", "error", err)
		return domain.CycleConfigFailed
	}

	logger.InfoKV(ctx, "Processing regions", "count", len(regions))

	var succeeded int

	for _, region := range regions {
		if ctx.Err() != nil {
			logger.Info(ctx, "Cycle interrupted")
			break
		}

		started := time.Now()
		outcome := w.processor.Process(ctx, region)
		elapsed := time.Since(started)

		if outcome.Succeeded() {
			succeeded++
		}

		for _, o := range w.observers {
			o.RegionProcessed(region.Key(), outcome, elapsed)
		}
	}

	logger.InfoKV(ctx, "Cycle finished", "regions", len(regions), "succeeded", succeeded)

	return domain.CycleCompleted
}

// prepare creates the working and versioning directories.
func (w *Watcher) prepare() error {
	for _, dir := range []string{w.workDir, w.versioningDir} {
		if err := os.MkdirAll(dir, config.DefaultDirPermissions); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	return nil
}
