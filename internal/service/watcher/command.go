package watcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	api "github.com/oshokin/patchline-watcher/internal/api/grpc/health"
	"github.com/oshokin/patchline-watcher/internal/config"
	domain "github.com/oshokin/patchline-watcher/internal/domain/patchline"
	"github.com/oshokin/patchline-watcher/internal/logger"
	"github.com/oshokin/patchline-watcher/internal/metrics"
	"github.com/oshokin/patchline-watcher/internal/repository/snapshot"
	"github.com/oshokin/patchline-watcher/internal/retriever"
	"github.com/oshokin/patchline-watcher/internal/signature"
	"github.com/oshokin/patchline-watcher/internal/source"
)

// Options controls the watcher process.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// LogLevel overrides the configured log level when set.
	LogLevel string
	// Once runs a single cycle and returns.
	Once bool
}

var (
	// errCycleIncomplete is returned by a single-cycle run that skipped its regions.
	errCycleIncomplete = errors.New("cycle did not complete")
	// errUnknownLogLevel is returned for an unparsable log level.
	errUnknownLogLevel = errors.New("unknown log level")
)

// endpoint is an optional listener started next to the watcher.
type endpoint struct {
	name    string
	address string
	serve   func(ctx context.Context, lis net.Listener) error
}

// Run loads the configuration, wires the components and polls until ctx is
// canceled. Cycle failures are logged, never returned; only setup problems are.
//
//nolint:funlen // Linear wiring is easier to follow in one place.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "patchline-watcher")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if err = applyLogLevel(cfg, opts.LogLevel); err != nil {
		return err
	}

	extractor, err := signature.NewExtractor(cfg.Marker, cfg.WindowSize)
	if err != nil {
		return fmt.Errorf("create extractor: %w", err)
	}

	launcher, err := retriever.NewLauncher(cfg)
	if err != nil {
		return fmt.Errorf("select retrieval launcher: %w", err)
	}

	var (
		observers []Observer
		endpoints []endpoint
	)

	if cfg.MetricsAddress != "" {
		m := metrics.New()
		observers = append(observers, m)
		endpoints = append(endpoints, endpoint{name: "metrics", address: cfg.MetricsAddress, serve: m.ServeListener})
	}

	if cfg.HealthAddress != "" {
		h := api.NewServer()
		observers = append(observers, h)
		endpoints = append(endpoints, endpoint{name: "health", address: cfg.HealthAddress, serve: h.ServeListener})
	}

	var wg sync.WaitGroup

	serveCtx, stopServing := context.WithCancel(ctx)

	// Endpoints outlive the cycles and stop once Run is done with them.
	defer func() {
		stopServing()
		wg.Wait()
	}()

	for _, e := range endpoints {
		lc := net.ListenConfig{}

		lis, err := lc.Listen(ctx, "tcp", e.address)
		if err != nil {
			return fmt.Errorf("listen %s on %s: %w", e.name, e.address, err)
		}

		wg.Go(func() {
			if err := e.serve(serveCtx, lis); err != nil {
				logger.ErrorKV(ctx, "Endpoint stopped", "endpoint", e.name, "error", err)
			}
		})
	}

	processor := NewProcessor(
		cfg.WorkDir,
		retriever.New(cfg, launcher),
		extractor,
		snapshot.NewFileRepository(cfg.VersioningDir),
	)

	w := New(cfg, source.NewClient(cfg), processor,
		WithObservers(observers...),
		WithReaper(func(ctx context.Context) error {
			_, err := retriever.ReapStale(ctx, launcher)
			return err
		}),
	)

	logger.InfoKV(ctx, "Watcher configured",
		"source_url", cfg.SourceURL,
		"versioning_dir", cfg.VersioningDir,
		"work_dir", cfg.WorkDir,
		"tool", launcher.Executable())

	if opts.Once {
		if result := w.RunCycle(ctx); result != domain.CycleCompleted {
			return fmt.Errorf("%w: %s", errCycleIncomplete, result)
		}

		return nil
	}

	return w.Run(ctx)
}

// applyLogLevel sets the global log level from the override or the config.
func applyLogLevel(cfg *config.Config, override string) error {
	name := cfg.LogLevel
	if override != "" {
		name = override
	}

	level, ok := logger.ParseLogLevel(name)
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownLogLevel, name)
	}

	logger.SetLevel(level)

	return nil
}
