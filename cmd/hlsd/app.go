package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/bnema/hlsd/config"
	"github.com/bnema/hlsd/internal/adapter/converter/ffmpeg"
	"github.com/bnema/hlsd/internal/adapter/storage/jsonfile"
	"github.com/bnema/hlsd/internal/adapter/storage/postgres"
	"github.com/bnema/hlsd/internal/adapter/storage/sqlite"
	"github.com/bnema/hlsd/internal/hls"
	"github.com/bnema/hlsd/internal/infrastructure/instancelock"
	"github.com/bnema/hlsd/internal/infrastructure/logger"
	"github.com/bnema/hlsd/internal/infrastructure/metrics"
	"github.com/bnema/hlsd/internal/port"
	"github.com/bnema/hlsd/internal/service"
)

type appOptions struct {
	// exclusive takes the storage root lock; anything that may start
	// encodes or rewrite HLS fields needs it.
	exclusive bool
}

// app holds the wired pipeline for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    port.MediaStore
	prober   port.DurationProber
	registry *prometheus.Registry
	hls      *service.HLSService
	lock     *instancelock.Lock
}

func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	log, err := logger.New(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: log}

	if opts.exclusive {
		lock, err := instancelock.Acquire(cfg.StorageRoot)
		if err != nil {
			return nil, err
		}
		a.lock = lock
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		_ = a.lock.Release()
		return nil, err
	}
	a.store = store

	a.registry = prometheus.NewRegistry()
	metrics.Register(a.registry)
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	inspector := hls.NewInspector(hls.NewLayout(cfg.HLSDir))
	encoder := ffmpeg.NewEncoder(ffmpeg.Options{
		Binary:         cfg.Encoder.FFmpeg,
		SegmentSeconds: cfg.HLS.SegmentSeconds,
	})
	prober := ffmpeg.NewProber(cfg.Encoder.FFprobe)
	a.prober = prober

	cache := service.NewProgressCache()
	writer := service.NewMetadataWriter(store, log)
	events := service.NewEventBus()

	supervisor := service.NewSupervisor(encoder, inspector, cache, writer, events, log,
		service.SupervisorConfig{PersistInterval: cfg.HLS.PersistInterval})
	pipeline := service.NewPipeline(supervisor, cache, writer, events, log, service.PipelineConfig{
		Workers:   cfg.HLS.MaxConcurrentStreams,
		QueueSize: cfg.HLS.QueueSize,
	})
	reconciler := service.NewReconciler(store, inspector, prober, pipeline, writer, log, service.ReconcilerConfig{
		RetryEnabled: cfg.Startup.RetryEnabled,
		RetryLimit:   cfg.Startup.RetryLimit,
	})

	a.hls = service.NewHLSService(store, inspector, cache, pipeline, reconciler, events)
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (port.MediaStore, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		return sqlite.NewStore(ctx, cfg.Database.Path)
	case config.DriverPostgres:
		return postgres.NewStore(ctx, postgres.Config{DSN: cfg.Database.URL})
	case config.DriverJSONFile:
		return jsonfile.NewStore(cfg.StorageRoot)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// Close stops the pipeline, killing any running encoder, then releases the
// store and the storage lock.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if err := a.hls.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop pipeline: %w", err))
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if err := a.lock.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release lock: %w", err))
	}
	return errors.Join(errs...)
}
