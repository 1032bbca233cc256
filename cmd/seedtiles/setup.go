package main

import (
	"context"
	"log/slog"

	"github.com/eak1mov/go-seedtiles/config"
	"github.com/eak1mov/go-seedtiles/pool"
	"github.com/eak1mov/go-seedtiles/scheduler"
)

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return &cfg, nil
	}
	return config.Load(path)
}

// startScheduler builds the backend pool and scheduler described by cfg and
// waits until the pool is ready. The caller disposes the scheduler.
func startScheduler(ctx context.Context, cfg *config.Config, logger *slog.Logger, extra ...scheduler.Option) (*scheduler.Scheduler, error) {
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.SchedulerOptions(logger)
	if err != nil {
		return nil, err
	}

	p := pool.New(pool.KindFactory(cfg.Kind()), cfg.PoolOptions(logger)...)
	sched := scheduler.New(p, params, append(opts, extra...)...)
	sched.Start()
	if err := sched.WaitReady(ctx); err != nil {
		sched.Dispose()
		return nil, err
	}
	logger.Info("seedtiles: backends ready",
		"kind", cfg.Kind(), "members", sched.Status().Members, "seed", params.Seed,
		"version", params.Version, "dimension", params.Dimension)
	return sched, nil
}
