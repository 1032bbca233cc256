package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"github.com/eak1mov/go-seedtiles/scheduler"
	"github.com/eak1mov/go-seedtiles/server"
)

const shutdownTimeout = 5 * time.Second

type serveCmd struct {
	configPath string
	listen     string
}

func (c *serveCmd) Name() string     { return "serve" }
func (c *serveCmd) Synopsis() string { return "serve map tiles and redraw events over HTTP" }
func (c *serveCmd) Usage() string {
	return "seedtiles serve [-config <path>] [-listen <addr>]\n"
}
func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "Config file (YAML)")
	f.StringVar(&c.listen, "listen", "", "Listen address; overrides the config")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	logger := newLogger()
	if err := c.run(ctx, logger); err != nil {
		logger.Error("seedtiles: serve failed", "error", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *serveCmd) run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}
	if c.listen != "" {
		cfg.Server.Listen = c.listen
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := server.NewHub(logger)
	sched, err := startScheduler(ctx, cfg, logger, scheduler.WithRedraw(hub.Broadcast))
	if err != nil {
		return err
	}
	defer sched.Dispose()

	opts := []server.Option{server.WithLogger(logger), server.WithFormat(cfg.Format())}
	if d := cfg.Server.TileTimeout.Duration; d > 0 {
		opts = append(opts, server.WithTileTimeout(d))
	}
	srv, err := server.New(sched, hub, opts...)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout.Duration,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("seedtiles: listening", "addr", cfg.Server.Listen)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("seedtiles: shutting down", "sessions", hub.Sessions())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
