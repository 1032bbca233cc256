package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/subcommands"
	"github.com/schollz/progressbar/v3"

	"github.com/eak1mov/go-seedtiles/raster"
	"github.com/eak1mov/go-seedtiles/scheduler"
	"github.com/eak1mov/go-seedtiles/tile"
)

// maxAttempts bounds resubmissions of tasks dropped by a backend restart.
const maxAttempts = 3

type renderCmd struct {
	configPath   string
	outputPath   string
	outputFormat string
	imageFormat  string
	minZoom      int
	maxZoom      int
	zoomBias     int
	bounds       string
}

func (c *renderCmd) Name() string     { return "render" }
func (c *renderCmd) Synopsis() string { return "render a world region into a tile archive" }
func (c *renderCmd) Usage() string {
	return "seedtiles render [-config <path>] -o <path> [-of <format>] [-minzoom <z>] [-maxzoom <z>] [-bounds x0,z0,x1,z1]\n"
}
func (c *renderCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "Config file (YAML)")
	f.StringVar(&c.outputPath, "o", "", "Output path; a {z}/{x}/{y} pattern for xyz")
	f.StringVar(&c.outputFormat, "of", "", "Output format (mbtiles, pmtiles, xyz)")
	f.StringVar(&c.imageFormat, "format", "", "Tile image format (png, bmp); overrides the config")
	f.IntVar(&c.minZoom, "minzoom", 0, "Lowest display zoom")
	f.IntVar(&c.maxZoom, "maxzoom", 2, "Highest display zoom")
	f.IntVar(&c.zoomBias, "zoombias", 8, "Archive level of display zoom 0")
	f.StringVar(&c.bounds, "bounds", "-1024,-1024,1024,1024", "Block rectangle x0,z0,x1,z1")
}

type bounds struct {
	MinX, MinZ, MaxX, MaxZ int
}

func parseBounds(s string) (bounds, error) {
	var b bounds
	if _, err := fmt.Sscanf(s, "%d,%d,%d,%d", &b.MinX, &b.MinZ, &b.MaxX, &b.MaxZ); err != nil {
		return bounds{}, fmt.Errorf("invalid bounds %q: %w", s, err)
	}
	if b.MaxX <= b.MinX || b.MaxZ <= b.MinZ {
		return bounds{}, fmt.Errorf("invalid bounds %q: empty rectangle", s)
	}
	return b, nil
}

func (c *renderCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	logger := newLogger()
	if err := c.run(ctx, logger); err != nil {
		logger.Error("seedtiles: render failed", "error", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *renderCmd) run(ctx context.Context, logger *slog.Logger) error {
	if c.outputPath == "" {
		return errors.New("output path is required")
	}
	if c.maxZoom < c.minZoom {
		return fmt.Errorf("maxzoom %d is below minzoom %d", c.maxZoom, c.minZoom)
	}
	area, err := parseBounds(c.bounds)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return err
	}
	if c.imageFormat != "" {
		cfg.Map.Format = c.imageFormat
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	params, err := cfg.Params()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched, err := startScheduler(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sched.Dispose()

	info := archiveInfo{
		Name:        "seedtiles",
		Description: fmt.Sprintf("seed %s, %s %s", cfg.Generation.Seed, params.Dimension, params.Version),
		Image:       cfg.Format(),
		MinZoom:     c.minZoom + c.zoomBias,
		MaxZoom:     c.maxZoom + c.zoomBias,
		Extra: map[string]string{
			"seed":      fmt.Sprint(params.Seed),
			"version":   params.Version.String(),
			"dimension": params.Dimension.String(),
		},
	}
	metadata, err := json.Marshal(info.mbMetadata())
	if err != nil {
		return err
	}
	kind := deduceFormat(c.outputFormat, c.outputPath)
	writer, err := openWriter(kind, c.outputPath, info, metadata, logger)
	if err != nil {
		return err
	}
	if closer, ok := writer.(io.Closer); ok {
		defer closer.Close()
	}

	job := renderJob{
		sched:  sched,
		geom:   cfg.Geometry(),
		layout: tile.Layout{ZoomBias: c.zoomBias},
		format: cfg.Format(),
		writer: writer,
		logger: logger,
		window: 4 * max(sched.Status().Members, 1),
	}
	var total int
	for z := c.minZoom; z <= c.maxZoom; z++ {
		for range job.geom.Cover(z, area.MinX, area.MinZ, area.MaxX, area.MaxZ) {
			total++
		}
	}
	job.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription("rendering"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWriter(os.Stderr),
	)

	start := time.Now()
	for z := c.minZoom; z <= c.maxZoom; z++ {
		if err := job.renderZoom(ctx, z, area); err != nil {
			return err
		}
	}
	job.bar.Finish()

	if err := writer.Finalize(); err != nil {
		return err
	}
	logger.Info("seedtiles: render finished",
		"output", c.outputPath,
		"format", kind,
		"tiles", humanize.Comma(int64(job.written)),
		"empty", job.empty,
		"skipped", job.skipped,
		"size", humanize.Bytes(job.bytes),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

type renderJob struct {
	sched  *scheduler.Scheduler
	geom   tile.Geometry
	layout tile.Layout
	format raster.Format
	writer tile.Writer
	logger *slog.Logger
	bar    *progressbar.ProgressBar
	window int

	written int
	empty   int
	skipped int
	bytes   uint64
}

type pending struct {
	task     *scheduler.Task
	attempts int
}

// renderZoom keeps up to window tasks in flight. Results are written in
// submission order; resubmitted tiles go to the back of the queue.
func (j *renderJob) renderZoom(ctx context.Context, z int, area bounds) error {
	next, stop := iter.Pull(j.geom.Cover(z, area.MinX, area.MinZ, area.MaxX, area.MaxZ))
	defer stop()

	var queue []pending
	exhausted := false
	for {
		for !exhausted && len(queue) < j.window {
			c, ok := next()
			if !ok {
				exhausted = true
				break
			}
			queue = append(queue, pending{task: j.sched.Submit(c), attempts: 1})
		}
		if len(queue) == 0 {
			return nil
		}

		head := queue[0]
		queue = queue[1:]
		img, err := head.task.Wait(ctx)
		if err != nil {
			return err
		}

		switch head.task.State() {
		case scheduler.StateStale:
			queue = append(queue, pending{task: j.sched.Submit(head.task.Coord), attempts: head.attempts})
			continue
		case scheduler.StateFailed:
			if errors.Is(head.task.Err(), scheduler.ErrRecovering) && head.attempts < maxAttempts {
				j.logger.Debug("seedtiles: resubmitting tile", "coord", head.task.Coord, "attempt", head.attempts+1)
				queue = append(queue, pending{task: j.sched.Submit(head.task.Coord), attempts: head.attempts + 1})
				continue
			}
			return fmt.Errorf("tile %v: %w", head.task.Coord, head.task.Err())
		}

		if err := j.write(head.task.Coord, img); err != nil {
			return err
		}
		j.bar.Add(1)
	}
}

func (j *renderJob) write(c tile.Coord, img *image.NRGBA) error {
	id, ok := j.layout.ID(c)
	if !ok {
		j.skipped++
		j.logger.Warn("seedtiles: tile outside archive layout", "coord", c)
		return nil
	}
	if img == nil {
		j.empty++
		return nil
	}
	data, err := j.format.Bytes(img)
	if err != nil {
		return err
	}
	if err := j.writer.WriteTile(id, data); err != nil {
		return err
	}
	j.written++
	j.bytes += uint64(len(data))
	return nil
}
