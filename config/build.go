package config

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/eak1mov/go-seedtiles/pool"
	"github.com/eak1mov/go-seedtiles/raster"
	"github.com/eak1mov/go-seedtiles/relief"
	"github.com/eak1mov/go-seedtiles/resource"
	"github.com/eak1mov/go-seedtiles/scheduler"
	"github.com/eak1mov/go-seedtiles/tile"
)

func (c *Config) Geometry() tile.Geometry {
	return tile.Geometry{TileSize: c.Map.TileSize}
}

// BuildPalette returns the default palette with the configured overrides.
func (c *Config) BuildPalette() (*raster.Palette, error) {
	p := raster.DefaultPalette()
	if err := p.Override(c.Palette); err != nil {
		return nil, err
	}
	return p, nil
}

func (c *Config) Renderer() (*scheduler.Compositor, error) {
	palette, err := c.BuildPalette()
	if err != nil {
		return nil, err
	}
	a := raster.NewAssembler(palette)
	a.SeaLevel = float64(c.Map.SeaLevel)
	return &scheduler.Compositor{
		Shader: relief.Shader{
			Invert:      c.Kind().InvertRelief(),
			Underground: c.Map.Underground,
		},
		Assembler: a,
	}, nil
}

// View returns the initial display settings.
func (c *Config) View() scheduler.View {
	return scheduler.View{
		Relief:          c.Map.Relief,
		YLevel:          c.Map.YLevel,
		Water:           c.Map.Water,
		ContourInterval: c.Map.ContourInterval,
	}
}

// Loader returns the resource loader, or nil when none is configured.
func (c *Config) Loader() resource.Loader {
	switch {
	case c.Resources.Dir != "":
		return resource.DirLoader{Root: c.Resources.Dir}
	case c.Resources.URL != "":
		return resource.HTTPLoader{BaseURL: c.Resources.URL, Client: &http.Client{Timeout: time.Minute}}
	}
	return nil
}

func (c *Config) PoolOptions(logger *slog.Logger) []pool.Option {
	opts := []pool.Option{
		pool.WithLogger(logger),
		pool.WithConfigureTimeout(c.Pool.ConfigureTimeout.Duration),
		pool.WithResetInterval(c.Pool.ResetInterval.Duration),
	}
	if c.Pool.Size > 0 {
		opts = append(opts, pool.WithSize(c.Pool.Size))
	}
	return opts
}

// SchedulerOptions wires the renderer, geometry, view and resources. The
// caller adds its own logger and redraw callback.
func (c *Config) SchedulerOptions(logger *slog.Logger) ([]scheduler.Option, error) {
	renderer, err := c.Renderer()
	if err != nil {
		return nil, err
	}
	opts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithRenderer(renderer),
		scheduler.WithGeometry(c.Geometry()),
		scheduler.WithElevationSpacing(c.Map.HeightSpacing),
		scheduler.WithView(c.View()),
	}
	if loader := c.Loader(); loader != nil {
		opts = append(opts, scheduler.WithResources(resource.NewCache(loader, resource.WithLogger(logger))))
	}
	return opts, nil
}
