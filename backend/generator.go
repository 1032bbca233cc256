package backend

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/eak1mov/go-seedtiles/biome"
	"github.com/eak1mov/go-seedtiles/relief"
	"github.com/eak1mov/go-seedtiles/tile"
)

// NoiseGenerator derives the surface directly from 2D climate noise.
type NoiseGenerator struct {
	mu     sync.Mutex
	world  *world
	closed bool
}

func NewNoiseGenerator() *NoiseGenerator {
	return &NoiseGenerator{}
}

func (g *NoiseGenerator) Configure(ctx context.Context, params Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	g.world = newWorld(params, builtinTable)
	return nil
}

func (g *NoiseGenerator) current() (*world, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.closed:
		return nil, ErrClosed
	case g.world == nil:
		return nil, ErrNotConfigured
	}
	return g.world, nil
}

func (g *NoiseGenerator) Classify(ctx context.Context, region tile.Region, y int) (*biome.Grid, error) {
	w, err := g.current()
	if err != nil {
		return nil, err
	}
	return classifyRegion(ctx, w, region, y)
}

func (g *NoiseGenerator) SampleElevation(ctx context.Context, area relief.Area) (*relief.Grid, error) {
	w, err := g.current()
	if err != nil {
		return nil, err
	}
	return sampleArea(ctx, w, area, func(x, z float64) float64 {
		return w.surface(w.climate(x, z))
	})
}

func (g *NoiseGenerator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.world = nil
	return nil
}

const (
	// densityThreshold separates solid from air.
	densityThreshold = 0.390625
	cellHeight       = 8
	bisectSteps      = 5
)

// DensityGenerator finds the surface by scanning a 3D density function from
// the build limit downwards and refining the first solid cell by bisection.
// Land biomes come from a per-version climate table resource; until one is
// loaded it falls back to the built-in table.
type DensityGenerator struct {
	mu       sync.Mutex
	params   Params
	world    *world
	detail   noiseField
	table    *ClimateTable
	tableKey string
	closed   bool
}

func NewDensityGenerator() *DensityGenerator {
	return &DensityGenerator{}
}

func (g *DensityGenerator) Configure(ctx context.Context, params Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	g.params = params
	g.detail = newNoiseField(params.Seed, 0x64656e73, 1.0/48, 1)
	g.rebuild()
	return nil
}

// rebuild must be called with g.mu held.
func (g *DensityGenerator) rebuild() {
	table := builtinTable
	if g.table != nil && g.tableKey == resourceKey(g.params) {
		table = g.table
	}
	g.world = newWorld(g.params, table)
}

func resourceKey(p Params) string {
	return fmt.Sprintf("climate-%d_%d.bin", p.Version.Major, p.Version.Minor)
}

func (g *DensityGenerator) ResourceKey() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.world == nil {
		return ""
	}
	return resourceKey(g.params)
}

func (g *DensityGenerator) LoadResource(key string, data []byte) error {
	table, err := ParseClimateTable(data)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return ErrClosed
	}
	if g.world != nil && key != resourceKey(g.params) {
		return fmt.Errorf("%w: got %s, want %s", ErrResourceMismatch, key, resourceKey(g.params))
	}
	g.table = table
	g.tableKey = key
	if g.world != nil {
		g.rebuild()
	}
	return nil
}

func (g *DensityGenerator) current() (*world, noiseField, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.closed:
		return nil, noiseField{}, ErrClosed
	case g.world == nil:
		return nil, noiseField{}, ErrNotConfigured
	}
	return g.world, g.detail, nil
}

func (g *DensityGenerator) Classify(ctx context.Context, region tile.Region, y int) (*biome.Grid, error) {
	w, _, err := g.current()
	if err != nil {
		return nil, err
	}
	return classifyRegion(ctx, w, region, y)
}

func (g *DensityGenerator) SampleElevation(ctx context.Context, area relief.Area) (*relief.Grid, error) {
	w, detail, err := g.current()
	if err != nil {
		return nil, err
	}
	return sampleArea(ctx, w, area, func(x, z float64) float64 {
		return densitySurface(w, detail, x, z)
	})
}

func (g *DensityGenerator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.world = nil
	return nil
}

// densitySurface returns the top solid height of a column, or NaN when the
// column is air all the way down.
func densitySurface(w *world, detail noiseField, x, z float64) float64 {
	target := w.surface(w.climate(x, z))
	density := func(y float64) float64 {
		return (target-y)/24 + 0.5 + detail.at3(x, y, z)*0.12
	}
	for y := MaxY - cellHeight; y >= MinY; y -= cellHeight {
		if density(float64(y)) <= densityThreshold {
			continue
		}
		lo, hi := float64(y), float64(y+cellHeight)
		for range bisectSteps {
			mid := (lo + hi) / 2
			if density(mid) > densityThreshold {
				lo = mid
			} else {
				hi = mid
			}
		}
		return lo
	}
	return math.NaN()
}
