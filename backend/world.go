package backend

import (
	"context"
	"fmt"
	"math"

	"github.com/eak1mov/go-seedtiles/biome"
	"github.com/eak1mov/go-seedtiles/relief"
	"github.com/eak1mov/go-seedtiles/tile"
)

const (
	SeaLevel = 63
	MinY     = -64
	MaxY     = 320

	riverWidth    = 0.04
	endIslandSize = 1024
)

// climate holds the noise parameters of one world column, each in [-1, 1].
type climate struct {
	continental float64
	temperature float64
	humidity    float64
	erosion     float64
	river       float64
}

// world is the configured generation model shared by both variants.
type world struct {
	params Params
	table  *ClimateTable

	continental noiseField
	temperature noiseField
	humidity    noiseField
	erosion     noiseField
	river       noiseField
}

func newWorld(p Params, table *ClimateTable) *world {
	scale := 1.0
	if p.LargeBiomes {
		scale = 0.25
	}
	return &world{
		params:      p,
		table:       table,
		continental: newNoiseField(p.Seed, 0x636f6e74, scale/2048, 5),
		temperature: newNoiseField(p.Seed, 0x74656d70, scale/4096, 4),
		humidity:    newNoiseField(p.Seed, 0x68756d69, scale/3072, 4),
		erosion:     newNoiseField(p.Seed, 0x65726f73, scale/1536, 4),
		river:       newNoiseField(p.Seed, 0x72697665, scale/1024, 3),
	}
}

func (w *world) climate(x, z float64) climate {
	return climate{
		continental: w.continental.at(x, z),
		temperature: w.temperature.at(x, z),
		humidity:    w.humidity.at(x, z),
		erosion:     w.erosion.at(x, z),
		river:       w.river.at(x, z),
	}
}

// surface returns the overworld terrain height of a column.
func (w *world) surface(cl climate) float64 {
	h := SeaLevel + 4 + cl.continental*70
	if h > SeaLevel {
		// Low erosion raises mountains inland.
		h += math.Max(0, cl.continental) * (1 - (cl.erosion+1)/2) * 220
	}
	if r := math.Abs(cl.river); r < riverWidth && h > SeaLevel-3 {
		h = lerp(SeaLevel-3, h, r/riverWidth)
	}
	return h
}

func (w *world) biomeAt(x, z float64, y int) biome.ID {
	switch w.params.Dimension {
	case Nether:
		return w.netherBiome(x, z)
	case End:
		return w.endBiome(x, z)
	}
	return w.overworldBiome(x, z, y)
}

func (w *world) overworldBiome(x, z float64, y int) biome.ID {
	cl := w.climate(x, z)
	h := w.surface(cl)
	v := w.params.Version
	modern := v.AtLeast(1, 18, 0)
	cold := cl.temperature < -0.3

	if modern && float64(y) < h-8 {
		switch {
		case y < 0 && cl.erosion < -0.25:
			return w.available(biome.DeepDark)
		case cl.humidity > 0.3:
			return biome.LushCaves
		case cl.continental > 0.35:
			return biome.DripstoneCaves
		}
	}

	switch {
	case h < SeaLevel:
		return oceanBiome(cl.temperature, h < SeaLevel-20)
	case math.Abs(cl.river) < riverWidth && h < SeaLevel+40:
		if cold {
			return biome.FrozenRiver
		}
		return biome.River
	case h < SeaLevel+3:
		switch {
		case cl.erosion < -0.35:
			return biome.StonyShore
		case cold:
			return biome.SnowyBeach
		}
		return biome.Beach
	case !modern && h > SeaLevel+50:
		if cold {
			return biome.SnowyMountains
		}
		return biome.WindsweptHills
	case modern && h > SeaLevel+120:
		switch {
		case cold:
			return biome.FrozenPeaks
		case cl.temperature > 0.25:
			return biome.StonyPeaks
		}
		return biome.JaggedPeaks
	case modern && h > SeaLevel+75:
		switch {
		case cold:
			return biome.SnowySlopes
		case cl.humidity > 0.15:
			return biome.Grove
		case cl.temperature > 0 && cl.humidity < -0.15:
			return w.available(biome.CherryGrove)
		}
		return biome.Meadow
	case h < SeaLevel+7 && cl.humidity > 0.25 && !cold:
		if cl.temperature > 0.2 {
			return w.available(biome.MangroveSwamp)
		}
		return biome.Swamp
	}

	id := w.table.Lookup(cl.temperature, cl.humidity)
	if id == biome.DarkForest && cl.erosion > 0.3 {
		id = biome.PaleGarden
	}
	return w.available(id)
}

// available replaces biomes the configured version does not have.
func (w *world) available(id biome.ID) biome.ID {
	v := w.params.Version
	switch id {
	case biome.PaleGarden:
		if !v.AtLeast(1, 21, 4) {
			return biome.DarkForest
		}
	case biome.CherryGrove:
		if !v.AtLeast(1, 20, 0) {
			return biome.Meadow
		}
	case biome.MangroveSwamp:
		if !v.AtLeast(1, 19, 0) {
			return biome.Swamp
		}
	case biome.DeepDark:
		if !v.AtLeast(1, 19, 0) {
			return biome.DripstoneCaves
		}
	}
	return id
}

func oceanBiome(temperature float64, deep bool) biome.ID {
	var shallow, deeper biome.ID
	switch {
	case temperature < -0.3:
		shallow, deeper = biome.FrozenOcean, biome.DeepFrozenOcean
	case temperature < -0.1:
		shallow, deeper = biome.ColdOcean, biome.DeepColdOcean
	case temperature < 0.1:
		shallow, deeper = biome.Ocean, biome.DeepOcean
	case temperature < 0.3:
		shallow, deeper = biome.LukewarmOcean, biome.DeepLukewarmOcean
	default:
		return biome.WarmOcean
	}
	if deep {
		return deeper
	}
	return shallow
}

func (w *world) netherBiome(x, z float64) biome.ID {
	if !w.params.Version.AtLeast(1, 16, 0) {
		return biome.NetherWastes
	}
	t := w.temperature.at(x*4, z*4)
	h := w.humidity.at(x*4, z*4)
	switch {
	case t < -0.15 && h < 0:
		return biome.SoulSandValley
	case t < -0.15:
		return biome.BasaltDeltas
	case t > 0.15 && h < 0:
		return biome.CrimsonForest
	case t > 0.15:
		return biome.WarpedForest
	}
	return biome.NetherWastes
}

func (w *world) endBiome(x, z float64) biome.ID {
	if x*x+z*z <= endIslandSize*endIslandSize {
		return biome.TheEnd
	}
	e := w.erosion.at(x, z)
	switch {
	case e > 0.25:
		return biome.EndHighlands
	case e > -0.0625:
		return biome.EndMidlands
	case e > -0.21875:
		return biome.EndBarrens
	}
	return biome.SmallEndIslands
}

// endSurface returns the island height of an End column, or NaN over the void.
func (w *world) endSurface(x, z float64) float64 {
	if r := math.Hypot(x, z); r < 160 {
		return 60 + (160-r)/8
	} else if r < endIslandSize {
		return math.NaN()
	}
	e := w.erosion.at(x, z)
	if e < -0.1 {
		return math.NaN()
	}
	return 50 + e*40
}

func classifyRegion(ctx context.Context, w *world, r tile.Region, y int) (*biome.Grid, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidRegion, r)
	}
	cw, ch := r.Cells()
	grid := biome.NewGrid(cw, ch)
	for j := range ch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		z := float64(r.OriginZ + j*r.SampleStride)
		for i := range cw {
			x := float64(r.OriginX + i*r.SampleStride)
			grid.Set(i, j, w.biomeAt(x, z, y))
		}
	}
	return grid, nil
}

// sampleArea fills an elevation grid from a per-column height function.
// Nether grids carry no surface.
func sampleArea(ctx context.Context, w *world, a relief.Area, overworld func(x, z float64) float64) (*relief.Grid, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidRegion, a)
	}
	grid := relief.NewGrid(a)
	if w.params.Dimension == Nether {
		grid.Surface = false
		for i := range grid.Values {
			grid.Values[i] = float32(math.NaN())
		}
		return grid, nil
	}

	height := overworld
	if w.params.Dimension == End {
		height = w.endSurface
	}
	for j := range a.Height {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		z := float64(a.OriginZ + j*a.Spacing)
		for i := range a.Width {
			x := float64(a.OriginX + i*a.Spacing)
			grid.Set(i, j, float32(height(x, z)))
		}
	}
	return grid, nil
}
