// Package relief computes terrain shading for map tiles from sampled surface
// heights: bilinear interpolation over a padded grid, hillshade and contours.
package relief

import (
	"math"

	"github.com/eak1mov/go-seedtiles/tile"
)

// Area is a rectangle of elevation samples on the global lattice with the
// given spacing. Sample (i, j) is taken at block
// (OriginX + i*Spacing, OriginZ + j*Spacing).
type Area struct {
	OriginX int
	OriginZ int
	Width   int
	Height  int
	Spacing int
}

// AreaFor returns the sample area covering the region plus one padding
// sample on every side. The area is anchored on the global lattice, so two
// adjacent regions share the samples along their common edge.
func AreaFor(r tile.Region, spacing int) Area {
	baseX := floorDiv(r.OriginX, spacing) * spacing
	baseZ := floorDiv(r.OriginZ, spacing) * spacing
	return Area{
		OriginX: baseX - spacing,
		OriginZ: baseZ - spacing,
		Width:   ceilDiv(r.OriginX-baseX+r.BlockWidth, spacing) + 2,
		Height:  ceilDiv(r.OriginZ-baseZ+r.BlockHeight, spacing) + 2,
		Spacing: spacing,
	}
}

func (a Area) Valid() bool {
	return a.Width >= 3 && a.Height >= 3 && a.Spacing >= 1
}

// Interior converts a world position to unpadded grid coordinates: the
// first sample inside the padding is at (0, 0).
func (a Area) Interior(worldX, worldZ float64) (float64, float64) {
	gx := (worldX-float64(a.OriginX))/float64(a.Spacing) - 1
	gz := (worldZ-float64(a.OriginZ))/float64(a.Spacing) - 1
	return gx, gz
}

// Grid holds surface heights for an Area in row-major order. NaN marks a
// column without a surface. Surface is false for dimensions that have no
// open sky at all; such grids carry no usable values.
type Grid struct {
	Area
	Values  []float32
	Surface bool
}

func NewGrid(a Area) *Grid {
	return &Grid{
		Area:    a,
		Values:  make([]float32, a.Width*a.Height),
		Surface: true,
	}
}

func (g *Grid) Set(i, j int, v float32) {
	g.Values[j*g.Width+i] = v
}

// At returns the padded sample (i, j), clamping out-of-range indices to the
// nearest edge.
func (g *Grid) At(i, j int) float64 {
	i = clamp(i, 0, g.Width-1)
	j = clamp(j, 0, g.Height-1)
	return float64(g.Values[j*g.Width+i])
}

// Bilinear interpolates the grid at unpadded coordinates (x, z). At integer
// coordinates it returns the stored sample exactly.
func Bilinear(g *Grid, x, z float64) float64 {
	fx0, fz0 := math.Floor(x), math.Floor(z)
	fx, fz := x-fx0, z-fz0
	i, j := int(fx0)+1, int(fz0)+1

	v00 := g.At(i, j)
	if fx == 0 && fz == 0 {
		return v00
	}
	v10 := g.At(i+1, j)
	v01 := g.At(i, j+1)
	v11 := g.At(i+1, j+1)
	return v00*(1-fx)*(1-fz) + v10*fx*(1-fz) + v01*(1-fx)*fz + v11*fx*fz
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func ceilDiv(a, b int) int {
	return -floorDiv(-a, b)
}
