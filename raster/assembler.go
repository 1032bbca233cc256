package raster

import (
	"image"
	"image/color"
	"math"

	"github.com/eak1mov/go-seedtiles/biome"
	"github.com/eak1mov/go-seedtiles/relief"
	"github.com/eak1mov/go-seedtiles/tile"
)

// ContourAlpha is the opacity of iso-level strokes.
const ContourAlpha = 0.35

// Input is everything needed to paint one tile.
type Input struct {
	Region         tile.Region
	Pixels         int
	BlocksPerPixel float64
	Classes        *biome.Grid

	// Surface carries per-pixel light and heights. When nil the tile is
	// painted with flat lighting and without contours or water.
	Surface *relief.Surface
	YLevel  float64

	// Highlight, when not empty, leaves pixels of other biomes transparent.
	Highlight biome.Set
	// Water overlays the wave texture on cells below sea level.
	Water bool
	// ContourInterval <= 0 disables contour strokes.
	ContourInterval float64
}

// Assembler paints tiles. Its fields are read-only after construction, so
// one Assembler can serve concurrent tiles.
type Assembler struct {
	Palette  *Palette
	SeaLevel float64
	// Texture is the water overlay; nil disables water for every tile.
	Texture *Pattern
}

func NewAssembler(palette *Palette) *Assembler {
	return &Assembler{Palette: palette, SeaLevel: 63, Texture: WavePattern()}
}

func (a *Assembler) Assemble(in Input) *image.NRGBA {
	n := in.Pixels
	img := image.NewNRGBA(image.Rect(0, 0, n, n))
	cells := in.Classes

	originPX := pixelOrigin(in.Region.OriginX, in.BlocksPerPixel)
	originPZ := pixelOrigin(in.Region.OriginZ, in.BlocksPerPixel)
	scale := in.BlocksPerPixel / float64(in.Region.SampleStride)

	for pz := range n {
		cz := min(cells.Height-1, int(math.Floor(float64(pz)*scale)))
		for px := range n {
			cx := min(cells.Width-1, int(math.Floor(float64(px)*scale)))
			id := cells.At(cx, cz)
			if !in.Highlight.Empty() && !in.Highlight.Has(id) {
				continue
			}
			base := a.Palette.Color(id)

			light := 1.0
			if in.Surface != nil {
				light = in.Surface.LightAt(px, pz)
			}
			r, g, b := shade(base.R, light), shade(base.G, light), shade(base.B, light)

			if in.Surface != nil {
				h := in.Surface.HeightAt(px, pz)
				if in.Water && a.Texture != nil && h <= in.YLevel && h < a.SeaLevel-2 {
					c, alpha := a.Texture.At(originPX+px, originPZ+pz)
					r, g, b = blend(r, c.R, alpha), blend(g, c.G, alpha), blend(b, c.B, alpha)
				}
				if relief.CrossesContour(h, in.Surface.HeightAt(px+1, pz), in.ContourInterval) ||
					relief.CrossesContour(h, in.Surface.HeightAt(px, pz+1), in.ContourInterval) {
					r, g, b = blend(r, 0, ContourAlpha), blend(g, 0, ContourAlpha), blend(b, 0, ContourAlpha)
				}
			}

			img.SetNRGBA(px, pz, color.NRGBA{R: r, G: g, B: b, A: 255})
		}
	}
	return img
}

func shade(c uint8, light float64) uint8 {
	return clampByte(math.Round(float64(c) * light))
}

func blend(dst, src uint8, alpha float64) uint8 {
	return clampByte(math.Round(float64(dst)*(1-alpha) + float64(src)*alpha))
}

func clampByte(v float64) uint8 {
	return uint8(max(0, min(255, v)))
}

func pixelOrigin(origin int, blocksPerPixel float64) int {
	return int(math.Floor(float64(origin) / blocksPerPixel))
}
