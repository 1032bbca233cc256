package scheduler

import (
	"image"

	"github.com/eak1mov/go-seedtiles/biome"
	"github.com/eak1mov/go-seedtiles/raster"
	"github.com/eak1mov/go-seedtiles/relief"
	"github.com/eak1mov/go-seedtiles/tile"
)

// Job is the backend output for one tile.
type Job struct {
	Region         tile.Region
	Pixels         int
	BlocksPerPixel float64
	View           View
	Classes        *biome.Grid
	// Elevation is nil when relief is off or could not be sampled.
	Elevation *relief.Grid
}

// Renderer turns backend output into a tile image. It is called
// concurrently for different tiles.
type Renderer interface {
	Render(job Job) *image.NRGBA
}

// Compositor shades the elevation and paints the tile.
type Compositor struct {
	Shader    relief.Shader
	Assembler *raster.Assembler
}

func (c *Compositor) Render(job Job) *image.NRGBA {
	in := raster.Input{
		Region:          job.Region,
		Pixels:          job.Pixels,
		BlocksPerPixel:  job.BlocksPerPixel,
		Classes:         job.Classes,
		YLevel:          float64(job.View.YLevel),
		Highlight:       job.View.Highlight,
		Water:           job.View.Water,
		ContourInterval: job.View.ContourInterval,
	}
	if job.Elevation != nil {
		shader := c.Shader
		shader.CutY = float64(job.View.YLevel)
		in.Surface = shader.Compose(job.Elevation, relief.Sampling{
			Region:         job.Region,
			Pixels:         job.Pixels,
			BlocksPerPixel: job.BlocksPerPixel,
		})
	}
	return c.Assembler.Assemble(in)
}
