package raster

import (
	"image/color"
	"math"
)

// Pattern is a square texture repeated across the world in global pixel
// coordinates, so it continues seamlessly from tile to tile.
type Pattern struct {
	Size  int
	Color color.RGBA
	Alpha []float64
}

func (p *Pattern) At(x, y int) (color.RGBA, float64) {
	i := ((x % p.Size) + p.Size) % p.Size
	j := ((y % p.Size) + p.Size) % p.Size
	return p.Color, p.Alpha[j*p.Size+i]
}

// WavePattern returns the light wave texture drawn over deep water.
func WavePattern() *Pattern {
	const size = 16
	p := &Pattern{
		Size:  size,
		Color: color.RGBA{R: 255, G: 255, B: 255, A: 255},
		Alpha: make([]float64, size*size),
	}
	for y := range size {
		for x := range size {
			// Two crests per tile, one pixel thick.
			crest := 4 + 1.5*math.Sin(2*math.Pi*float64(x)/size)
			d := math.Abs(math.Mod(float64(y)-crest+size, size/2))
			if d < 1 || d > size/2-1 {
				p.Alpha[y*size+x] = 0.25
			}
		}
	}
	return p
}
