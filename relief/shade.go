package relief

import (
	"math"

	"github.com/eak1mov/go-seedtiles/tile"
)

const (
	// VoidLight is the multiplier for pixels without a visible surface.
	VoidLight = 0.15

	MinLight = 0.5
	MaxLight = 1.5
)

// Hillshade returns the light multiplier for a cell with the given
// neighbouring heights, lit from the north-west. With invert set the light
// comes from the south-east, for generators whose z axis is flipped.
func Hillshade(hN, hS, hE, hW, scale float64, invert bool) float64 {
	d0 := hN + hW
	d1 := hS + hE
	mul := 0.25 / math.Max(1e-4, scale)

	delta := d1 - d0
	if invert {
		delta = -delta
	}
	light := 1 + delta*mul
	return math.Max(MinLight, math.Min(MaxLight, light))
}

// Sampling describes how the pixels of a tile map onto its world region.
type Sampling struct {
	Region         tile.Region
	Pixels         int
	BlocksPerPixel float64
}

// Surface is the per-pixel result of Compose. Light has Pixels*Pixels
// values. Height has (Pixels+1)*(Pixels+1) values so that the last row and
// column can be compared with their neighbours in the next tile.
type Surface struct {
	Pixels int
	Light  []float32
	Height []float32
}

func (s *Surface) LightAt(px, pz int) float64 {
	return float64(s.Light[pz*s.Pixels+px])
}

func (s *Surface) HeightAt(px, pz int) float64 {
	return float64(s.Height[pz*(s.Pixels+1)+px])
}

// Shader turns an elevation grid into per-pixel light and height values.
type Shader struct {
	// Invert flips the light direction.
	Invert bool

	// Underground dims every pixel whose surface lies above CutY, that is
	// where the map shows a slice below ground.
	Underground bool
	CutY        float64
}

// Compose evaluates every pixel of the tile in world coordinates, so the
// result along a tile edge matches the neighbouring tile exactly.
func (s Shader) Compose(g *Grid, smp Sampling) *Surface {
	n := smp.Pixels
	out := &Surface{
		Pixels: n,
		Light:  make([]float32, n*n),
		Height: make([]float32, (n+1)*(n+1)),
	}
	if !g.Surface {
		for i := range out.Light {
			out.Light[i] = VoidLight
		}
		for i := range out.Height {
			out.Height[i] = float32(math.NaN())
		}
		return out
	}

	bpp := smp.BlocksPerPixel
	scale := float64(g.Spacing) / bpp
	half := 0.5 / scale
	step := bpp / scale

	for pz := 0; pz <= n; pz++ {
		for px := 0; px <= n; px++ {
			wx := float64(smp.Region.OriginX) + float64(px)*bpp
			wz := float64(smp.Region.OriginZ) + float64(pz)*bpp
			gx, gz := g.Interior(wx, wz)

			h := Bilinear(g, gx, gz)
			out.Height[pz*(n+1)+px] = float32(h)
			if px == n || pz == n {
				continue
			}

			light := VoidLight
			switch {
			case math.IsNaN(h):
			case s.Underground && h > s.CutY:
			default:
				hE := Bilinear(g, gx+half, gz)
				hW := Bilinear(g, gx-half, gz)
				hS := Bilinear(g, gx, gz+half)
				hN := Bilinear(g, gx, gz-half)
				light = Hillshade(0, hS-hN, hE-hW, 0, step, s.Invert)
				if math.IsNaN(light) {
					light = VoidLight
				}
			}
			out.Light[pz*n+px] = float32(light)
		}
	}
	return out
}

// CrossesContour reports whether an iso-level line separates heights h1 and
// h2 for the given interval. A non-positive interval disables contours.
func CrossesContour(h1, h2, interval float64) bool {
	if interval <= 0 || math.IsNaN(h1) || math.IsNaN(h2) {
		return false
	}
	return math.Floor(h1/interval) != math.Floor(h2/interval)
}
