package relief_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/eak1mov/go-seedtiles/relief"
	"github.com/eak1mov/go-seedtiles/tile"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// terrain is a smooth deterministic height function used to fill grids.
func terrain(x, z float64) float32 {
	return float32(64 + 20*math.Sin(x/37) + 12*math.Cos(z/23) + 0.01*x)
}

func fill(a relief.Area) *relief.Grid {
	g := relief.NewGrid(a)
	for j := range a.Height {
		for i := range a.Width {
			g.Set(i, j, terrain(float64(a.OriginX+i*a.Spacing), float64(a.OriginZ+j*a.Spacing)))
		}
	}
	return g
}

func TestAreaFor(t *testing.T) {
	tests := []struct {
		name    string
		region  tile.Region
		spacing int
		want    relief.Area
	}{
		{"aligned", tile.Region{OriginX: 256, OriginZ: -256, BlockWidth: 256, BlockHeight: 256, SampleStride: 1}, 4,
			relief.Area{OriginX: 252, OriginZ: -260, Width: 66, Height: 66, Spacing: 4}},
		{"insideCell", tile.Region{OriginX: 2, OriginZ: -2, BlockWidth: 2, BlockHeight: 2, SampleStride: 1}, 4,
			relief.Area{OriginX: -4, OriginZ: -8, Width: 3, Height: 3, Spacing: 4}},
		{"coarse", tile.Region{OriginX: -4096, OriginZ: 0, BlockWidth: 4096, BlockHeight: 4096, SampleStride: 16}, 16,
			relief.Area{OriginX: -4112, OriginZ: -16, Width: 258, Height: 258, Spacing: 16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := relief.AreaFor(tt.region, tt.spacing)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("AreaFor mismatch (-want +got):\n%s", diff)
			}
			if !got.Valid() {
				t.Errorf("AreaFor returned invalid area %+v", got)
			}
		})
	}
}

func TestBilinearKnots(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	g := relief.NewGrid(relief.Area{Width: 7, Height: 5, Spacing: 4})
	for i := range g.Values {
		g.Values[i] = float32(rng.Float64()*200 - 64)
	}
	for j := -1; j < g.Height-1; j++ {
		for i := -1; i < g.Width-1; i++ {
			if got, want := relief.Bilinear(g, float64(i), float64(j)), g.At(i+1, j+1); got != want {
				t.Errorf("Bilinear(%d, %d) = %v, want %v", i, j, got, want)
			}
		}
	}
}

func TestBilinearInterpolates(t *testing.T) {
	g := relief.NewGrid(relief.Area{Width: 3, Height: 3, Spacing: 4})
	copy(g.Values, []float32{
		0, 0, 0,
		0, 10, 20,
		0, 30, 40,
	})
	require.InDelta(t, 25.0, relief.Bilinear(g, 0.5, 0.5), 1e-9)
	require.InDelta(t, 15.0, relief.Bilinear(g, 0.5, 0), 1e-9)
	// Out of range indices clamp to the edge.
	require.InDelta(t, 40.0, relief.Bilinear(g, 5, 5), 1e-9)
	require.InDelta(t, 0.0, relief.Bilinear(g, -3, -3), 1e-9)
}

func TestHillshade(t *testing.T) {
	require.Equal(t, 1.0, relief.Hillshade(5, 5, 5, 5, 1, false))
	require.Equal(t, relief.MaxLight, relief.Hillshade(0, 100, 100, 0, 1, false))
	require.Equal(t, relief.MinLight, relief.Hillshade(0, 100, 100, 0, 1, true))

	rng := rand.New(rand.NewPCG(3, 4))
	for range 1000 {
		hN, hS, hE, hW := rng.Float64()*8, rng.Float64()*8, rng.Float64()*8, rng.Float64()*8
		scale := rng.Float64() * 4
		light := relief.Hillshade(hN, hS, hE, hW, scale, false)
		if light < relief.MinLight || light > relief.MaxLight {
			t.Fatalf("Hillshade(%v, %v, %v, %v, %v) = %v out of range", hN, hS, hE, hW, scale, light)
		}
		inverted := relief.Hillshade(hN, hS, hE, hW, scale, true)
		if light > relief.MinLight && light < relief.MaxLight &&
			inverted > relief.MinLight && inverted < relief.MaxLight {
			require.InDelta(t, 2.0, light+inverted, 1e-9)
		}
	}
}

func TestComposeSeams(t *testing.T) {
	geometry := tile.Geometry{TileSize: 64}
	shader := relief.Shader{}
	for _, z := range []int{-2, 0, 3} {
		left, err := geometry.Region(tile.Coord{Z: z, X: -1, Y: 2})
		require.NoError(t, err)
		right, err := geometry.Region(tile.Coord{Z: z, X: 0, Y: 2})
		require.NoError(t, err)
		below, err := geometry.Region(tile.Coord{Z: z, X: -1, Y: 3})
		require.NoError(t, err)
		bpp, err := geometry.BlocksPerPixel(z)
		require.NoError(t, err)
		spacing := max(4, left.SampleStride)

		compose := func(r tile.Region) *relief.Surface {
			return shader.Compose(fill(relief.AreaFor(r, spacing)), relief.Sampling{Region: r, Pixels: 64, BlocksPerPixel: bpp})
		}
		l, r, b := compose(left), compose(right), compose(below)
		for p := 0; p <= 64; p++ {
			if got, want := l.HeightAt(64, p), r.HeightAt(0, p); got != want {
				t.Fatalf("zoom %d: vertical seam at row %d: %v != %v", z, p, got, want)
			}
			if got, want := l.HeightAt(p, 64), b.HeightAt(p, 0); got != want {
				t.Fatalf("zoom %d: horizontal seam at column %d: %v != %v", z, p, got, want)
			}
		}
		for i, light := range l.Light {
			if light < relief.MinLight || light > relief.MaxLight {
				t.Fatalf("zoom %d: light[%d] = %v out of range", z, i, light)
			}
		}

		// Shading two neighbours separately matches shading their union.
		union := left
		union.BlockWidth *= 2
		union.BlockHeight *= 2
		whole := shader.Compose(fill(relief.AreaFor(union, spacing)), relief.Sampling{Region: union, Pixels: 128, BlocksPerPixel: bpp})
		for pz := range 64 {
			for px := range 64 {
				require.InDelta(t, whole.LightAt(px, pz), l.LightAt(px, pz), 1e-6, "zoom %d: left (%d, %d)", z, px, pz)
				require.InDelta(t, whole.LightAt(64+px, pz), r.LightAt(px, pz), 1e-6, "zoom %d: right (%d, %d)", z, px, pz)
				require.InDelta(t, whole.LightAt(px, 64+pz), b.LightAt(px, pz), 1e-6, "zoom %d: below (%d, %d)", z, px, pz)
			}
		}
	}
}

func TestComposeVoid(t *testing.T) {
	region := tile.Region{OriginX: 0, OriginZ: 0, BlockWidth: 16, BlockHeight: 16, SampleStride: 1}
	smp := relief.Sampling{Region: region, Pixels: 16, BlocksPerPixel: 1}

	g := fill(relief.AreaFor(region, 4))
	g.Surface = false
	s := relief.Shader{}.Compose(g, smp)
	for i, light := range s.Light {
		if light != relief.VoidLight {
			t.Fatalf("no-surface light[%d] = %v, want %v", i, light, relief.VoidLight)
		}
	}

	g = fill(relief.AreaFor(region, 4))
	g.Set(1, 1, float32(math.NaN()))
	s = relief.Shader{}.Compose(g, smp)
	require.Equal(t, float32(relief.VoidLight), s.Light[0])
	require.NotEqual(t, float32(relief.VoidLight), s.Light[15*16+15])
}

func TestComposeUnderground(t *testing.T) {
	region := tile.Region{OriginX: 0, OriginZ: 0, BlockWidth: 16, BlockHeight: 16, SampleStride: 1}
	smp := relief.Sampling{Region: region, Pixels: 16, BlocksPerPixel: 1}
	g := relief.NewGrid(relief.AreaFor(region, 4))
	for i := range g.Values {
		g.Values[i] = 70
	}

	above := relief.Shader{Underground: true, CutY: 100}.Compose(g, smp)
	below := relief.Shader{Underground: true, CutY: 40}.Compose(g, smp)
	for i := range above.Light {
		require.Equal(t, float32(1), above.Light[i])
		require.Equal(t, float32(relief.VoidLight), below.Light[i])
	}
}

func TestCrossesContour(t *testing.T) {
	tests := []struct {
		h1, h2, interval float64
		want             bool
	}{
		{63, 65, 16, true},
		{65, 70, 16, false},
		{-1, 1, 16, true},
		{10, 50, 0, false},
		{10, 50, -4, false},
		{math.NaN(), 50, 16, false},
	}
	for _, tt := range tests {
		if got := relief.CrossesContour(tt.h1, tt.h2, tt.interval); got != tt.want {
			t.Errorf("CrossesContour(%v, %v, %v) = %v, want %v", tt.h1, tt.h2, tt.interval, got, tt.want)
		}
	}
}
