package backend

import "math"

// noiseField is hashed value noise summed over octaves.
type noiseField struct {
	seed        int64
	frequency   float64
	octaves     int
	persistence float64
	lacunarity  float64
}

func newNoiseField(seed int64, salt uint64, frequency float64, octaves int) noiseField {
	return noiseField{
		seed:        int64(mix64(uint64(seed) ^ salt)),
		frequency:   frequency,
		octaves:     octaves,
		persistence: 0.5,
		lacunarity:  2,
	}
}

// at returns fractal noise in [-1, 1].
func (n noiseField) at(x, z float64) float64 {
	frequency := n.frequency
	amplitude := 1.0
	sum, total := 0.0, 0.0
	for i := range n.octaves {
		sum += valueNoise(x*frequency, z*frequency, n.seed+int64(i)) * amplitude
		total += amplitude
		amplitude *= n.persistence
		frequency *= n.lacunarity
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// at3 returns single-octave 3D value noise in [-1, 1].
func (n noiseField) at3(x, y, z float64) float64 {
	x, y, z = x*n.frequency, y*n.frequency, z*n.frequency
	y0 := math.Floor(y)
	sy := smooth(y - y0)
	a := valueNoise(x, z, n.seed^int64(hash3(int(y0), 0, 0)))
	b := valueNoise(x, z, n.seed^int64(hash3(int(y0)+1, 0, 0)))
	return lerp(a, b, sy)
}

func valueNoise(x, z float64, seed int64) float64 {
	x0 := int(math.Floor(x))
	z0 := int(math.Floor(z))
	sx := smooth(x - float64(x0))
	sz := smooth(z - float64(z0))

	ix0 := lerp(random2D(x0, z0, seed), random2D(x0+1, z0, seed), sx)
	ix1 := lerp(random2D(x0, z0+1, seed), random2D(x0+1, z0+1, seed), sx)
	return lerp(ix0, ix1, sz)
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func random2D(x, z int, seed int64) float64 {
	return float64(hash3(x, z, int(seed))&0xFFFF)/0x8000 - 1.0
}

func hash3(x, y, z int) uint32 {
	h := uint32(x*374761393 + y*668265263 + z*2147483647)
	h = (h ^ (h >> 13)) * 1274126177
	return h ^ (h >> 16)
}

// mix64 is the splitmix64 finalizer.
func mix64(v uint64) uint64 {
	v ^= v >> 30
	v *= 0xbf58476d1ce4e5b9
	v ^= v >> 27
	v *= 0x94d049bb133111eb
	return v ^ (v >> 31)
}
