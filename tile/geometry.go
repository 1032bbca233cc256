package tile

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidCoord = errors.New("seedtiles: invalid tile coordinate")

const (
	// BaseTileSize is the pixel size of a tile that covers 256 blocks at zoom 0.
	BaseTileSize = 256

	maxZoomOut      = 16
	maxSampleStride = 256
)

// Geometry maps display tiles onto world regions for a given tile pixel size.
type Geometry struct {
	TileSize int
}

// Shift returns how many zoom levels the tile size adds on top of BaseTileSize.
func (g Geometry) Shift() int {
	return int(math.Round(math.Log2(float64(g.TileSize) / BaseTileSize)))
}

// BlockSize returns the edge length in blocks of a tile at zoom z.
func (g Geometry) BlockSize(z int) (int, error) {
	if g.TileSize <= 0 {
		return 0, fmt.Errorf("%w: tile size %d", ErrInvalidCoord, g.TileSize)
	}
	zoomOffset := z - g.Shift()
	switch {
	case zoomOffset < -maxZoomOut:
		return 0, fmt.Errorf("%w: zoom %d is too far out", ErrInvalidCoord, z)
	case zoomOffset <= 0:
		return BaseTileSize << -zoomOffset, nil
	case zoomOffset < 9:
		return BaseTileSize >> zoomOffset, nil
	default:
		return 0, fmt.Errorf("%w: zoom %d is below block resolution", ErrInvalidCoord, z)
	}
}

// BlocksPerPixel returns how many blocks one output pixel spans at zoom z.
func (g Geometry) BlocksPerPixel(z int) (float64, error) {
	size, err := g.BlockSize(z)
	if err != nil {
		return 0, err
	}
	return float64(size) / float64(g.TileSize), nil
}

// Region returns the world region covered by the tile.
func (g Geometry) Region(c Coord) (Region, error) {
	size, err := g.BlockSize(c.Z)
	if err != nil {
		return Region{}, err
	}
	return Region{
		OriginX:      c.X * size,
		OriginZ:      c.Y * size,
		BlockWidth:   size,
		BlockHeight:  size,
		SampleStride: SampleStride(float64(size) / float64(g.TileSize)),
	}, nil
}

// SampleStride returns the largest power of four not exceeding blocksPerPixel,
// capped at 256. Zoomed-in tiles (less than one block per pixel) sample every block.
func SampleStride(blocksPerPixel float64) int {
	stride := 1
	for stride*4 <= maxSampleStride && float64(stride*4) <= blocksPerPixel {
		stride *= 4
	}
	return stride
}
