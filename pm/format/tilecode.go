package format

import (
	"math/bits"

	"github.com/google/hilbert"

	"github.com/eak1mov/go-seedtiles/tile"
)

// TileCode returns the position of the tile on the Hilbert curve of its
// level, counted from the first tile of level 0.
func TileCode(id tile.ID) uint64 {
	h, _ := hilbert.NewHilbert(1 << id.Z)
	d, _ := h.MapInverse(int(id.X), int(id.Y))
	return levelStart(int(id.Z)) + uint64(d)
}

func TileID(code uint64) tile.ID {
	z := (bits.Len64(3*code+1) - 1) / 2
	h, _ := hilbert.NewHilbert(1 << z)
	x, y, _ := h.Map(int(code - levelStart(z)))
	return tile.ID{X: uint32(x), Y: uint32(y), Z: uint32(z)}
}

func levelStart(z int) uint64 {
	return (1<<(2*z) - 1) / 3
}
