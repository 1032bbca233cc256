package tile

import (
	"errors"
	"iter"
)

var errVisitCancelled = errors.New("visit cancelled")

// IterTiles returns an iterator over all tiles in the tileset.
// Iteration panics on unrecoverable visitor errors.
func IterTiles(r Visitor) iter.Seq2[ID, []byte] {
	return func(yield func(ID, []byte) bool) {
		err := r.VisitTiles(func(tileID ID, tileData []byte) error {
			if !yield(tileID, tileData) {
				return errVisitCancelled
			}
			return nil
		})
		if err != nil && !errors.Is(err, errVisitCancelled) {
			panic(err)
		}
	}
}

func IterLocations(r LocationVisitor) iter.Seq2[ID, Location] {
	return func(yield func(ID, Location) bool) {
		err := r.VisitLocations(func(tileID ID, location Location) error {
			if !yield(tileID, location) {
				return errVisitCancelled
			}
			return nil
		})
		if err != nil && !errors.Is(err, errVisitCancelled) {
			panic(err)
		}
	}
}

// Cover returns the tiles at zoom z that intersect the block rectangle
// [minX, maxX) x [minZ, maxZ), in row-major order.
func (g Geometry) Cover(z, minX, minZ, maxX, maxZ int) iter.Seq[Coord] {
	return func(yield func(Coord) bool) {
		size, err := g.BlockSize(z)
		if err != nil || maxX <= minX || maxZ <= minZ {
			return
		}
		for ty := floorDiv(minZ, size); ty*size < maxZ; ty++ {
			for tx := floorDiv(minX, size); tx*size < maxX; tx++ {
				if !yield(Coord{Z: z, X: tx, Y: ty}) {
					return
				}
			}
		}
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
