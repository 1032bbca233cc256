// Package tile provides common tile interfaces and types.
package tile

import "fmt"

// ID represents tile coordinates in the XYZ scheme (Tiled web map).
type ID struct {
	X uint32
	Y uint32
	Z uint32
}

func (t ID) Valid() bool {
	return t.Z < 32 && t.X < (1<<t.Z) && t.Y < (1<<t.Z)
}

// Coord addresses a map tile in world space. X and Y are signed: tile (0, 0)
// starts at the world origin and negative tiles extend towards negative
// block coordinates. Z is the display zoom level.
type Coord struct {
	Z int
	X int
	Y int
}

func (c Coord) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// Region is the rectangle of world blocks covered by one tile, together with
// the stride (in blocks) at which the classification is sampled.
type Region struct {
	OriginX      int
	OriginZ      int
	BlockWidth   int
	BlockHeight  int
	SampleStride int
}

func (r Region) Valid() bool {
	return r.BlockWidth >= 1 && r.BlockHeight >= 1 && r.SampleStride >= 1
}

// Cells returns the number of classification samples along each axis.
func (r Region) Cells() (int, int) {
	return ceilDiv(r.BlockWidth, r.SampleStride), ceilDiv(r.BlockHeight, r.SampleStride)
}

// Writer defines an interface for writing tiles to a tileset.
type Writer interface {
	// WriteTile writes a single tile to the tileset.
	WriteTile(tileID ID, tileData []byte) error

	// Finalize completes the writing process: flushes buffers, writes header and indices.
	// It must be called before closing the Writer.
	Finalize() error
}

type Reader interface {
	// ReadTile reads a single tile from the tileset.
	// If the tile does not exist, it returns an empty slice with no error.
	ReadTile(tileID ID) ([]byte, error)
}

type Visitor interface {
	// VisitTiles calls the visitor for every tile in the tileset.
	// Order of tiles, upfront cpu and memory consumption are implementation-defined.
	VisitTiles(visitor func(ID, []byte) error) error
}

// Location represents the absolute location of tile data inside a tileset file.
type Location struct {
	Offset uint64
	Length uint64
}

type LocationVisitor interface {
	VisitLocations(visitor func(ID, Location) error) error
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
