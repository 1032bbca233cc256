// Package mb reads and writes tiles in the MBTiles SQLite format.
//
// The caller registers the "sqlite3" database/sql driver, for example by
// importing github.com/mattn/go-sqlite3.
package mb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/eak1mov/go-seedtiles/tile"
)

// ErrCorrupt reports a stored tile whose row does not fit its zoom level.
var ErrCorrupt = errors.New("seedtiles: corrupt mbtiles archive")

// tmsRow converts between XYZ and TMS rows; the mapping is its own inverse.
func tmsRow(z, y uint32) uint32 {
	return (1 << z) - 1 - y
}

// Reader implements tile.Reader and tile.Visitor for an MBTiles archive
// opened read-only.
type Reader struct {
	db     *sql.DB
	lookup *sql.Stmt
}

// NewReader opens the archive at filePath. The Reader must be closed.
func NewReader(filePath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", filePath))
	if err != nil {
		return nil, err
	}
	lookup, err := db.Prepare("SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?")
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Reader{db: db, lookup: lookup}, nil
}

func (r *Reader) Close() error {
	return errors.Join(r.lookup.Close(), r.db.Close())
}

// collect runs a two-column query into a map.
func collect[K comparable, V any](db *sql.DB, query string) (map[K]V, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[K]V)
	for rows.Next() {
		var k K
		var v V
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (r *Reader) ReadMetadata() (map[string]string, error) {
	return collect[string, string](r.db, "SELECT name, value FROM metadata")
}

// ZoomCounts returns the number of tiles stored at each zoom level.
func (r *Reader) ZoomCounts() (map[uint32]int, error) {
	return collect[uint32, int](r.db, "SELECT zoom_level, COUNT(*) FROM tiles GROUP BY zoom_level")
}

// ReadTile returns an empty slice for a tile the archive does not hold.
func (r *Reader) ReadTile(tileID tile.ID) ([]byte, error) {
	if !tileID.Valid() {
		return nil, fmt.Errorf("%w: %d/%d/%d", tile.ErrInvalidCoord, tileID.Z, tileID.X, tileID.Y)
	}
	var data []byte
	err := r.lookup.QueryRow(tileID.Z, tileID.X, tmsRow(tileID.Z, tileID.Y)).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return []byte{}, nil
	case err != nil:
		return nil, err
	}
	return data, nil
}

// VisitTiles walks the archive zoom by zoom, in column then row order, so
// conversions are reproducible.
func (r *Reader) VisitTiles(visitor func(tile.ID, []byte) error) error {
	rows, err := r.db.Query("SELECT zoom_level, tile_column, tile_row, tile_data FROM tiles ORDER BY zoom_level, tile_column, tile_row DESC")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var z, x, row uint32
		var data []byte
		if err := rows.Scan(&z, &x, &row, &data); err != nil {
			return err
		}
		id := tile.ID{X: x, Y: tmsRow(z, row), Z: z}
		if z >= 32 || row >= 1<<z || !id.Valid() {
			return fmt.Errorf("%w: tile %d/%d row %d", ErrCorrupt, z, x, row)
		}
		if err := visitor(id, data); err != nil {
			return err
		}
	}
	return rows.Err()
}
