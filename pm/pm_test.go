package pm_test

import (
	"fmt"
	"maps"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/eak1mov/go-seedtiles/pm"
	"github.com/eak1mov/go-seedtiles/pm/format"
	"github.com/eak1mov/go-seedtiles/tile"
)

func testTiles(maxZoom int) map[tile.ID][]byte {
	tiles := make(map[tile.ID][]byte)
	for z := 2; z <= maxZoom; z++ {
		for x := range 1 << z {
			for y := range 1 << z {
				id := tile.ID{X: uint32(x), Y: uint32(y), Z: uint32(z)}
				if (x+y)%5 == 0 {
					tiles[id] = []byte("ocean")
				} else {
					tiles[id] = fmt.Appendf(nil, "%d/%d/%d", z, x, y)
				}
			}
		}
	}
	return tiles
}

func TestWriterReader(t *testing.T) {
	for _, tc := range []struct {
		name        string
		maxZoom     int
		compression format.Compression
	}{
		{"empty", 1, format.CompressionGzip},
		{"small", 4, format.CompressionGzip},
		{"zstd", 5, format.CompressionZstd},
		{"leaves", 8, format.CompressionGzip},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tiles := testTiles(tc.maxZoom)
			path := filepath.Join(t.TempDir(), "tiles.pmtiles")
			metadata := []byte(`{"seed":"42"}`)

			w, err := pm.NewWriter(path,
				pm.WithMetadata(metadata),
				pm.WithTileType(format.TileTypePng),
				pm.WithInternalCompression(tc.compression))
			require.NoError(t, err)
			defer w.Close()
			for id, data := range tiles {
				require.NoError(t, w.WriteTile(id, data))
			}
			require.NoError(t, w.WriteTile(tile.ID{}, nil))
			require.NoError(t, w.Finalize())
			require.ErrorIs(t, w.WriteTile(tile.ID{}, []byte("late")), pm.ErrFinalized)

			r, err := pm.Open(path)
			require.NoError(t, err)
			defer r.Close()

			got, err := r.ReadMetadata()
			require.NoError(t, err)
			require.Equal(t, metadata, got)

			h := r.Header()
			require.Equal(t, format.TileTypePng, h.TileType)
			require.Equal(t, tc.compression, h.InternalCompression)
			require.Equal(t, uint64(len(tiles)), h.AddressedTilesCount)
			if len(tiles) > 0 {
				require.Equal(t, uint8(2), h.MinZoom)
				require.Equal(t, uint8(tc.maxZoom), h.MaxZoom)
			}

			if diff := cmp.Diff(tiles, maps.Collect(tile.IterTiles(r))); diff != "" {
				t.Errorf("VisitTiles mismatch (-want +got):\n%s", diff)
			}
			for id, want := range tiles {
				data, err := r.ReadTile(id)
				require.NoError(t, err)
				require.Equal(t, want, data, "tile %v", id)
			}
			missing, err := r.ReadTile(tile.ID{X: 1, Y: 1, Z: 1})
			require.NoError(t, err)
			require.Empty(t, missing)
		})
	}
}

func TestDeduplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.pmtiles")
	w, err := pm.NewWriter(path)
	require.NoError(t, err)
	for x := range 4 {
		require.NoError(t, w.WriteTile(tile.ID{X: uint32(x), Y: 0, Z: 2}, []byte("same")))
	}
	require.NoError(t, w.Finalize())

	r, err := pm.Open(path)
	require.NoError(t, err)
	defer r.Close()
	h := r.Header()
	require.Equal(t, uint64(4), h.AddressedTilesCount)
	require.Equal(t, uint64(1), h.TileContentsCount)
	require.Equal(t, uint64(len("same")), h.TileDataLength)

	var locations []tile.Location
	for _, loc := range tile.IterLocations(r) {
		locations = append(locations, loc)
	}
	require.Len(t, locations, 4)
	for _, loc := range locations {
		require.Equal(t, locations[0], loc)
	}
}

func TestOpenInvalid(t *testing.T) {
	_, err := pm.NewReader(func(offset, length uint64) ([]byte, error) {
		return make([]byte, length), nil
	})
	require.ErrorIs(t, err, format.ErrInvalidHeader)
}
