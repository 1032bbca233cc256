package mb_test

import (
	"database/sql"
	"maps"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/eak1mov/go-seedtiles/mb"
	"github.com/eak1mov/go-seedtiles/tile"
)

func TestWriterReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.mbtiles")
	metadata := map[string]string{"name": "seed 42", "format": "png"}
	tiles := map[tile.ID][]byte{
		{X: 0, Y: 0, Z: 0}: []byte("tile000"),
		{X: 1, Y: 0, Z: 1}: []byte("tile101"),
		{X: 0, Y: 1, Z: 1}: []byte("tile011"),
		{X: 5, Y: 2, Z: 3}: []byte("tile523"),
	}

	w, err := mb.NewWriter(path, mb.WithMetadata(metadata))
	require.NoError(t, err)
	require.NoError(t, w.WriteTile(tile.ID{X: 5, Y: 2, Z: 3}, []byte("stale")))
	for id, data := range tiles {
		require.NoError(t, w.WriteTile(id, data))
	}
	require.NoError(t, w.Finalize())
	require.Error(t, w.WriteTile(tile.ID{}, []byte("late")))
	require.NoError(t, w.Close())

	r, err := mb.NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	gotMetadata, err := r.ReadMetadata()
	require.NoError(t, err)
	if diff := cmp.Diff(metadata, gotMetadata); diff != "" {
		t.Errorf("ReadMetadata mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(tiles, maps.Collect(tile.IterTiles(r))); diff != "" {
		t.Errorf("VisitTiles mismatch (-want +got):\n%s", diff)
	}
	for id, want := range tiles {
		got, err := r.ReadTile(id)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	missing, err := r.ReadTile(tile.ID{X: 1, Y: 1, Z: 1})
	require.NoError(t, err)
	require.Empty(t, missing)

	counts, err := r.ZoomCounts()
	require.NoError(t, err)
	require.Equal(t, map[uint32]int{0: 1, 1: 2, 3: 1}, counts)
}

func TestCloseDiscardsUncommitted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.mbtiles")
	w, err := mb.NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteTile(tile.ID{}, []byte("x")))
	require.NoError(t, w.Close())

	r, err := mb.NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	counts, err := r.ZoomCounts()
	require.NoError(t, err)
	require.Empty(t, counts)
}

func TestVisitOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.mbtiles")
	w, err := mb.NewWriter(path)
	require.NoError(t, err)
	ids := []tile.ID{{X: 1, Y: 1, Z: 1}, {X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 1}, {X: 0, Y: 1, Z: 1}}
	for _, id := range ids {
		require.NoError(t, w.WriteTile(id, []byte{byte(id.Z)}))
	}
	require.Error(t, w.WriteTile(tile.ID{X: 2, Y: 0, Z: 1}, []byte("outside")))
	require.NoError(t, w.Finalize())
	require.NoError(t, w.Close())

	r, err := mb.NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	var got []tile.ID
	require.NoError(t, r.VisitTiles(func(id tile.ID, _ []byte) error {
		got = append(got, id)
		return nil
	}))
	want := []tile.ID{{X: 0, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("VisitTiles order mismatch (-want +got):\n%s", diff)
	}

	_, err = r.ReadTile(tile.ID{X: 4, Y: 0, Z: 2})
	require.ErrorIs(t, err, tile.ErrInvalidCoord)
}

func TestVisitCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiles.mbtiles")
	w, err := mb.NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Finalize())
	require.NoError(t, w.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO tiles VALUES (1, 0, 5, x'00')")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	r, err := mb.NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	err = r.VisitTiles(func(tile.ID, []byte) error { return nil })
	require.ErrorIs(t, err, mb.ErrCorrupt)
}
