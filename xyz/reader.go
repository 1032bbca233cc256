package xyz

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/eak1mov/go-seedtiles/tile"
)

// Reader implements tile.Reader for a pattern-addressed directory tree.
type Reader struct {
	pattern *pattern
}

// NewReader creates a Reader for filePattern, e.g. "tiles/{z}/{x}/{y}.png".
func NewReader(filePattern string) (*Reader, error) {
	p, err := parsePattern(filepath.Clean(filePattern))
	if err != nil {
		return nil, err
	}
	return &Reader{pattern: p}, nil
}

func (r *Reader) ReadTile(tileID tile.ID) ([]byte, error) {
	tileData, err := os.ReadFile(r.pattern.format(tileID))
	if errors.Is(err, fs.ErrNotExist) {
		return make([]byte, 0), nil
	}
	if err != nil {
		return nil, err
	}
	return tileData, nil
}

// VisitTiles walks the directory tree below the pattern's fixed prefix.
// Files that do not match the pattern are skipped.
func (r *Reader) VisitTiles(visitor func(tile.ID, []byte) error) error {
	return filepath.WalkDir(r.pattern.root(), func(filePath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		tileID, ok := r.pattern.parse(filePath)
		if !ok {
			return nil
		}

		tileData, err := os.ReadFile(filePath)
		if err != nil {
			return err
		}
		return visitor(tileID, tileData)
	})
}
