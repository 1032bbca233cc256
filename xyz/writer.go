package xyz

import (
	"os"
	"path/filepath"

	"github.com/eak1mov/go-seedtiles/tile"
)

// Writer implements tile.Writer for a pattern-addressed directory tree.
// Each tile is written to a temporary file and renamed into place, so
// readers never observe a partial tile.
type Writer struct {
	pattern *pattern
}

// NewWriter creates a Writer for filePattern, e.g. "tiles/{z}/{x}/{y}.png".
func NewWriter(filePattern string) (*Writer, error) {
	p, err := parsePattern(filepath.Clean(filePattern))
	if err != nil {
		return nil, err
	}
	return &Writer{pattern: p}, nil
}

// WriteTile stores tileData. Empty data removes any existing file.
func (w *Writer) WriteTile(tileID tile.ID, tileData []byte) error {
	filePath := w.pattern.format(tileID)
	if len(tileData) == 0 {
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	dirPath := filepath.Dir(filePath)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dirPath, ".tile-*")
	if err != nil {
		return err
	}
	if _, err := f.Write(tileData); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	if err := os.Chmod(f.Name(), 0644); err != nil {
		os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), filePath)
}

func (w *Writer) Finalize() error {
	return nil
}
