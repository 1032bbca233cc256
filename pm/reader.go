package pm

import (
	"fmt"
	"os"
	"sync"

	"github.com/eak1mov/go-seedtiles/pm/format"
	"github.com/eak1mov/go-seedtiles/tile"
)

// FileAccessFunc reads length bytes at offset.
type FileAccessFunc = func(offset, length uint64) ([]byte, error)

// Reader implements tile.Reader, tile.Visitor and tile.LocationVisitor for
// PMTiles archives. Parsed directories are cached; a Reader is safe for
// concurrent use.
type Reader struct {
	access FileAccessFunc
	closer func() error
	header *format.Header

	mu   sync.Mutex
	dirs map[uint64]format.Directory // absolute offset -> directory
}

// Open opens a PMTiles file.
func Open(filePath string) (*Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	access := func(offset, length uint64) ([]byte, error) {
		buf := make([]byte, length)
		if _, err := file.ReadAt(buf, int64(offset)); err != nil {
			return nil, err
		}
		return buf, nil
	}
	r, err := NewReader(access)
	if err != nil {
		file.Close()
		return nil, err
	}
	r.closer = file.Close
	return r, nil
}

func NewReader(access FileAccessFunc) (*Reader, error) {
	data, err := access(0, format.HeaderLength)
	if err != nil {
		return nil, err
	}
	header, err := format.ParseHeader(data)
	if err != nil {
		return nil, err
	}
	return &Reader{
		access: access,
		closer: func() error { return nil },
		header: header,
		dirs:   make(map[uint64]format.Directory),
	}, nil
}

func (r *Reader) Close() error {
	return r.closer()
}

func (r *Reader) Header() format.Header {
	return *r.header
}

func (r *Reader) ReadMetadata() ([]byte, error) {
	if r.header.MetadataLength == 0 {
		return nil, nil
	}
	data, err := r.access(r.header.MetadataOffset, r.header.MetadataLength)
	if err != nil {
		return nil, err
	}
	return format.Decompress(data, r.header.InternalCompression)
}

func (r *Reader) directory(offset, length uint64) (format.Directory, error) {
	r.mu.Lock()
	d, ok := r.dirs[offset]
	r.mu.Unlock()
	if ok {
		return d, nil
	}

	data, err := r.access(offset, length)
	if err != nil {
		return nil, err
	}
	data, err = format.Decompress(data, r.header.InternalCompression)
	if err != nil {
		return nil, err
	}
	if d, err = format.ParseDirectory(data); err != nil {
		return nil, fmt.Errorf("directory at %d: %w", offset, err)
	}

	r.mu.Lock()
	r.dirs[offset] = d
	r.mu.Unlock()
	return d, nil
}

// ReadLocation returns where the tile data lives in the file.
func (r *Reader) ReadLocation(tileID tile.ID) (tile.Location, bool, error) {
	code := format.TileCode(tileID)
	offset, length := r.header.RootOffset, r.header.RootLength
	for range 4 {
		d, err := r.directory(offset, length)
		if err != nil {
			return tile.Location{}, false, err
		}
		e, ok := d.Find(code)
		if !ok {
			return tile.Location{}, false, nil
		}
		if !e.Leaf() {
			return tile.Location{Offset: r.header.TileDataOffset + e.Offset, Length: uint64(e.Length)}, true, nil
		}
		offset, length = r.header.LeafDirectoryOffset+e.Offset, uint64(e.Length)
	}
	return tile.Location{}, false, fmt.Errorf("%w: directories nested too deep", format.ErrInvalidHeader)
}

// ReadTile returns the tile data, or an empty slice when the tile is absent.
func (r *Reader) ReadTile(tileID tile.ID) ([]byte, error) {
	loc, ok, err := r.ReadLocation(tileID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []byte{}, nil
	}
	return r.access(loc.Offset, loc.Length)
}

func (r *Reader) VisitLocations(visitor func(tile.ID, tile.Location) error) error {
	var walk func(offset, length uint64, depth int) error
	walk = func(offset, length uint64, depth int) error {
		if depth > 3 {
			return fmt.Errorf("%w: directories nested too deep", format.ErrInvalidHeader)
		}
		d, err := r.directory(offset, length)
		if err != nil {
			return err
		}
		for _, e := range d {
			if e.Leaf() {
				if err := walk(r.header.LeafDirectoryOffset+e.Offset, uint64(e.Length), depth+1); err != nil {
					return err
				}
				continue
			}
			loc := tile.Location{Offset: r.header.TileDataOffset + e.Offset, Length: uint64(e.Length)}
			for i := range uint64(e.RunLength) {
				if err := visitor(format.TileID(e.TileCode+i), loc); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(r.header.RootOffset, r.header.RootLength, 0)
}

func (r *Reader) VisitTiles(visitor func(tile.ID, []byte) error) error {
	return r.VisitLocations(func(tileID tile.ID, loc tile.Location) error {
		data, err := r.access(loc.Offset, loc.Length)
		if err != nil {
			return err
		}
		return visitor(tileID, data)
	})
}
