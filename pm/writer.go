// Package pm reads and writes tiles in the PMTiles v3 single-file format.
package pm

import (
	"bufio"
	"cmp"
	"crypto/md5"
	"errors"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/eak1mov/go-seedtiles/pm/format"
	"github.com/eak1mov/go-seedtiles/tile"
)

var ErrFinalized = errors.New("seedtiles: archive already finalized")

type writerConfig struct {
	Logger              *slog.Logger
	Metadata            []byte
	TileType            format.TileType
	InternalCompression format.Compression
}

type WriterOption func(*writerConfig)

func WithLogger(logger *slog.Logger) WriterOption {
	return func(c *writerConfig) { c.Logger = logger }
}

// WithMetadata sets the JSON metadata document of the archive.
func WithMetadata(metadata []byte) WriterOption {
	return func(c *writerConfig) { c.Metadata = metadata }
}

func WithTileType(t format.TileType) WriterOption {
	return func(c *writerConfig) { c.TileType = t }
}

// WithInternalCompression sets the compression of directories and metadata.
// The default is gzip.
func WithInternalCompression(c format.Compression) WriterOption {
	return func(wc *writerConfig) { wc.InternalCompression = c }
}

// Writer implements tile.Writer for PMTiles archives. Identical tiles are
// stored once.
type Writer struct {
	logger *slog.Logger
	file   *os.File
	buf    *bufio.Writer
	header format.Header

	offset    uint64
	entries   format.Directory
	contents  map[[md5.Size]byte]int // digest -> index of the first entry
	minZoom   uint32
	maxZoom   uint32
	finalized bool
}

func NewWriter(filePath string, opts ...WriterOption) (w *Writer, err error) {
	c := writerConfig{
		Logger:              slog.New(slog.DiscardHandler),
		InternalCompression: format.CompressionGzip,
	}
	for _, opt := range opts {
		opt(&c)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			file.Close()
		}
	}()

	header := format.Header{
		HeaderMagic:         format.MagicV3,
		Clustered:           true,
		InternalCompression: c.InternalCompression,
		TileCompression:     format.CompressionNone,
		TileType:            c.TileType,
	}
	offset := uint64(format.TileDataStart)
	if _, err = file.Seek(int64(offset), io.SeekStart); err != nil {
		return nil, err
	}
	if c.Metadata != nil {
		var packed []byte
		if packed, err = format.Compress(c.Metadata, c.InternalCompression); err != nil {
			return nil, err
		}
		if _, err = file.Write(packed); err != nil {
			return nil, err
		}
		header.MetadataOffset = offset
		header.MetadataLength = uint64(len(packed))
		offset += header.MetadataLength
	}
	header.TileDataOffset = offset

	return &Writer{
		logger:   c.Logger,
		file:     file,
		buf:      bufio.NewWriter(file),
		header:   header,
		contents: make(map[[md5.Size]byte]int),
		minZoom:  ^uint32(0),
	}, nil
}

// WriteTile stores the tile. Empty tiles are skipped.
func (w *Writer) WriteTile(tileID tile.ID, tileData []byte) error {
	if w.finalized {
		return ErrFinalized
	}
	if len(tileData) == 0 {
		return nil
	}
	w.minZoom = min(w.minZoom, tileID.Z)
	w.maxZoom = max(w.maxZoom, tileID.Z)
	w.header.AddressedTilesCount++

	entry := format.Entry{TileCode: format.TileCode(tileID), RunLength: 1}
	digest := md5.Sum(tileData)
	if i, ok := w.contents[digest]; ok {
		entry.Offset, entry.Length = w.entries[i].Offset, w.entries[i].Length
		w.entries = append(w.entries, entry)
		return nil
	}

	if _, err := w.buf.Write(tileData); err != nil {
		return err
	}
	entry.Offset, entry.Length = w.offset, uint32(len(tileData))
	w.offset += uint64(len(tileData))
	w.contents[digest] = len(w.entries)
	w.entries = append(w.entries, entry)
	return nil
}

// Finalize writes the directories and the header and closes the file.
func (w *Writer) Finalize() error {
	if w.finalized {
		return ErrFinalized
	}
	w.finalized = true

	if err := w.buf.Flush(); err != nil {
		return err
	}
	h := &w.header
	h.TileDataLength = w.offset
	h.TileContentsCount = uint64(len(w.contents))
	if len(w.entries) > 0 {
		h.MinZoom, h.MaxZoom = uint8(w.minZoom), uint8(w.maxZoom)
	}
	h.CenterZoom = h.MinZoom
	h.MinLonE7, h.MinLatE7 = -180_0000000, -85_0000000
	h.MaxLonE7, h.MaxLatE7 = 180_0000000, 85_0000000

	slices.SortStableFunc(w.entries, func(a, b format.Entry) int {
		return cmp.Compare(a.TileCode, b.TileCode)
	})
	w.entries = w.entries.Compact()
	h.TileEntriesCount = uint64(len(w.entries))

	root, leaves, err := format.Build(w.entries, h.InternalCompression)
	if err != nil {
		return err
	}
	w.logger.Debug("seedtiles: archive directories built",
		"entries", len(w.entries), "root", len(root), "leaves", len(leaves))

	h.LeafDirectoryOffset = h.TileDataOffset + h.TileDataLength
	h.LeafDirectoryLength = uint64(len(leaves))
	if _, err := w.file.WriteAt(leaves, int64(h.LeafDirectoryOffset)); err != nil {
		return err
	}
	h.RootOffset = format.RootDirOffset
	h.RootLength = uint64(len(root))
	if _, err := w.file.WriteAt(root, format.RootDirOffset); err != nil {
		return err
	}
	headerData, err := h.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.file.WriteAt(headerData, 0); err != nil {
		return err
	}

	err = w.file.Close()
	w.file = nil
	w.logger.Debug("seedtiles: archive finalized",
		"tiles", h.AddressedTilesCount, "contents", h.TileContentsCount)
	return err
}

// Close releases the file of an unfinalized writer.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
