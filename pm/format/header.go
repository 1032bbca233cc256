// Package format implements the binary layout of PMTiles v3 archives:
// header, tile codes, directories and their compression.
package format

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

type Compression uint8

const (
	CompressionUnknown Compression = iota
	CompressionNone
	CompressionGzip
	CompressionBrotli
	CompressionZstd
)

var compressionNames = [...]string{"unknown", "none", "gzip", "brotli", "zstd"}

func (c Compression) String() string {
	if int(c) < len(compressionNames) {
		return compressionNames[c]
	}
	return fmt.Sprintf("compression(%d)", uint8(c))
}

type TileType uint8

const (
	TileTypeUnknown TileType = iota
	TileTypeMvt
	TileTypePng
	TileTypeJpeg
	TileTypeWebp
	TileTypeAvif
)

var tileTypeNames = [...]string{"unknown", "mvt", "png", "jpeg", "webp", "avif"}

func (t TileType) String() string {
	if int(t) < len(tileTypeNames) {
		return tileTypeNames[t]
	}
	return fmt.Sprintf("tiletype(%d)", uint8(t))
}

// Header is the fixed-size archive header, in on-disk field order.
type Header struct {
	HeaderMagic         uint64
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirectoryOffset uint64
	LeafDirectoryLength uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	Clustered           bool
	InternalCompression Compression
	TileCompression     Compression
	TileType            TileType
	MinZoom             uint8
	MaxZoom             uint8
	MinLonE7            int32
	MinLatE7            int32
	MaxLonE7            int32
	MaxLatE7            int32
	CenterZoom          uint8
	CenterLonE7         int32
	CenterLatE7         int32
}

const (
	magic     uint64 = 0x73656C69544D50 // "PMTiles"
	magicMask uint64 = 1<<56 - 1
	MagicV3   uint64 = magic | (0x03 << 56)

	HeaderLength = 127

	// The root directory must end within the first 16 KiB of the archive.
	RootDirOffset    = HeaderLength
	RootDirMaxLength = 16<<10 - HeaderLength
	// TileDataStart is where writers place the metadata and tile data.
	TileDataStart = 16 << 10
)

var (
	ErrInvalidHeader  = errors.New("seedtiles: invalid archive header")
	ErrInvalidVersion = errors.New("seedtiles: unsupported archive version")
)

func (h *Header) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderLength))
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func ParseHeader(data []byte) (*Header, error) {
	var h Header
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if h.HeaderMagic&magicMask != magic {
		return nil, ErrInvalidHeader
	}
	if h.HeaderMagic != MagicV3 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, h.HeaderMagic>>56)
	}
	return &h, nil
}
