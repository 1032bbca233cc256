package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/eak1mov/go-seedtiles/mb"
	"github.com/eak1mov/go-seedtiles/pm"
	"github.com/eak1mov/go-seedtiles/pm/format"
	"github.com/eak1mov/go-seedtiles/raster"
	"github.com/eak1mov/go-seedtiles/tile"
	"github.com/eak1mov/go-seedtiles/xyz"
)

func deduceFormat(format, filePath string) string {
	if format == "" && strings.HasSuffix(filePath, ".mbtiles") {
		return "mbtiles"
	}
	if format == "" && strings.HasSuffix(filePath, ".pmtiles") {
		return "pmtiles"
	}
	if format == "" {
		return "xyz"
	}
	return format
}

// archiveInfo describes the tiles going into an archive.
type archiveInfo struct {
	Name        string
	Description string
	Image       raster.Format
	MinZoom     int
	MaxZoom     int
	Extra       map[string]string
}

func (a archiveInfo) mbMetadata() map[string]string {
	m := map[string]string{
		"name":        a.Name,
		"description": a.Description,
		"format":      string(a.Image),
		"type":        "baselayer",
		"minzoom":     fmt.Sprint(a.MinZoom),
		"maxzoom":     fmt.Sprint(a.MaxZoom),
	}
	for k, v := range a.Extra {
		m[k] = v
	}
	return m
}

func pmTileType(f raster.Format) format.TileType {
	if f == raster.FormatPNG {
		return format.TileTypePng
	}
	return format.TileTypeUnknown
}

func openWriter(kind, path string, info archiveInfo, metadata []byte, logger *slog.Logger) (tile.Writer, error) {
	switch kind {
	case "mbtiles":
		return mb.NewWriter(path, mb.WithMetadata(info.mbMetadata()), mb.WithLogger(logger))
	case "pmtiles":
		return pm.NewWriter(path,
			pm.WithMetadata(metadata),
			pm.WithTileType(pmTileType(info.Image)),
			pm.WithLogger(logger),
		)
	case "xyz":
		return xyz.NewWriter(path)
	}
	return nil, fmt.Errorf("invalid output format: %q", kind)
}

func openReader(kind, path string) (tile.Visitor, error) {
	switch kind {
	case "mbtiles":
		return mb.NewReader(path)
	case "pmtiles":
		return pm.Open(path)
	case "xyz":
		return xyz.NewReader(path)
	}
	return nil, fmt.Errorf("invalid input format: %q", kind)
}
