package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/google/subcommands"

	"github.com/eak1mov/go-seedtiles/mb"
	"github.com/eak1mov/go-seedtiles/pm"
	"github.com/eak1mov/go-seedtiles/tile"
)

type inspectCmd struct {
	inputFormat string
	inputPath   string
}

func (c *inspectCmd) Name() string     { return "inspect" }
func (c *inspectCmd) Synopsis() string { return "print a summary of a tile archive" }
func (c *inspectCmd) Usage() string {
	return "seedtiles inspect -i <path> [-if <format>]\n"
}
func (c *inspectCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "i", "", "Input path; a {z}/{x}/{y} pattern for xyz")
	f.StringVar(&c.inputFormat, "if", "", "Input format (mbtiles, pmtiles, xyz)")
}

type zoomStats struct {
	tiles uint64
	bytes uint64
}

func (c *inspectCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	logger := newLogger()
	if err := c.run(os.Stdout); err != nil {
		logger.Error("seedtiles: inspect failed", "error", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *inspectCmd) run(out io.Writer) error {
	kind := deduceFormat(c.inputFormat, c.inputPath)
	reader, err := openReader(kind, c.inputPath)
	if err != nil {
		return err
	}
	if closer, ok := reader.(io.Closer); ok {
		defer closer.Close()
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "path\t%s\n", c.inputPath)
	fmt.Fprintf(w, "format\t%s\n", kind)

	stats := make(map[uint32]*zoomStats)
	add := func(z uint32, size uint64) {
		s, ok := stats[z]
		if !ok {
			s = &zoomStats{}
			stats[z] = s
		}
		s.tiles++
		s.bytes += size
	}

	visitTiles := true
	switch r := reader.(type) {
	case *pm.Reader:
		h := r.Header()
		fmt.Fprintf(w, "tile type\t%s\n", h.TileType)
		fmt.Fprintf(w, "compression\tinternal %s, tiles %s\n", h.InternalCompression, h.TileCompression)
		fmt.Fprintf(w, "zoom\t%d-%d\n", h.MinZoom, h.MaxZoom)
		fmt.Fprintf(w, "tiles\t%s addressed, %s entries, %s contents\n",
			humanize.Comma(int64(h.AddressedTilesCount)),
			humanize.Comma(int64(h.TileEntriesCount)),
			humanize.Comma(int64(h.TileContentsCount)))
		fmt.Fprintf(w, "directories\troot %s, leaves %s\n",
			humanize.Bytes(h.RootLength), humanize.Bytes(h.LeafDirectoryLength))
		fmt.Fprintf(w, "tile data\t%s\n", humanize.Bytes(h.TileDataLength))
		metadata, err := r.ReadMetadata()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "metadata\t%s\n", metadata)

		// Locations carry sizes, so tile data is not read.
		visitTiles = false
		err = r.VisitLocations(func(id tile.ID, loc tile.Location) error {
			add(id.Z, loc.Length)
			return nil
		})
		if err != nil {
			return err
		}
	case *mb.Reader:
		metadata, err := r.ReadMetadata()
		if err != nil {
			return err
		}
		for _, k := range slices.Sorted(maps.Keys(metadata)) {
			fmt.Fprintf(w, "metadata.%s\t%s\n", k, metadata[k])
		}
		counts, err := r.ZoomCounts()
		if err != nil {
			return err
		}
		if zooms := slices.Sorted(maps.Keys(counts)); len(zooms) > 0 {
			fmt.Fprintf(w, "zoom\t%d-%d\n", zooms[0], zooms[len(zooms)-1])
		}
	}

	if visitTiles {
		err := reader.VisitTiles(func(id tile.ID, data []byte) error {
			add(id.Z, uint64(len(data)))
			return nil
		})
		if err != nil {
			return err
		}
	}

	var total zoomStats
	for _, z := range slices.Sorted(maps.Keys(stats)) {
		s := stats[z]
		fmt.Fprintf(w, "z%d\t%s tiles, %s\n", z, humanize.Comma(int64(s.tiles)), humanize.Bytes(s.bytes))
		total.tiles += s.tiles
		total.bytes += s.bytes
	}
	fmt.Fprintf(w, "total\t%s tiles, %s\n", humanize.Comma(int64(total.tiles)), humanize.Bytes(total.bytes))
	return w.Flush()
}
