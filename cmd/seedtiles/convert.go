package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/subcommands"
	"github.com/schollz/progressbar/v3"

	"github.com/eak1mov/go-seedtiles/mb"
	"github.com/eak1mov/go-seedtiles/pm"
	"github.com/eak1mov/go-seedtiles/raster"
	"github.com/eak1mov/go-seedtiles/tile"
)

type convertCmd struct {
	inputFormat  string
	inputPath    string
	outputFormat string
	outputPath   string
}

func (c *convertCmd) Name() string     { return "convert" }
func (c *convertCmd) Synopsis() string { return "convert between tile storage formats" }
func (c *convertCmd) Usage() string {
	return "seedtiles convert -i <path> -o <path> [-if <format> | -of <format>]\n"
}
func (c *convertCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.inputPath, "i", "", "Input path")
	f.StringVar(&c.inputFormat, "if", "", "Input format (mbtiles, pmtiles, xyz)")
	f.StringVar(&c.outputPath, "o", "", "Output path")
	f.StringVar(&c.outputFormat, "of", "", "Output format (mbtiles, pmtiles, xyz)")
}

func (c *convertCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	logger := newLogger()
	if err := c.run(logger); err != nil {
		logger.Error("seedtiles: convert failed", "error", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// readMetadata returns the archive metadata as flat strings. PMTiles
// metadata values that are not strings keep their JSON text.
func readMetadata(reader tile.Visitor) (map[string]string, error) {
	switch r := reader.(type) {
	case *mb.Reader:
		return r.ReadMetadata()
	case *pm.Reader:
		data, err := r.ReadMetadata()
		if err != nil || len(data) == 0 {
			return nil, err
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("archive metadata: %w", err)
		}
		m := make(map[string]string, len(raw))
		for k, v := range raw {
			var s string
			if json.Unmarshal(v, &s) == nil {
				m[k] = s
			} else {
				m[k] = string(v)
			}
		}
		return m, nil
	}
	return nil, nil
}

func (c *convertCmd) run(logger *slog.Logger) error {
	inputFormat := deduceFormat(c.inputFormat, c.inputPath)
	outputFormat := deduceFormat(c.outputFormat, c.outputPath)

	reader, err := openReader(inputFormat, c.inputPath)
	if err != nil {
		return err
	}
	if closer, ok := reader.(io.Closer); ok {
		defer closer.Close()
	}

	metadata, err := readMetadata(reader)
	if err != nil {
		return err
	}
	info := archiveInfo{Name: "seedtiles", Image: raster.FormatPNG, Extra: metadata}
	if f, err := raster.ParseFormat(metadata["format"]); err == nil {
		info.Image = f
	}
	metadataJSON, err := json.Marshal(info.mbMetadata())
	if err != nil {
		return err
	}

	writer, err := openWriter(outputFormat, c.outputPath, info, metadataJSON, logger)
	if err != nil {
		return err
	}
	if closer, ok := writer.(io.Closer); ok {
		defer closer.Close()
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionShowIts(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
	)
	err = reader.VisitTiles(func(tileID tile.ID, tileData []byte) error {
		err := writer.WriteTile(tileID, tileData)
		bar.Add(1)
		return err
	})
	bar.Finish()
	if err != nil {
		return err
	}
	return writer.Finalize()
}
