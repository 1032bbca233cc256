package mb

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eak1mov/go-seedtiles/tile"
)

// Writer implements tile.Writer for MBTiles. All tiles are written in one
// transaction that Finalize commits; rewriting a tile replaces it.
type Writer struct {
	db     *sql.DB
	tx     *sql.Tx
	stmt   *sql.Stmt
	logger *slog.Logger
	count  int
}

type writerConfig struct {
	Metadata map[string]string
	Logger   *slog.Logger
}

type WriterOption func(*writerConfig)

func WithMetadata(metadata map[string]string) WriterOption {
	return func(c *writerConfig) { c.Metadata = metadata }
}

func WithLogger(logger *slog.Logger) WriterOption {
	return func(c *writerConfig) { c.Logger = logger }
}

const schema = `
	CREATE TABLE IF NOT EXISTS metadata (name TEXT PRIMARY KEY, value TEXT);
	CREATE TABLE IF NOT EXISTS tiles (
		zoom_level INTEGER,
		tile_column INTEGER,
		tile_row INTEGER,
		tile_data BLOB
	);
	CREATE UNIQUE INDEX IF NOT EXISTS tile_index ON tiles (zoom_level, tile_column, tile_row);
`

// NewWriter opens or creates the MBTiles file at filePath.
func NewWriter(filePath string, opts ...WriterOption) (w *Writer, err error) {
	config := writerConfig{
		Logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&config)
	}

	db, err := sql.Open("sqlite3", filePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	if _, err = db.Exec(schema); err != nil {
		return nil, err
	}
	for k, v := range config.Metadata {
		if _, err = db.Exec("INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?)", k, v); err != nil {
			return nil, err
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	stmt, err := tx.Prepare("INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	return &Writer{db: db, tx: tx, stmt: stmt, logger: config.Logger}, nil
}

// Close discards uncommitted tiles and closes the database.
func (w *Writer) Close() error {
	var errs []error
	if w.tx != nil {
		errs = append(errs, w.stmt.Close(), w.tx.Rollback())
		w.tx = nil
	}
	return errors.Join(append(errs, w.db.Close())...)
}

func (w *Writer) WriteTile(tileID tile.ID, tileData []byte) error {
	if w.tx == nil {
		return errors.New("seedtiles: mbtiles writer finalized")
	}
	if !tileID.Valid() {
		return fmt.Errorf("%w: %d/%d/%d", tile.ErrInvalidCoord, tileID.Z, tileID.X, tileID.Y)
	}
	if _, err := w.stmt.Exec(tileID.Z, tileID.X, tmsRow(tileID.Z, tileID.Y), tileData); err != nil {
		return err
	}
	w.count++
	return nil
}

func (w *Writer) Finalize() error {
	if w.tx == nil {
		return errors.New("seedtiles: mbtiles writer finalized")
	}
	err := errors.Join(w.stmt.Close(), w.tx.Commit())
	w.tx = nil
	w.logger.Debug("seedtiles: mbtiles committed", "tiles", w.count)
	return err
}
