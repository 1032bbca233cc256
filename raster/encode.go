package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
)

var ErrUnknownFormat = errors.New("seedtiles: unknown image format")

// Format is the encoding of tile buffers.
type Format string

const (
	FormatPNG Format = "png"
	FormatBMP Format = "bmp"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatPNG, FormatBMP:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

func (f Format) ContentType() string {
	if f == FormatBMP {
		return "image/bmp"
	}
	return "image/png"
}

func (f Format) Encode(w io.Writer, img image.Image) error {
	switch f {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestSpeed}
		return enc.Encode(w, img)
	case FormatBMP:
		return bmp.Encode(w, img)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
}

func (f Format) Bytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a PNG or BMP tile buffer.
func Decode(data []byte) (image.Image, Format, error) {
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	f, err := ParseFormat(name)
	if err != nil {
		return nil, "", err
	}
	return img, f, nil
}
