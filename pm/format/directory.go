package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sort"
)

// Entry points at a run of tiles sharing the same data, or, with a zero
// RunLength, at a leaf directory.
type Entry struct {
	TileCode  uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
}

func (e Entry) Leaf() bool {
	return e.RunLength == 0
}

// Directory is a list of entries sorted by tile code.
type Directory []Entry

func (d Directory) MarshalBinary() ([]byte, error) {
	buf := binary.AppendUvarint(nil, uint64(len(d)))

	var last uint64
	for _, e := range d {
		buf = binary.AppendUvarint(buf, e.TileCode-last)
		last = e.TileCode
	}
	for _, e := range d {
		buf = binary.AppendUvarint(buf, uint64(e.RunLength))
	}
	for _, e := range d {
		buf = binary.AppendUvarint(buf, uint64(e.Length))
	}
	for i, e := range d {
		// Zero means "right after the previous entry".
		if i > 0 && e.Offset == d[i-1].Offset+uint64(d[i-1].Length) {
			buf = binary.AppendUvarint(buf, 0)
		} else {
			buf = binary.AppendUvarint(buf, e.Offset+1)
		}
	}
	return buf, nil
}

func ParseDirectory(data []byte) (Directory, error) {
	r := bytes.NewReader(data)
	var err error
	next := func() uint64 {
		if err != nil {
			return 0
		}
		var v uint64
		v, err = binary.ReadUvarint(r)
		return v
	}

	n := next()
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	// Each entry needs at least one byte.
	if n > uint64(len(data)) {
		return nil, fmt.Errorf("directory: %d entries in %d bytes", n, len(data))
	}
	d := make(Directory, n)
	var code uint64
	for i := range d {
		code += next()
		d[i].TileCode = code
	}
	for i := range d {
		d[i].RunLength = uint32(next())
	}
	for i := range d {
		d[i].Length = uint32(next())
	}
	for i := range d {
		v := next()
		if v == 0 && i > 0 {
			d[i].Offset = d[i-1].Offset + uint64(d[i-1].Length)
		} else {
			d[i].Offset = v - 1
		}
	}
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	return d, nil
}

// Compact merges consecutive tiles pointing at the same data into runs.
// The directory must be sorted.
func (d Directory) Compact() Directory {
	if len(d) == 0 {
		return d
	}
	w := 0
	for _, e := range d[1:] {
		last := &d[w]
		if e.Offset == last.Offset && e.TileCode == last.TileCode+uint64(last.RunLength) {
			last.RunLength++
			continue
		}
		w++
		d[w] = e
	}
	return d[:w+1]
}

// Find returns the entry covering code: either a tile run or the leaf
// directory that may contain it.
func (d Directory) Find(code uint64) (Entry, bool) {
	i := sort.Search(len(d), func(i int) bool { return d[i].TileCode > code })
	if i == 0 {
		return Entry{}, false
	}
	e := d[i-1]
	if e.Leaf() || code < e.TileCode+uint64(e.RunLength) {
		return e, true
	}
	return Entry{}, false
}

// Build serializes the directory, splitting it into leaves until the root
// fits into RootDirMaxLength.
func Build(d Directory, c Compression) (root, leaves []byte, err error) {
	root, err = encode(d, c)
	if err != nil || len(root) <= RootDirMaxLength {
		return root, nil, err
	}

	perEntry := float64(len(root)) / float64(len(d))
	maxRootEntries := RootDirMaxLength * 0.9 / perEntry
	leafSize := max(float64(len(d))/maxRootEntries, 4096, math.Sqrt(float64(len(d))))

	for len(root) > RootDirMaxLength {
		var index Directory
		leaves = leaves[:0]
		for chunk := range slices.Chunk(d, int(leafSize)) {
			leaf, err := encode(chunk, c)
			if err != nil {
				return nil, nil, err
			}
			index = append(index, Entry{
				TileCode: chunk[0].TileCode,
				Offset:   uint64(len(leaves)),
				Length:   uint32(len(leaf)),
			})
			leaves = append(leaves, leaf...)
		}
		if root, err = encode(index, c); err != nil {
			return nil, nil, err
		}
		leafSize *= 1.1
	}
	return root, leaves, nil
}

func encode(d Directory, c Compression) ([]byte, error) {
	data, err := d.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return Compress(data, c)
}
