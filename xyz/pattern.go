// Package xyz stores tiles as individual files named by a path pattern such
// as "tiles/{z}/{x}/{y}.png". The {-y} placeholder selects the TMS row
// numbering used by some static map hosts.
package xyz

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/eak1mov/go-seedtiles/tile"
)

var ErrInvalidPattern = errors.New("seedtiles: invalid file pattern")

type pattern struct {
	template string
	tms      bool
	re       *regexp.Regexp
}

func parsePattern(template string) (*pattern, error) {
	p := &pattern{template: template, tms: strings.Contains(template, "{-y}")}
	row := "{y}"
	if p.tms {
		row = "{-y}"
	}
	for _, ph := range []string{"{x}", row, "{z}"} {
		if strings.Count(template, ph) != 1 {
			return nil, fmt.Errorf("%w: placeholder %v must appear once", ErrInvalidPattern, ph)
		}
	}

	expr := regexp.QuoteMeta(template)
	expr = strings.Replace(expr, regexp.QuoteMeta("{x}"), `(?P<x>\d+)`, 1)
	expr = strings.Replace(expr, regexp.QuoteMeta(row), `(?P<y>\d+)`, 1)
	expr = strings.Replace(expr, regexp.QuoteMeta("{z}"), `(?P<z>\d+)`, 1)
	re, err := regexp.Compile("^" + expr + "$")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPattern, err)
	}
	p.re = re
	return p, nil
}

func (p *pattern) format(id tile.ID) string {
	y, row := id.Y, "{y}"
	if p.tms {
		y, row = (1<<id.Z)-1-id.Y, "{-y}"
	}
	r := strings.NewReplacer(
		"{x}", strconv.FormatUint(uint64(id.X), 10),
		row, strconv.FormatUint(uint64(y), 10),
		"{z}", strconv.FormatUint(uint64(id.Z), 10),
	)
	return r.Replace(p.template)
}

func (p *pattern) parse(path string) (tile.ID, bool) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return tile.ID{}, false
	}
	x, errX := strconv.ParseUint(m[p.re.SubexpIndex("x")], 10, 32)
	y, errY := strconv.ParseUint(m[p.re.SubexpIndex("y")], 10, 32)
	z, errZ := strconv.ParseUint(m[p.re.SubexpIndex("z")], 10, 32)
	if errX != nil || errY != nil || errZ != nil || z >= 32 {
		return tile.ID{}, false
	}
	id := tile.ID{X: uint32(x), Y: uint32(y), Z: uint32(z)}
	if p.tms {
		if id.Y >= 1<<id.Z {
			return tile.ID{}, false
		}
		id.Y = (1<<id.Z) - 1 - id.Y
	}
	return id, id.Valid()
}

// root is the longest directory prefix shared by every tile path.
func (p *pattern) root() string {
	i := strings.IndexByte(p.template, '{')
	if j := strings.LastIndexAny(p.template[:i], `/\`); j >= 0 {
		return p.template[:j+1]
	}
	return "."
}
