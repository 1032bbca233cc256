// Package backend defines generation backends: isolated biome and surface
// generators that the pool drives on behalf of the scheduler.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/eak1mov/go-seedtiles/biome"
	"github.com/eak1mov/go-seedtiles/relief"
	"github.com/eak1mov/go-seedtiles/tile"
)

var (
	// ErrRuntime reports a fatal backend fault. A backend that returned it
	// must not be reused.
	ErrRuntime = errors.New("seedtiles: backend runtime failure")

	ErrInvalidRegion = errors.New("seedtiles: invalid region")
	ErrNotConfigured = errors.New("seedtiles: backend is not configured")
	ErrClosed        = errors.New("seedtiles: backend is closed")
	ErrUnknownKind   = errors.New("seedtiles: unknown backend kind")

	// ErrResourceMismatch rejects a resource meant for another
	// configuration.
	ErrResourceMismatch = errors.New("seedtiles: resource does not match configuration")
)

// Backend generates classifications and surface heights for world regions.
// Calls on one Backend are never concurrent.
type Backend interface {
	// Configure applies generation parameters; later calls use them.
	Configure(ctx context.Context, params Params) error

	// Classify samples the region's biomes at the given Y level on the
	// region's sample stride.
	Classify(ctx context.Context, region tile.Region, y int) (*biome.Grid, error)

	// SampleElevation returns surface heights on the area's lattice.
	SampleElevation(ctx context.Context, area relief.Area) (*relief.Grid, error)

	Close() error
}

// ResourceConsumer is implemented by backends that use a shared lookup
// resource. The key depends on the configured parameters.
type ResourceConsumer interface {
	ResourceKey() string
	LoadResource(key string, data []byte) error
}

// Dimension selects the world being mapped.
type Dimension int

const (
	Overworld Dimension = 0
	Nether    Dimension = -1
	End       Dimension = 1
)

var dimensionNames = map[Dimension]string{
	Overworld: "minecraft:overworld",
	Nether:    "minecraft:the_nether",
	End:       "minecraft:the_end",
}

func (d Dimension) String() string {
	if name, ok := dimensionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dimension(%d)", int(d))
}

func ParseDimension(s string) (Dimension, error) {
	for d, name := range dimensionNames {
		if s == name || s == strings.TrimPrefix(name, "minecraft:") {
			return d, nil
		}
	}
	return 0, fmt.Errorf("seedtiles: unknown dimension %q", s)
}

// Version is a game version. Missing parts of a parsed version default to 1.21.0.
type Version struct {
	Major int
	Minor int
	Patch int
}

func ParseVersion(s string) (Version, error) {
	v := Version{Major: 1, Minor: 21, Patch: 0}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '.' })
	if len(parts) > 3 {
		return Version{}, fmt.Errorf("seedtiles: invalid version %q", s)
	}
	fields := []*int{&v.Major, &v.Minor, &v.Patch}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("seedtiles: invalid version %q", s)
		}
		if n != 0 {
			*fields[i] = n
		}
	}
	return v, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d_%d_%d", v.Major, v.Minor, v.Patch)
}

func (v Version) AtLeast(major, minor, patch int) bool {
	if v.Major != major {
		return v.Major > major
	}
	if v.Minor != minor {
		return v.Minor > minor
	}
	return v.Patch >= patch
}

// Params are the generation parameters shared by every backend in a pool.
type Params struct {
	Seed        int64
	Version     Version
	Dimension   Dimension
	LargeBiomes bool
}

func DefaultParams() Params {
	return Params{Version: Version{Major: 1, Minor: 21, Patch: 4}, Dimension: Overworld}
}

// Update is a partial change of Params. Nil fields are left unchanged.
type Update struct {
	Seed        *int64
	Version     *Version
	Dimension   *Dimension
	LargeBiomes *bool
}

func (u Update) Apply(p Params) Params {
	if u.Seed != nil {
		p.Seed = *u.Seed
	}
	if u.Version != nil {
		p.Version = *u.Version
	}
	if u.Dimension != nil {
		p.Dimension = *u.Dimension
	}
	if u.LargeBiomes != nil {
		p.LargeBiomes = *u.LargeBiomes
	}
	return p
}

// Kind names a backend variant.
type Kind string

const (
	KindNoise   Kind = "noise"
	KindDensity Kind = "density"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindNoise, KindDensity:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// InvertRelief reports whether the variant's surface is lit from the
// opposite side.
func (k Kind) InvertRelief() bool {
	return k == KindDensity
}

// New creates an unconfigured backend of the given kind.
func New(kind Kind) (Backend, error) {
	switch kind {
	case KindNoise:
		return NewNoiseGenerator(), nil
	case KindDensity:
		return NewDensityGenerator(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
}
