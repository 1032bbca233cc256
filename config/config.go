// Package config reads the YAML configuration shared by the seedtiles
// commands and turns it into component settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eak1mov/go-seedtiles/backend"
	"github.com/eak1mov/go-seedtiles/pool"
	"github.com/eak1mov/go-seedtiles/raster"
)

var ErrInvalid = errors.New("seedtiles: invalid configuration")

// LargeBiomesPreset is the world preset that scales biomes up four times.
const LargeBiomesPreset = "minecraft:large_biomes"

type Config struct {
	Generation GenerationConfig  `yaml:"generation"`
	Backend    BackendConfig     `yaml:"backend"`
	Pool       PoolConfig        `yaml:"pool"`
	Map        MapConfig         `yaml:"map"`
	Palette    map[string]string `yaml:"palette"`
	Resources  ResourcesConfig   `yaml:"resources"`
	Server     ServerConfig      `yaml:"server"`
}

type GenerationConfig struct {
	// Seed is a decimal number of any size or free text.
	Seed      string `yaml:"seed"`
	Version   string `yaml:"version"`
	Dimension string `yaml:"dimension"`
	Preset    string `yaml:"preset"`
}

type BackendConfig struct {
	Kind string `yaml:"kind"`
}

type PoolConfig struct {
	// Size 0 picks one backend per spare CPU.
	Size             int      `yaml:"size"`
	ConfigureTimeout Duration `yaml:"configure_timeout"`
	ResetInterval    Duration `yaml:"reset_interval"`
}

type MapConfig struct {
	TileSize        int     `yaml:"tile_size"`
	HeightSpacing   int     `yaml:"height_spacing"`
	YLevel          int     `yaml:"y_level"`
	Relief          bool    `yaml:"relief"`
	Underground     bool    `yaml:"underground"`
	ContourInterval float64 `yaml:"contour_interval"`
	SeaLevel        int     `yaml:"sea_level"`
	Water           bool    `yaml:"water"`
	Format          string  `yaml:"format"`
}

// ResourcesConfig points at the shared resources some backends load. Dir
// wins over URL.
type ResourcesConfig struct {
	Dir string `yaml:"dir"`
	URL string `yaml:"url"`
}

type ServerConfig struct {
	Listen       string   `yaml:"listen"`
	WriteTimeout Duration `yaml:"write_timeout"`
	TileTimeout  Duration `yaml:"tile_timeout"`
}

// Duration is a time.Duration written as "3s" in YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func Default() Config {
	return Config{
		Generation: GenerationConfig{
			Seed:      "0",
			Version:   backend.DefaultParams().Version.String(),
			Dimension: backend.Overworld.String(),
		},
		Backend: BackendConfig{Kind: string(backend.KindNoise)},
		Pool: PoolConfig{
			ConfigureTimeout: Duration{pool.DefaultConfigureTimeout},
			ResetInterval:    Duration{pool.DefaultResetInterval},
		},
		Map: MapConfig{
			TileSize:      256,
			HeightSpacing: 4,
			YLevel:        backend.MaxY,
			Relief:        true,
			SeaLevel:      backend.SeaLevel,
			Water:         true,
			Format:        string(raster.FormatPNG),
		},
		Server: ServerConfig{
			Listen:       ":8080",
			WriteTimeout: Duration{30 * time.Second},
			TileTimeout:  Duration{20 * time.Second},
		},
	}
}

// Load reads the file at path on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := c.Params(); err != nil {
		return fmt.Errorf("%w: generation: %w", ErrInvalid, err)
	}
	if _, err := backend.ParseKind(c.Backend.Kind); err != nil {
		return fmt.Errorf("%w: backend.kind: %w", ErrInvalid, err)
	}
	if c.Pool.Size < 0 || c.Pool.Size > pool.MaxSize {
		return fmt.Errorf("%w: pool.size must be between 0 and %d", ErrInvalid, pool.MaxSize)
	}
	if c.Pool.ConfigureTimeout.Duration <= 0 {
		return fmt.Errorf("%w: pool.configure_timeout must be positive", ErrInvalid)
	}
	if c.Pool.ResetInterval.Duration < 0 {
		return fmt.Errorf("%w: pool.reset_interval cannot be negative", ErrInvalid)
	}
	if n := c.Map.TileSize; n < 16 || n&(n-1) != 0 {
		return fmt.Errorf("%w: map.tile_size must be a power of two of at least 16", ErrInvalid)
	}
	if c.Map.HeightSpacing <= 0 {
		return fmt.Errorf("%w: map.height_spacing must be positive", ErrInvalid)
	}
	if c.Map.YLevel < backend.MinY || c.Map.YLevel > backend.MaxY {
		return fmt.Errorf("%w: map.y_level must be between %d and %d", ErrInvalid, backend.MinY, backend.MaxY)
	}
	if _, err := raster.ParseFormat(c.Map.Format); err != nil {
		return fmt.Errorf("%w: map.format: %w", ErrInvalid, err)
	}
	if _, err := c.BuildPalette(); err != nil {
		return fmt.Errorf("%w: palette: %w", ErrInvalid, err)
	}
	return nil
}

// Params returns the generation parameters the backends are configured with.
func (c *Config) Params() (backend.Params, error) {
	g := c.Generation
	seed, err := ParseSeed(g.Seed)
	if err != nil {
		return backend.Params{}, err
	}
	version, err := backend.ParseVersion(g.Version)
	if err != nil {
		return backend.Params{}, err
	}
	dimension, err := backend.ParseDimension(g.Dimension)
	if err != nil {
		return backend.Params{}, err
	}
	largeBiomes, err := ParsePreset(g.Preset)
	if err != nil {
		return backend.Params{}, err
	}
	return backend.Params{
		Seed:        seed,
		Version:     version,
		Dimension:   dimension,
		LargeBiomes: largeBiomes,
	}, nil
}

// ParsePreset reports whether the world preset enlarges biomes. Unknown
// presets are rejected; the empty string is the normal preset.
func ParsePreset(s string) (bool, error) {
	switch s {
	case "", "minecraft:normal", "normal":
		return false, nil
	case LargeBiomesPreset, "large_biomes":
		return true, nil
	}
	return false, fmt.Errorf("seedtiles: unknown world preset %q", s)
}

func (c *Config) Kind() backend.Kind {
	return backend.Kind(c.Backend.Kind)
}

func (c *Config) Format() raster.Format {
	return raster.Format(c.Map.Format)
}
