package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/eak1mov/go-seedtiles/backend"
	"github.com/eak1mov/go-seedtiles/biome"
	"github.com/eak1mov/go-seedtiles/config"
)

var ErrUnknownBiome = errors.New("seedtiles: unknown biome")

const (
	TypeHello  = "hello"
	TypeRedraw = "redraw"
	TypeError  = "error"

	TypeView      = "view"
	TypeRelief    = "relief"
	TypeY         = "y"
	TypeHighlight = "highlight"
	TypeWater     = "water"
	TypeContours  = "contours"
	TypeConfig    = "config"
)

const inboundSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type"],
  "oneOf": [
    {
      "properties": {"type": {"const": "view"}},
      "additionalProperties": false
    },
    {
      "properties": {
        "type": {"const": "relief"},
        "enabled": {"type": "boolean"}
      },
      "required": ["enabled"],
      "additionalProperties": false
    },
    {
      "properties": {
        "type": {"const": "y"},
        "level": {"type": "integer", "minimum": -64, "maximum": 320}
      },
      "required": ["level"],
      "additionalProperties": false
    },
    {
      "properties": {
        "type": {"const": "highlight"},
        "biomes": {"type": "array", "items": {"type": "string"}, "maxItems": 256}
      },
      "required": ["biomes"],
      "additionalProperties": false
    },
    {
      "properties": {
        "type": {"const": "water"},
        "enabled": {"type": "boolean"}
      },
      "required": ["enabled"],
      "additionalProperties": false
    },
    {
      "properties": {
        "type": {"const": "contours"},
        "interval": {"type": "number", "minimum": 0, "maximum": 1024}
      },
      "required": ["interval"],
      "additionalProperties": false
    },
    {
      "properties": {
        "type": {"const": "config"},
        "seed": {"type": "string", "maxLength": 256},
        "version": {"type": "string", "pattern": "^[0-9]+([_.][0-9]+){0,2}$"},
        "dimension": {"type": "string"},
        "preset": {"type": "string"}
      },
      "additionalProperties": false
    }
  ]
}`

func compileInbound() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("inbound.schema.json", inboundSchema)
}

// Inbound is a message from a map client.
type Inbound struct {
	Type      string   `json:"type"`
	Enabled   *bool    `json:"enabled,omitempty"`
	Level     *int     `json:"level,omitempty"`
	Biomes    []string `json:"biomes,omitempty"`
	Interval  *float64 `json:"interval,omitempty"`
	Seed      *string  `json:"seed,omitempty"`
	Version   *string  `json:"version,omitempty"`
	Dimension *string  `json:"dimension,omitempty"`
	Preset    *string  `json:"preset,omitempty"`
}

// Outbound is a message to a map client.
type Outbound struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`
	Epoch   uint64 `json:"epoch,omitempty"`
	Version uint64 `json:"version,omitempty"`
	Message string `json:"message,omitempty"`
}

func decodeInbound(schema *jsonschema.Schema, data []byte) (Inbound, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Inbound{}, fmt.Errorf("malformed message: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return Inbound{}, fmt.Errorf("invalid message: %w", err)
	}
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("malformed message: %w", err)
	}
	return in, nil
}

// Highlight converts a highlight message into a biome set. An empty list
// clears the highlight.
func (in Inbound) Highlight() (biome.Set, error) {
	var set biome.Set
	for _, name := range in.Biomes {
		id, ok := biome.Parse(name)
		if !ok {
			return biome.Set{}, fmt.Errorf("%w: %q", ErrUnknownBiome, name)
		}
		set.Add(id)
	}
	return set, nil
}

// Update converts a config message into a backend update.
func (in Inbound) Update() (backend.Update, error) {
	var u backend.Update
	if in.Seed != nil {
		seed, err := config.ParseSeed(*in.Seed)
		if err != nil {
			return u, err
		}
		u.Seed = &seed
	}
	if in.Version != nil {
		v, err := backend.ParseVersion(*in.Version)
		if err != nil {
			return u, err
		}
		u.Version = &v
	}
	if in.Dimension != nil {
		d, err := backend.ParseDimension(*in.Dimension)
		if err != nil {
			return u, err
		}
		u.Dimension = &d
	}
	if in.Preset != nil {
		large, err := config.ParsePreset(*in.Preset)
		if err != nil {
			return u, err
		}
		u.LargeBiomes = &large
	}
	return u, nil
}

func encode(msg Outbound) []byte {
	data, _ := json.Marshal(msg)
	return data
}
