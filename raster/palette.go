// Package raster assembles biome classifications and relief into tile images.
package raster

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/eak1mov/go-seedtiles/biome"
)

// Gray is the color of classes missing from the palette.
var Gray = color.RGBA{R: 128, G: 128, B: 128, A: 255}

const paletteSize = 256

// Palette maps biome ids to colors. The zero value maps every id to Gray.
type Palette struct {
	colors [paletteSize]color.RGBA
	set    [paletteSize]bool
}

var defaultColors = map[biome.ID]uint32{
	biome.Ocean: 0x000070, biome.Plains: 0x8db360, biome.Desert: 0xfa9418,
	biome.WindsweptHills: 0x606060, biome.Forest: 0x056621, biome.Taiga: 0x0b6659,
	biome.Swamp: 0x07f9b2, biome.River: 0x0000ff, biome.NetherWastes: 0x572526,
	biome.TheEnd: 0x8080ff, biome.FrozenOcean: 0x7070d6, biome.FrozenRiver: 0xa0a0ff,
	biome.SnowyPlains: 0xffffff, biome.SnowyMountains: 0xffffff, biome.MushroomFields: 0xff00ff,
	biome.MushroomFieldShore: 0xff00ff, biome.Beach: 0xfaf0c0, biome.DesertHills: 0xfa9418,
	biome.WoodedHills: 0x056621, biome.TaigaHills: 0x606060, biome.MountainEdge: 0x606060,
	biome.Jungle: 0x507b0a, biome.JungleHills: 0x507b0a, biome.SparseJungle: 0x608b0f,
	biome.DeepOcean: 0x000030, biome.StonyShore: 0xa2a284, biome.SnowyBeach: 0xfade55,
	biome.BirchForest: 0x307444, biome.BirchForestHills: 0x307444, biome.DarkForest: 0x40511a,
	biome.SnowyTaiga: 0x31554a, biome.SnowyTaigaHills: 0x31554a, biome.OldGrowthPineTaiga: 0x596651,
	biome.OldGrowthPineTaigaHills: 0x596651, biome.WindsweptForest: 0x5b7352, biome.Savanna: 0xbdb25f,
	biome.SavannaPlateau: 0xa79d64, biome.Badlands: 0xd94515, biome.WoodedBadlands: 0xca8c65,
	biome.BadlandsPlateau: 0xd94515, biome.SmallEndIslands: 0x4b4bab, biome.EndMidlands: 0xc9c459,
	biome.EndHighlands: 0xb5da36, biome.EndBarrens: 0x7070cc, biome.WarmOcean: 0x0000ac,
	biome.LukewarmOcean: 0x000090, biome.ColdOcean: 0x202070, biome.DeepFrozenOcean: 0x404090,
	biome.DeepLukewarmOcean: 0x000040, biome.DeepColdOcean: 0x202038, biome.TheVoid: 0x000000,
	biome.SunflowerPlains: 0xb5db88, biome.DesertLakes: 0xfa9418, biome.WindsweptGravellyHills: 0x888888,
	biome.FlowerForest: 0x2d8a49, biome.TaigaMountains: 0x606060, biome.SwampHills: 0x07f9b2,
	biome.IceSpikes: 0xb4dcdc, biome.ModifiedJungle: 0x507b0a, biome.ModifiedJungleEdge: 0x507b0a,
	biome.OldGrowthBirchForest: 0x58936c, biome.TallBirchHills: 0x58936c, biome.DarkForestHills: 0x40511a,
	biome.SnowyTaigaMountains: 0x31554a, biome.OldGrowthSpruceTaiga: 0x818e79,
	biome.GiantSpruceTaigaHills: 0x818e79, biome.ModifiedGravellyMountains: 0x5b7352,
	biome.WindsweptSavanna: 0xe5da87, biome.ShatteredSavannaPlateau: 0xa79d64,
	biome.ErodedBadlands: 0xff6d3d, biome.ModifiedWoodedBadlandsPlateau: 0xca8c65,
	biome.ModifiedBadlandsPlateau: 0xd94515, biome.BambooJungle: 0x849400,
	biome.BambooJungleHills: 0x849400, biome.SoulSandValley: 0x4b4b4b, biome.CrimsonForest: 0x494949,
	biome.WarpedForest: 0x727c62, biome.BasaltDeltas: 0x333333, biome.DripstoneCaves: 0x4e3f32,
	biome.LushCaves: 0x283c00, biome.DeepDark: 0x031f29, biome.Meadow: 0x60a445,
	biome.Grove: 0x47726c, biome.SnowySlopes: 0xc4c4c4, biome.FrozenPeaks: 0xb0b3ce,
	biome.JaggedPeaks: 0xdcdcc8, biome.StonyPeaks: 0x7b8f74, biome.CherryGrove: 0xff93a0,
	biome.MangroveSwamp: 0x2ccc8e, biome.PaleGarden: 0x696d95,
}

// DefaultPalette returns the stock biome colors.
func DefaultPalette() *Palette {
	p := &Palette{}
	for id, rgb := range defaultColors {
		p.Set(id, color.RGBA{R: uint8(rgb >> 16), G: uint8(rgb >> 8), B: uint8(rgb), A: 255})
	}
	return p
}

// Set assigns a color to a class. Ids outside [0, 256) are ignored.
func (p *Palette) Set(id biome.ID, c color.RGBA) {
	if id < 0 || id >= paletteSize {
		return
	}
	c.A = 255
	p.colors[id] = c
	p.set[id] = true
}

func (p *Palette) Color(id biome.ID) color.RGBA {
	if id < 0 || id >= paletteSize || !p.set[id] {
		return Gray
	}
	return p.colors[id]
}

// Override applies named colors ("minecraft:plains": "#8db360") on top of the palette.
func (p *Palette) Override(colors map[string]string) error {
	for name, hex := range colors {
		id, ok := biome.Parse(name)
		if !ok {
			return fmt.Errorf("seedtiles: unknown biome %q", name)
		}
		c, err := ParseHex(hex)
		if err != nil {
			return err
		}
		p.Set(id, c)
	}
	return nil
}

// ParseHex parses "#rrggbb" or "rrggbb".
func ParseHex(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("seedtiles: invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("seedtiles: invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
