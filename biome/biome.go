// Package biome defines the class identifiers produced by the generators.
package biome

import "strings"

// ID is a biome class. Values outside the known table are legal and render
// with the default color.
type ID int32

const (
	Ocean ID = iota
	Plains
	Desert
	WindsweptHills
	Forest
	Taiga
	Swamp
	River
	NetherWastes
	TheEnd
	FrozenOcean
	FrozenRiver
	SnowyPlains
	SnowyMountains
	MushroomFields
	MushroomFieldShore
	Beach
	DesertHills
	WoodedHills
	TaigaHills
	MountainEdge
	Jungle
	JungleHills
	SparseJungle
	DeepOcean
	StonyShore
	SnowyBeach
	BirchForest
	BirchForestHills
	DarkForest
	SnowyTaiga
	SnowyTaigaHills
	OldGrowthPineTaiga
	OldGrowthPineTaigaHills
	WindsweptForest
	Savanna
	SavannaPlateau
	Badlands
	WoodedBadlands
	BadlandsPlateau
	SmallEndIslands
	EndMidlands
	EndHighlands
	EndBarrens
	WarmOcean
	LukewarmOcean
	ColdOcean
	DeepFrozenOcean
	DeepLukewarmOcean
	DeepColdOcean
	TheVoid
	SunflowerPlains
	DesertLakes
	WindsweptGravellyHills
	FlowerForest
	TaigaMountains
	SwampHills
	IceSpikes
	ModifiedJungle
	ModifiedJungleEdge
	OldGrowthBirchForest
	TallBirchHills
	DarkForestHills
	SnowyTaigaMountains
	OldGrowthSpruceTaiga
	GiantSpruceTaigaHills
	ModifiedGravellyMountains
	WindsweptSavanna
	ShatteredSavannaPlateau
	ErodedBadlands
	ModifiedWoodedBadlandsPlateau
	ModifiedBadlandsPlateau
	BambooJungle
	BambooJungleHills
	SoulSandValley
	CrimsonForest
	WarpedForest
	BasaltDeltas
	DripstoneCaves
	LushCaves
	DeepDark
	Meadow
	Grove
	SnowySlopes
	FrozenPeaks
	JaggedPeaks
	StonyPeaks
	CherryGrove
	MangroveSwamp
	PaleGarden

	count
)

var names = [count]string{
	"ocean", "plains", "desert", "windswept_hills", "forest", "taiga", "swamp", "river",
	"nether_wastes", "the_end", "frozen_ocean", "frozen_river", "snowy_plains", "snowy_mountains",
	"mushroom_fields", "mushroom_field_shore", "beach", "desert_hills", "wooded_hills", "taiga_hills",
	"mountain_edge", "jungle", "jungle_hills", "sparse_jungle", "deep_ocean", "stony_shore",
	"snowy_beach", "birch_forest", "birch_forest_hills", "dark_forest", "snowy_taiga",
	"snowy_taiga_hills", "old_growth_pine_taiga", "old_growth_pine_taiga_hills", "windswept_forest",
	"savanna", "savanna_plateau", "badlands", "wooded_badlands", "badlands_plateau",
	"small_end_islands", "end_midlands", "end_highlands", "end_barrens", "warm_ocean",
	"lukewarm_ocean", "cold_ocean", "deep_frozen_ocean", "deep_lukewarm_ocean", "deep_cold_ocean",
	"the_void", "sunflower_plains", "desert_lakes", "windswept_gravelly_hills", "flower_forest",
	"taiga_mountains", "swamp_hills", "ice_spikes", "modified_jungle", "modified_jungle_edge",
	"old_growth_birch_forest", "tall_birch_hills", "dark_forest_hills", "snowy_taiga_mountains",
	"old_growth_spruce_taiga", "giant_spruce_taiga_hills", "modified_gravelly_mountains",
	"windswept_savanna", "shattered_savanna_plateau", "eroded_badlands",
	"modified_wooded_badlands_plateau", "modified_badlands_plateau", "bamboo_jungle",
	"bamboo_jungle_hills", "soul_sand_valley", "crimson_forest", "warped_forest", "basalt_deltas",
	"dripstone_caves", "lush_caves", "deep_dark", "meadow", "grove", "snowy_slopes", "frozen_peaks",
	"jagged_peaks", "stony_peaks", "cherry_grove", "mangrove_swamp", "pale_garden",
}

const namespace = "minecraft:"

func (id ID) Known() bool {
	return id >= 0 && id < count
}

// String returns the namespaced name, e.g. "minecraft:plains".
func (id ID) String() string {
	if !id.Known() {
		return "unknown"
	}
	return namespace + names[id]
}

// Parse resolves a biome name with or without the "minecraft:" prefix.
func Parse(name string) (ID, bool) {
	name = strings.TrimPrefix(name, namespace)
	for id, n := range names {
		if n == name {
			return ID(id), true
		}
	}
	return 0, false
}

// All returns every known biome in id order.
func All() []ID {
	ids := make([]ID, count)
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}

// Grid is a row-major grid of classification samples.
type Grid struct {
	Width  int
	Height int
	IDs    []ID
}

func NewGrid(width, height int) *Grid {
	return &Grid{Width: width, Height: height, IDs: make([]ID, width*height)}
}

func (g *Grid) At(i, j int) ID {
	return g.IDs[j*g.Width+i]
}

func (g *Grid) Set(i, j int, id ID) {
	g.IDs[j*g.Width+i] = id
}

// Set is a set of known biomes. The zero value is empty. Sets are
// comparable with ==.
type Set struct {
	bits [(count + 63) / 64]uint64
}

func NewSet(ids ...ID) Set {
	var s Set
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add inserts id. Unknown ids are ignored.
func (s *Set) Add(id ID) {
	if id.Known() {
		s.bits[id/64] |= 1 << (id % 64)
	}
}

func (s Set) Has(id ID) bool {
	return id.Known() && s.bits[id/64]&(1<<(id%64)) != 0
}

func (s Set) Empty() bool {
	return s == Set{}
}

// IDs returns the members in id order.
func (s Set) IDs() []ID {
	var ids []ID
	for id := range count {
		if s.Has(id) {
			ids = append(ids, id)
		}
	}
	return ids
}
