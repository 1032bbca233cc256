package backend

import (
	"errors"
	"fmt"

	"github.com/eak1mov/go-seedtiles/biome"
)

const climateBands = 16

var ErrInvalidTable = errors.New("seedtiles: invalid climate table")

// ClimateTable maps a temperature and humidity pair to a land biome. It is
// stored as 256 bytes, temperature-major, one biome id per byte.
type ClimateTable [climateBands * climateBands]biome.ID

// middleBiomes is indexed by temperature (frozen to hot) then humidity (dry to wet).
var middleBiomes = [5][5]biome.ID{
	{biome.SnowyPlains, biome.SnowyPlains, biome.SnowyPlains, biome.SnowyTaiga, biome.Taiga},
	{biome.Plains, biome.Plains, biome.Forest, biome.Taiga, biome.OldGrowthSpruceTaiga},
	{biome.FlowerForest, biome.Plains, biome.Forest, biome.BirchForest, biome.DarkForest},
	{biome.Savanna, biome.Savanna, biome.Forest, biome.Jungle, biome.Jungle},
	{biome.Desert, biome.Desert, biome.Desert, biome.Badlands, biome.Badlands},
}

var builtinTable = func() *ClimateTable {
	var t ClimateTable
	for ti := range climateBands {
		for hi := range climateBands {
			t[ti*climateBands+hi] = middleBiomes[band(bandCenter(ti))][band(bandCenter(hi))]
		}
	}
	return &t
}()

// BuiltinClimateTable returns a copy of the table used when no resource is loaded.
func BuiltinClimateTable() *ClimateTable {
	t := *builtinTable
	return &t
}

func ParseClimateTable(data []byte) (*ClimateTable, error) {
	var t ClimateTable
	if len(data) != len(t) {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidTable, len(data))
	}
	for i, b := range data {
		t[i] = biome.ID(b)
	}
	return &t, nil
}

func (t *ClimateTable) MarshalBinary() ([]byte, error) {
	data := make([]byte, len(t))
	for i, id := range t {
		if id < 0 || id > 255 {
			return nil, fmt.Errorf("%w: biome %d at %d", ErrInvalidTable, id, i)
		}
		data[i] = byte(id)
	}
	return data, nil
}

func (t *ClimateTable) Lookup(temperature, humidity float64) biome.ID {
	return t[bandIndex(temperature)*climateBands+bandIndex(humidity)]
}

func bandIndex(v float64) int {
	return max(0, min(climateBands-1, int((v+1)/2*climateBands)))
}

func bandCenter(i int) float64 {
	return -1 + (float64(i)+0.5)*2/climateBands
}

// band splits a climate value into five bands.
func band(v float64) int {
	switch {
	case v < -0.3:
		return 0
	case v < -0.1:
		return 1
	case v < 0.1:
		return 2
	case v < 0.3:
		return 3
	}
	return 4
}
