package bom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fiber-bom/internal/feature"
	"github.com/sells-group/fiber-bom/internal/spatial"
)

func TestRoadMiles_Apply(t *testing.T) {
	set := feature.NewSet("Loveland")
	set.Put("highways", feature.NewCollection("Roads",
		feature.New(1, map[string]any{"mtfcc": "S1100", "length_geo": 10560.0}),
		feature.New(2, map[string]any{"mtfcc": "S1200", "length_geo": 2640.0}),
	))
	set.Put("local_roads", feature.NewCollection("Roads",
		feature.New(3, map[string]any{"mtfcc": "S1400", "length_geo": 26400.0}),
		feature.New(4, map[string]any{"mtfcc": "S1640", "length_geo": 1320.0}),
	))
	blocks := feature.NewCollection("CensusBlocks")
	for i := int64(1); i <= 12; i++ {
		blocks.Features = append(blocks.Features, feature.New(i, map[string]any{"blockid10": i}))
	}
	set.Put("blocks", blocks)
	set.Put("roadless_blocks", feature.NewCollection("CensusBlocks",
		feature.New(11, map[string]any{"blockid10": 11}),
		feature.New(12, map[string]any{"blockid10": 12}),
	))

	got := byCell(RoadMiles.Apply("Loveland", set))
	assert.Equal(t, int64(2), got["B3"])
	assert.Equal(t, 0.5, got["B4"])
	assert.Equal(t, int64(5), got["B5"])
	assert.Equal(t, 0.25, got["B6"])
	assert.Equal(t, 7.75, got["B2"])
	assert.Equal(t, int64(12), got["B8"])
	assert.Equal(t, int64(2), got["B9"])
	assert.Equal(t, 0.78, got["B10"])
}

func TestRoadMiles_EmptyBoundary(t *testing.T) {
	got := byCell(RoadMiles.Apply("Nowhere", feature.NewSet("Nowhere")))
	assert.Equal(t, int64(0), got["B2"])
	assert.Equal(t, int64(0), got["B8"])
	assert.Equal(t, "None", got["B10"])
}

func TestRoadMiles_Plan(t *testing.T) {
	byName := map[string]spatial.LayerSpec{}
	for _, l := range RoadMiles.Plan.Layers {
		byName[l.Name] = l
	}

	local := byName["local_roads"]
	sql, args, err := local.Where.SQL("t", 1)
	require.NoError(t, err)
	assert.Contains(t, sql, "<>")
	assert.NotContains(t, sql, " OR ")
	assert.Contains(t, args, "S1630")
	assert.Contains(t, args, "S1100")
	assert.NotContains(t, args, "S1400")
	assert.Equal(t, spatial.ClipIntersect, local.Clip)
	assert.Equal(t, []string{"mtfcc"}, local.DissolveBy)
	assert.True(t, local.Length)

	hw := byName["highways"]
	sql, args, err = hw.Where.SQL("t", 1)
	require.NoError(t, err)
	assert.Contains(t, sql, " OR ")
	assert.Equal(t, []any{"S1100", "S1200"}, args)

	roadless := byName["roadless_blocks"]
	require.Len(t, roadless.Overlays, 2)
	for _, ov := range roadless.Overlays {
		assert.Equal(t, spatial.KeepUnmatched, ov.Join.Mode)
	}
	assert.Equal(t, spatial.MatchCenterIn, roadless.ClipMatch)
}
