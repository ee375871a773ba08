package bom

import (
	"math"

	"github.com/sells-group/fiber-bom/internal/aggregate"
	"github.com/sells-group/fiber-bom/internal/feature"
	"github.com/sells-group/fiber-bom/internal/spatial"
)

// TIGER road feature classes.
const (
	mtfccPrimary   = "S1100"
	mtfccSecondary = "S1200"
	mtfccLocal     = "S1400"
	feetPerMile    = 5280
)

// roadExcluded are the MTFCC classes that are not drivable public road:
// ramps, service drives, walkways, trails, alleys, driveways and the like.
// Primary and secondary roads are excluded here too because they are
// measured on their own layer.
var roadExcluded = []string{
	mtfccPrimary, mtfccSecondary,
	"S1500", "S1630", "S1710", "S1720", "S1730", "S1740", "S1750", "S1780", "S1820", "S1830",
}

func localRoadFilter() spatial.Filter {
	conds := make([]spatial.Cond, len(roadExcluded))
	for i, code := range roadExcluded {
		conds[i] = spatial.Ne("mtfcc", code)
	}
	return spatial.Where(conds...)
}

// miles converts summed feet to miles with two decimals.
func miles(ft float64) Value {
	return Float(math.Round(ft/feetPerMile*100) / 100)
}

func roadMiles(layer string, pred aggregate.Predicate) func(*Env) Value {
	return func(e *Env) Value {
		return miles(aggregate.FilteredSum(e.Layer(layer), pred, feature.LengthField))
	}
}

// RoadMiles reports road miles inside a city or service-area polygon, the
// input to per-mile construction estimates.
var RoadMiles = register(Variant{
	Name:     "roadmiles",
	Title:    "Boundary Road Miles",
	Sheet:    "Road Miles",
	Template: "template/RoadMiles_Template.xlsx",
	Plan: spatial.Plan{
		Boundary: spatial.BoundarySpec{Layer: "CityLimits", Field: "name"},
		Layers: []spatial.LayerSpec{
			{
				Name: "highways", Layer: "Roads",
				Where:      spatial.AnyOf(spatial.Eq("mtfcc", mtfccPrimary), spatial.Eq("mtfcc", mtfccSecondary)),
				Clip:       spatial.ClipIntersect,
				Dissolve:   true,
				DissolveBy: []string{"mtfcc"},
				Length:     true,
			},
			{
				Name: "local_roads", Layer: "Roads",
				Where:      localRoadFilter(),
				Clip:       spatial.ClipIntersect,
				Dissolve:   true,
				DissolveBy: []string{"mtfcc"},
				Length:     true,
			},
			{Name: "blocks", Layer: "CensusBlocks", Clip: spatial.ClipJoin, ClipMatch: spatial.MatchCenterIn},
			{
				Name: "roadless_blocks", Layer: "CensusBlocks",
				Clip: spatial.ClipJoin, ClipMatch: spatial.MatchCenterIn,
				Overlays: []spatial.Overlay{
					{Ref: "highways", Join: spatial.JoinOptions{Match: spatial.MatchIntersects, Mode: spatial.KeepUnmatched}},
					{Ref: "local_roads", Join: spatial.JoinOptions{Match: spatial.MatchIntersects, Mode: spatial.KeepUnmatched}},
				},
			},
		},
	},
	Entries: []Entry{
		{Name: "primary_miles", Cell: "B3", Compute: roadMiles("highways", aggregate.Eq("mtfcc", mtfccPrimary))},
		{Name: "secondary_miles", Cell: "B4", Compute: roadMiles("highways", aggregate.Eq("mtfcc", mtfccSecondary))},
		{Name: "local_miles", Cell: "B5", Compute: roadMiles("local_roads", aggregate.Eq("mtfcc", mtfccLocal))},
		{Name: "other_miles", Cell: "B6", Compute: roadMiles("local_roads", aggregate.Not(aggregate.Eq("mtfcc", mtfccLocal)))},
		{Name: "total_miles", Cell: "B2", Compute: func(e *Env) Value {
			ft := aggregate.FilteredSum(e.Layer("highways"), aggregate.All, feature.LengthField) +
				aggregate.FilteredSum(e.Layer("local_roads"), aggregate.All, feature.LengthField)
			return miles(ft)
		}},
		{Name: "census_blocks", Cell: "B8", Compute: count("blocks", aggregate.All)},
		{Name: "roadless_blocks", Cell: "B9", Compute: count("roadless_blocks", aggregate.All)},
		{Name: "miles_per_block", Cell: "B10", Compute: func(e *Env) Value {
			served := e.Number("census_blocks") - e.Number("roadless_blocks")
			if served <= 0 {
				return None
			}
			return Float(math.Round(e.Number("total_miles")*100/served) / 100)
		}},
	},
})
