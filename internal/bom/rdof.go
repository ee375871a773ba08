package bom

import (
	"math"
	"strconv"

	"github.com/sells-group/fiber-bom/internal/aggregate"
	"github.com/sells-group/fiber-bom/internal/feature"
	"github.com/sells-group/fiber-bom/internal/spatial"
)

const (
	rdofStatus    = "inventory_status_code"
	rdofFiberSize = "fibercount"
)

var (
	rdofPlanned     = spatial.In(rdofStatus, "P", "Planned")
	rdofMCATypes    = aggregate.In("spliceenclosuretype", "NAPMCA", "RE", "MCA")
	rdofAerialFiber = aggregate.Eq("placementtype", "AE")
	rdofVaults      = aggregate.In("structuretype", "LV", "MV")
	rdofLargePeds   = aggregate.Eq("structuretype", "LP")
	rdofMediumPeds  = aggregate.Eq("structuretype", "MP")
	rdofCab17RU     = aggregate.Eq("comments", "17 RU")
	rdofCab24RU     = aggregate.Eq("comments", "24 RU")
	rdofNAP         = aggregate.Eq("spliceenclosuretype", "NAP")
	rdofDesignedTo  = aggregate.Eq("designed", "Y")
	rdofInCBG       = aggregate.Eq("in_cbg", "Y")
	rdofInOverbuild = aggregate.Eq("in_overbuild", "Y")
)

func rdofWithin(name, layer string, where spatial.Filter, match spatial.Match) spatial.LayerSpec {
	return spatial.LayerSpec{Name: name, Layer: layer, Where: where, Clip: spatial.ClipJoin, ClipMatch: match}
}

func rdofFlag(layer, field string, match spatial.Match) spatial.Overlay {
	return spatial.Overlay{Layer: layer, Join: spatial.JoinOptions{Match: match, Mode: spatial.Flag, Field: field}}
}

// fiberBySize returns the footage of each fiber count in the boundary.
func fiberBySize(e *Env) map[int]float64 {
	out := map[int]float64{}
	for k, v := range aggregate.GroupedLengthSum(e.Layer("fiber"), rdofFiberSize, feature.LengthField) {
		if n, err := strconv.ParseFloat(k, 64); err == nil {
			out[int(n)] += float64(v)
		}
	}
	return out
}

// rdofVaultShare spreads the vault allowance over 288 and 144 count fiber.
func rdofVaultShare(size int) func(*Env) Value {
	return func(e *Env) Value {
		f := fiberBySize(e)
		vaults := aggregate.FilteredCount(e.Layer("structures"), rdofVaults)
		return Int(aggregate.RatioedAllocation(f[size], []float64{f[288], f[144]}, vaults, vaultAllowanceFt, marginFactor))
	}
}

// rdofPedShare spreads the medium pedestal allowance over 48, 24 and 12
// count fiber.
func rdofPedShare(size int) func(*Env) Value {
	return func(e *Env) Value {
		f := fiberBySize(e)
		peds := aggregate.FilteredCount(e.Layer("structures"), rdofMediumPeds)
		return Int(aggregate.RatioedAllocation(f[size], []float64{f[48], f[24], f[12]}, peds, pedAllowanceFt, marginFactor))
	}
}

// RDOF is computed per proposed OLT/LCP cabinet boundary.
var RDOF = register(Variant{
	Name:     "rdof",
	Title:    "RDOF LCP BOM",
	Sheet:    "Aspire",
	Template: "template/RDOF_BOM_Template.xlsx",
	Plan: spatial.Plan{
		Boundary: spatial.BoundarySpec{Layer: "Proposed_OLT_LCP_Boundaries", Field: "cab_id"},
		Layers: []spatial.LayerSpec{
			{
				Name: "addresses", Layer: "ServedAddress",
				Clip: spatial.ClipJoin, ClipMatch: spatial.MatchWithin,
				Overlays: []spatial.Overlay{
					rdofFlag("DropFiber", "designed", spatial.MatchIntersects),
					rdofFlag("RDOF_CBG", "in_cbg", spatial.MatchWithin),
					rdofFlag("OVERBUILD_POLY", "in_overbuild", spatial.MatchWithin),
				},
			},
			{
				Name: "drops", Layer: "DropFiber",
				Clip: spatial.ClipJoin, ClipMatch: spatial.MatchCenterIn,
				Length: true,
			},
			{Name: "conduit", Layer: "Conduit", Where: spatial.Where(rdofPlanned), Clip: spatial.ClipIntersect, Length: true},
			{Name: "fiber", Layer: "FiberCable", Where: spatial.Where(rdofPlanned), Clip: spatial.ClipIntersect, Length: true},
			{
				Name: "plow", Layer: "FiberCable",
				Where:    spatial.Where(rdofPlanned, spatial.Eq("placementtype", "UG")),
				Clip:     spatial.ClipIntersect,
				Overlays: []spatial.Overlay{{Ref: "conduit", Erase: true}},
				Length:   true,
			},
			rdofWithin("splices", "SpliceClosure", spatial.Where(rdofPlanned), spatial.MatchWithin),
			rdofWithin("g5n_splices", "SpliceClosure", spatial.Where(rdofPlanned, spatial.Eq("splicesize", "G5N")), spatial.MatchWithin),
			{
				Name: "splitters", Layer: "FiberEquipment",
				Where: spatial.Where(spatial.Eq(rdofStatus, "P"), spatial.Eq("equipment_type", 32)),
				Clip:  spatial.ClipJoin, ClipMatch: spatial.MatchWithin,
				Overlays: []spatial.Overlay{{Ref: "g5n_splices", Join: spatial.JoinOptions{Match: spatial.MatchIntersects, Mode: spatial.KeepCommon}}},
			},
			rdofWithin("structures", "Structure", spatial.Where(spatial.Eq("inventorystatuscode", "P")), spatial.MatchWithin),
			rdofWithin("slackloops", "SlackLoop", spatial.Where(rdofPlanned), spatial.MatchCenterIn),
			rdofWithin("risers", "Riser", spatial.Where(rdofPlanned), spatial.MatchWithin),
			rdofWithin("cabinets", "Proposed_Cabinets", spatial.Filter{}, spatial.MatchWithin),
		},
	},
	Entries: []Entry{
		// addresses
		{Name: "cbg_addresses", Cell: "D4", Compute: count("addresses", aggregate.And(rdofDesignedTo, rdofInCBG))},
		{Name: "other_addresses", Cell: "D5", Compute: count("addresses",
			aggregate.And(rdofDesignedTo, aggregate.Not(rdofInCBG), aggregate.Not(rdofInOverbuild)))},
		{Name: "overbuild_addresses", Cell: "D6", Compute: count("addresses", aggregate.And(rdofDesignedTo, rdofInOverbuild))},
		{Name: "designed_to_addresses", Cell: "D7", Compute: func(e *Env) Value {
			return Int(int64(e.Number("cbg_addresses") + e.Number("other_addresses") + e.Number("overbuild_addresses")))
		}},
		{Name: "olt_commissioning", Cell: "E153", Compute: func(e *Env) Value {
			return Int(int64(math.Ceil(e.Number("designed_to_addresses") / addressesPerOLT)))
		}},

		// drops
		{Name: "long_drops", Cell: "D25", Compute: count("drops", aggregate.Gt(feature.LengthField, longDropFt))},
		{Name: "avg_drop_ft", Cell: "D28", Compute: func(e *Env) Value {
			avg, ok := aggregate.Mean(e.Layer("drops"), aggregate.All, feature.LengthField)
			if !ok {
				return None
			}
			return Int(aggregate.Ceil(avg))
		}},

		// conduit
		{Name: "drop_only_conduit_ft", Cell: "E65", Compute: footage("conduit", aggregate.Eq("dropsonly", "Y"))},
		{Name: "directional_bore_ft", Cell: "E67", Compute: footage("conduit", aggregate.All)},
		{Name: "plow_ft", Cell: "E68", Compute: footage("plow", aggregate.All)},
		{Name: "conduit_125_ft", Cell: "E118", Compute: scaledFootage("conduit", aggregate.EqNum("duct_diameter", 1), marginFactor)},
		{Name: "conduit_2_ft", Cell: "E119", Compute: scaledFootage("conduit", aggregate.EqNum("duct_diameter", 2), marginFactor)},

		// splices
		{Name: "splice_closures", Cell: "E90", Compute: count("splices", aggregate.All)},
		{Name: "fusion_splices", Cell: "E91", Compute: func(e *Env) Value {
			splices := e.Layer("splices")
			nonNAP := aggregate.And(aggregate.Not(aggregate.IsBlank("spliceenclosuretype")), aggregate.Not(rdofNAP))
			return Int(aggregate.Ceil(aggregate.FilteredSum(splices, nonNAP, "cable_size") +
				aggregate.FilteredSum(splices, rdofNAP, "hhp_count")))
		}},
		{Name: "g6_intercept_enclosures", Cell: "E124", Compute: count("splices", aggregate.And(aggregate.Eq("splicesize", "G6"), rdofMCATypes))},
		{Name: "g5_splitter_enclosures", Cell: "E125", Compute: count("splitters", aggregate.All)},
		{Name: "g5_reel_end_enclosures", Cell: "E126", Compute: count("splices", aggregate.And(aggregate.Eq("splicesize", "G5N"), rdofMCATypes))},
		{Name: "g5_drop_terminals", Cell: "E127", Compute: count("splices", aggregate.And(aggregate.Eq("splicesize", "G5N"), rdofNAP))},
		{Name: "aerial_brackets", Cell: "E128", Compute: count("splices", aggregate.Eq("placementtype", "AER"))},
		{Name: "fosc450_pole_brackets", Cell: "E131", Compute: zero},

		// structures
		{Name: "risers", Cell: "E53", Compute: count("risers", aggregate.All)},
		{Name: "cable_markers", Cell: "E80", Compute: func(e *Env) Value {
			vaults := aggregate.FilteredCount(e.Layer("structures"), aggregate.Eq("structure_size", "2"))
			ugSplices := aggregate.FilteredCount(e.Layer("splices"), aggregate.And(aggregate.Eq("placementtype", "UG"), rdofMCATypes))
			return Int(int64(vaults + ugSplices))
		}},
		{Name: "cabinets", Cell: "E89", Compute: count("cabinets", aggregate.All)},
		{Name: "medium_pedestals", Cell: "E110", Compute: count("structures", rdofMediumPeds)},
		{Name: "large_pedestals", Cell: "E111", Compute: count("structures", rdofLargePeds)},
		{Name: "small_vaults", Cell: "E113", Compute: count("structures", aggregate.Eq("structuretype", "SV"))},
		{Name: "medium_vaults", Cell: "E114", Compute: count("structures", aggregate.Eq("structuretype", "MV"))},
		{Name: "vaults_17ru", Cell: "E115", Compute: count("cabinets", rdofCab17RU)},
		{Name: "vaults_24ru", Cell: "E116", Compute: count("cabinets", rdofCab24RU)},
		{Name: "flower_pots", Cell: "E117", Compute: zero},
		{Name: "medium_cabinets", Cell: "E137", Compute: count("cabinets", rdofCab17RU)},
		{Name: "large_cabinets", Cell: "E138", Compute: count("cabinets", rdofCab24RU)},
		{Name: "splitters_1x16", Cell: "E142", Compute: zero},
		{Name: "splitters_1x32", Cell: "E143", Compute: zero},

		// aerial
		{Name: "aerial_strand_ft", Cell: "E42", Compute: scaledFootage("fiber", rdofAerialFiber, aerialFactor)},
		{Name: "lashing_ft", Cell: "E44", Compute: func(e *Env) Value {
			aerial := aggregate.FilteredSum(e.Layer("fiber"), rdofAerialFiber, feature.LengthField)
			loops := aggregate.FilteredSum(e.Layer("slackloops"), aggregate.Eq("placement", "AE"), "loop_length")
			return Int(aggregate.Ceil(aerial*aerialFactor + loops))
		}},

		// fiber by size
		{Name: "fiber_288_ft", Cell: "E102", Compute: rdofVaultShare(288)},
		{Name: "fiber_144_ft", Cell: "E103", Compute: rdofVaultShare(144)},
		{Name: "fiber_96_ft", Cell: "E104", Compute: func(e *Env) Value {
			f := fiberBySize(e)
			peds := aggregate.FilteredCount(e.Layer("structures"), rdofLargePeds)
			return Int(aggregate.Ceil(f[96]*marginFactor + float64(peds)*pedAllowanceFt))
		}},
		{Name: "fiber_48_ft", Cell: "E105", Compute: rdofPedShare(48)},
		{Name: "fiber_24_ft", Cell: "E106", Compute: rdofPedShare(24)},
		{Name: "fiber_12_ft", Cell: "E107", Compute: rdofPedShare(12)},
		{Name: "ground_rods", Cell: "E132", Compute: func(e *Env) Value {
			return Int(int64(2 * aggregate.UniqueCount(e.Layer("fiber"), aggregate.All, "cable_name")))
		}},
	},
})
