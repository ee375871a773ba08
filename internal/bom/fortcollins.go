package bom

import (
	"fmt"

	"github.com/sells-group/fiber-bom/internal/aggregate"
	"github.com/sells-group/fiber-bom/internal/designid"
	"github.com/sells-group/fiber-bom/internal/feature"
	"github.com/sells-group/fiber-bom/internal/spatial"
)

const (
	fcPreliminary = "Preliminary"
	fcSpliceSize  = "spliceenclosuremodelnumber"
)

var (
	fcConduit125  = aggregate.Eq("diameter", "1.25inch")
	fcConduit2    = aggregate.Eq("diameter", "2inch")
	fcParallel    = aggregate.Eq("installmethod", "Directional-Parallel")
	fcNoInterconn = aggregate.IsBlank("interconnect")
	fcInterconn   = aggregate.Eq("interconnect", "YES")
	fcPVault      = aggregate.Eq("pvault", "N")
)

// fcCableSizes are the rows of the cable table, top to bottom from row 40.
var fcCableSizes = []int{288, 144, 96, 48, 24, 12}

// fcSpliceFields are the splice attributes the table reads; dissolving keeps
// only these.
var fcSpliceFields = []string{"locationdescription", "splice_type", "splice_count", "fiber_assignments", fcSpliceSize, "fcount"}

// fcSplices selects the splice closures whose derived hub id is the boundary.
func fcSplices(e *Env, pred aggregate.Predicate) int {
	return aggregate.FilteredCount(e.Layer("splices"), aggregate.And(aggregate.Eq("fdhid", e.Boundary), pred))
}

func fcVaults(structureType string, preds ...aggregate.Predicate) func(*Env) Value {
	return count("vaults", aggregate.And(append([]aggregate.Predicate{aggregate.Eq("structure_type", structureType)}, preds...)...))
}

func fcEnclosures(model string, preds ...aggregate.Predicate) func(*Env) Value {
	return func(e *Env) Value {
		return Int(int64(fcSplices(e, aggregate.And(append([]aggregate.Predicate{aggregate.Eq(fcSpliceSize, model)}, preds...)...))))
	}
}

// fcOTDR is the OTDR test count: the highest fiber assignment among the
// hub's splice closures rounded up to a full ribbon of 12, plus a pad.
func fcOTDR(e *Env) Value {
	splices := e.Layer("splices").Where(aggregate.Eq("fdhid", e.Boundary))
	if splices.Len() == 0 {
		return None
	}
	highest := aggregate.MaxDerivedValue(splices, aggregate.All, aggregate.TrailingNumber("fiber_assignments", "-"), 0)
	return Int(aggregate.RoundUpToMultiple(highest, otdrMultiple) + otdrPad)
}

// fcCableTable fills G40:L45 with one row per cable size.
func fcCableTable() []Entry {
	var entries []Entry
	for i, size := range fcCableSizes {
		row := 40 + i
		n := float64(size)
		fcount := aggregate.EqNum("fcount", n)
		fibercount := aggregate.EqNum("fibercount", n)
		entries = append(entries,
			Entry{Name: fmt.Sprintf("fdh_cables_%d", size), Cell: fmt.Sprintf("G%d", row), Compute: func(e *Env) Value {
				pred := aggregate.And(aggregate.Eq("fdhcable", "Y"), fibercount)
				return Int(int64(aggregate.UniqueCount(e.Layer("fiber"), pred, "cablename")))
			}},
			Entry{Name: fmt.Sprintf("mca_splices_%d", size), Cell: fmt.Sprintf("H%d", row), Compute: func(e *Env) Value {
				return Int(int64(fcSplices(e, aggregate.And(fcount, aggregate.Contains("splice_type", "MCA")))))
			}},
			Entry{Name: fmt.Sprintf("nap_splices_%d", size), Cell: fmt.Sprintf("I%d", row), Compute: func(e *Env) Value {
				pred := aggregate.And(fcount, aggregate.Contains("splice_type", "NAP"), aggregate.Not(aggregate.Contains("splice_type", "MCA")))
				return Int(int64(fcSplices(e, pred)))
			}},
			Entry{Name: fmt.Sprintf("re_splices_%d", size), Cell: fmt.Sprintf("J%d", row), Compute: func(e *Env) Value {
				return Int(int64(fcSplices(e, aggregate.And(fcount, aggregate.Contains("splice_type", "RE")))))
			}},
			Entry{Name: fmt.Sprintf("fiber_%d_ft", size), Cell: fmt.Sprintf("L%d", row), Compute: footage("fiber", fibercount)},
		)
	}
	return entries
}

// prepareFortCollins attributes splice closures with the hub id derived from
// their location description, and marks preliminary vaults.
func prepareFortCollins(set *feature.Set) {
	set.Get("splices").Derive("fdhid", func(f feature.Feature) feature.Value {
		return feature.String(designid.FDH.Derive(f.Get("locationdescription").Str()))
	})
	set.Get("vaults").Derive("pvault", func(f feature.Feature) feature.Value {
		if f.Get("inventory_status_code").Str() == fcPreliminary {
			return feature.String("N")
		}
		return feature.String("Y")
	})
}

// FortCollins is computed per fiber distribution hub boundary.
var FortCollins = register(Variant{
	Name:     "fortcollins",
	Title:    "Fort Collins FDH BOM",
	Sheet:    "AEG Units",
	Template: "template/FortCollins_BOM_Template.xlsx",
	Prepare:  prepareFortCollins,
	Plan: spatial.Plan{
		Boundary: spatial.BoundarySpec{Layer: "fdhboundary", Field: "fdhid"},
		Layers: []spatial.LayerSpec{
			{Name: "fdh_points", Layer: "fdhpoint", Where: spatial.Where(spatial.Prefix("fdhid", spatial.BoundaryRef))},
			{
				Name: "fiber", Layer: "FiberLine",
				Where: spatial.Where(spatial.In("infrastructureclass", "Access", "Lateral")),
				Clip:  spatial.ClipIntersect,
				Overlays: []spatial.Overlay{
					{Ref: "fdh_points", Join: spatial.JoinOptions{Match: spatial.MatchIntersects, Mode: spatial.Flag, Field: "fdhcable"}},
				},
				Length: true,
			},
			{
				Name: "splices", Layer: "SplicePoint",
				Where: spatial.Where(spatial.Prefix("locationdescription", spatial.BoundaryRef)),
				Overlays: []spatial.Overlay{
					{Ref: "fiber", Join: spatial.JoinOptions{Match: spatial.MatchEndpoints, Mode: spatial.Max, Field: "fibercount", As: "fcount"}},
				},
				// One closure per location even when it was digitized as several points.
				Dissolve:   true,
				DissolveBy: fcSpliceFields,
			},
			{
				Name: "conduit", Layer: "StructureLine",
				Where:  spatial.Where(spatial.Eq("inventory_status_code", fcPreliminary), spatial.In("diameter", "2inch", "1.25inch")),
				Clip:   spatial.ClipIntersect,
				Length: true,
			},
			{
				Name: "vaults", Layer: "FC_Structure",
				Where: spatial.Where(spatial.Eq("inventory_status_code", fcPreliminary)),
				Clip:  spatial.ClipIntersect,
			},
		},
	},
	Entries: fortCollinsEntries(),
})

func fortCollinsEntries() []Entry {
	entries := []Entry{
		// conduit
		{Name: "missile_bore_ft", Cell: "A7", Compute: footage("conduit", aggregate.And(fcConduit125, aggregate.Eq("installmethod", "Missile")))},
		{Name: "directional_bore_ft", Cell: "A8", Compute: footage("conduit", aggregate.Or(fcConduit2, fcParallel))},
		{Name: "low_density_bore_ft", Cell: "A10", Compute: zero},
		{Name: "high_density_open_cut_ft", Cell: "A11", Compute: zero},
		{Name: "special_crossings", Cell: "A12", Compute: zero},
		{Name: "conduit_adder_ft", Cell: "A13", Compute: footage("conduit", fcParallel)},
		{Name: "rear_easement_conduit_ft", Cell: "A19", Compute: zero},

		// vaults
		{Name: "small_vaults", Cell: "A20", Compute: fcVaults("Small Vault", fcPVault, fcNoInterconn)},
		{Name: "intermediate_vaults", Cell: "A21", Compute: fcVaults("Intermediate Vault", fcNoInterconn)},
		{Name: "medium_vaults", Cell: "A22", Compute: fcVaults("Medium Vault", fcPVault, fcNoInterconn)},
		{Name: "large_vaults", Cell: "A23", Compute: fcVaults("Large Vault", fcPVault, fcNoInterconn)},
		{Name: "flower_pots", Cell: "A24", Compute: fcVaults("Flower Pot", fcNoInterconn)},
		{Name: "small_vaults_power", Cell: "A25", Compute: fcVaults("Small Vault", fcPVault, fcInterconn)},
		{Name: "intermediate_vaults_power", Cell: "A26", Compute: fcVaults("Intermediate Vault", fcInterconn)},
		{Name: "medium_vaults_power", Cell: "A27", Compute: fcVaults("Medium Vault", fcPVault, fcInterconn)},
		{Name: "large_vaults_power", Cell: "A28", Compute: fcVaults("Large Vault", fcPVault, fcInterconn)},
		{Name: "flower_pots_power", Cell: "A29", Compute: zero},
		{Name: "rear_easement_vaults", Cell: "A30", Compute: zero},

		{Name: "otdr_tests", Cell: "A37", Compute: fcOTDR},
	}
	entries = append(entries, fcCableTable()...)
	return append(entries, []Entry{
		{Name: "conduit_125_ft", Cell: "G54", Compute: footage("conduit", fcConduit125)},
		{Name: "conduit_2_ft", Cell: "G55", Compute: footage("conduit", fcConduit2)},
		{Name: "heat_shrink_sleeves", Cell: "A66", Compute: func(e *Env) Value {
			splices := e.Layer("splices")
			return Int(aggregate.FilteredLengthSum(splices, aggregate.Eq("fdhid", e.Boundary), "splice_count", aggregate.Ceil))
		}},
		{Name: "fosc450_a_gel", Cell: "A67", Compute: fcEnclosures("Commscope FOSC 450 A-Gel", aggregate.Not(aggregate.Contains("locationdescription", "X")))},
		{Name: "fosc450_a_gel_extender", Cell: "A68", Compute: fcEnclosures("Commscope FOSC 450 A-Gel", aggregate.Contains("locationdescription", "X"))},
		{Name: "fosc450_b_gel", Cell: "A70", Compute: fcEnclosures("Commscope FOSC 450 B-Gel")},
		{Name: "fosc450_c_gel", Cell: "A72", Compute: fcEnclosures("Commscope FOSC 450 C-Gel")},
		{Name: "fosc450_d_gel", Cell: "A74", Compute: fcEnclosures("Commscope FOSC 450 D-Gel")},
	}...)
}
