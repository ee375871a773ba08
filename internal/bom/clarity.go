package bom

import (
	"github.com/sells-group/fiber-bom/internal/aggregate"
	"github.com/sells-group/fiber-bom/internal/feature"
	"github.com/sells-group/fiber-bom/internal/spatial"
)

// Clarity fiber subtypes and structure subtypes.
const (
	claritySubtypeUG     = 1
	claritySubtypeAerial = 2
	clarityVault         = 4
	clarityPedestal      = 5
)

func clarityFiber(name string, subtype int, builtField string) spatial.LayerSpec {
	return spatial.LayerSpec{
		Name:     name,
		Layer:    "FiberCable",
		Where:    spatial.Where(spatial.Eq("subtypecode", subtype), spatial.Eq(builtField, "N")),
		Clip:     spatial.ClipIntersect,
		Dissolve: true,
		Length:   true,
	}
}

func clarityPoints(name, layer string) spatial.LayerSpec {
	return spatial.LayerSpec{Name: name, Layer: layer, Clip: spatial.ClipJoin, ClipMatch: spatial.MatchCompletelyWithin}
}

// Clarity is computed per OLT boundary.
var Clarity = register(Variant{
	Name:     "clarity",
	Title:    "Clarity OLT BOM",
	Sheet:    "Sheet1",
	Template: "template/Clarity_BOM_Template.xlsx",
	Plan: spatial.Plan{
		Boundary: spatial.BoundarySpec{Layer: "OLT_Boundaries", Field: "name"},
		Layers: []spatial.LayerSpec{
			clarityFiber("ug_fiber", claritySubtypeUG, "fiber_built"),
			clarityFiber("aerial_fiber", claritySubtypeAerial, "fiber_built"),
			clarityFiber("strand_fiber", claritySubtypeAerial, "strand_built"),
			clarityFiber("strand_conduit", claritySubtypeUG, "strand_built"),
			clarityPoints("splices", "SpliceClosure"),
			clarityPoints("structures", "Structures"),
			clarityPoints("slackloops", "Slackloops"),
			clarityPoints("anchors", "Anchors"),
		},
	},
	Entries: []Entry{
		{Name: "ug_fiber_ft", Cell: "B2", Compute: footage("ug_fiber", aggregate.All)},
		{Name: "aerial_fiber_ft", Cell: "B3", Compute: footage("aerial_fiber", aggregate.All)},
		{Name: "strand_conduit_ft", Cell: "B4", Compute: func(e *Env) Value {
			strand := aggregate.FilteredSum(e.Layer("strand_fiber"), aggregate.All, feature.LengthField)
			conduit := aggregate.FilteredSum(e.Layer("strand_conduit"), aggregate.All, feature.LengthField)
			return Int(aggregate.Ceil(strand + conduit))
		}},
		{Name: "nap_splices", Cell: "B5", Compute: count("splices", aggregate.Eq("spliceuse", "NAP"))},
		{Name: "vaults", Cell: "B6", Compute: count("structures", aggregate.EqNum("subtypecode", clarityVault))},
		{Name: "pedestals", Cell: "B7", Compute: count("structures", aggregate.EqNum("subtypecode", clarityPedestal))},
		{Name: "slack_loops", Cell: "B8", Compute: count("slackloops", aggregate.All)},
		{Name: "anchors", Cell: "B9", Compute: count("anchors", aggregate.All)},
	},
})
