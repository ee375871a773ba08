// Package spatial is the boundary between the BOM core and the geoprocessing
// engine. The core never interprets geometry: it asks a Provider to select,
// clip, join and measure layers, then reads back attribute-only features.
package spatial

import (
	"context"

	"github.com/sells-group/fiber-bom/internal/feature"
)

// Handle names an intermediate feature table inside a Workspace.
type Handle struct {
	Schema string
	Table  string
}

// Match is the spatial relationship tested by a join.
type Match string

const (
	MatchIntersects       Match = "intersects"
	MatchWithin           Match = "within"
	MatchCompletelyWithin Match = "completely_within"
	MatchCenterIn         Match = "center_in"
	MatchEndpoints        Match = "endpoints"
)

// JoinMode decides what a spatial join produces.
type JoinMode string

const (
	// KeepCommon keeps target features that match at least one join feature.
	KeepCommon JoinMode = "keep_common"
	// KeepUnmatched keeps target features that match no join feature.
	KeepUnmatched JoinMode = "keep_unmatched"
	// Flag keeps every target feature and sets Field to "Y" or "N".
	Flag JoinMode = "flag"
	// Max keeps every target feature and sets As to the maximum numeric Field
	// over matching join features.
	Max JoinMode = "max"
)

// JoinOptions parameterises SpatialJoin.
type JoinOptions struct {
	Match Match
	Mode  JoinMode
	Field string
	As    string
}

// Provider is the geoprocessing contract consumed by the BOM pipeline.
// Every intermediate result lives in the Workspace it was produced in.
type Provider interface {
	// Acquire returns an empty scratch workspace. The caller must Release it.
	Acquire(ctx context.Context) (*Workspace, error)
	SelectByAttribute(ctx context.Context, ws *Workspace, layer string, where Filter) (Handle, error)
	Intersect(ctx context.Context, ws *Workspace, target, clip Handle) (Handle, error)
	SpatialJoin(ctx context.Context, ws *Workspace, target, join Handle, opts JoinOptions) (Handle, error)
	Erase(ctx context.Context, ws *Workspace, target, eraser Handle, toleranceFt float64) (Handle, error)
	Dissolve(ctx context.Context, ws *Workspace, h Handle, groupFields []string) (Handle, error)
	AddGeodesicLength(ctx context.Context, ws *Workspace, h Handle) error
	Count(ctx context.Context, ws *Workspace, h Handle) (int, error)
	Features(ctx context.Context, ws *Workspace, h Handle) (*feature.Collection, error)
}
