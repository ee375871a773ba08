package spatial

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fiber-bom/internal/feature"
)

// ErrUnknownBoundary is returned when no boundary polygon matches the
// requested id.
var ErrUnknownBoundary = eris.New("spatial: boundary not found")

// Clip decides how a layer is restricted to the boundary polygon.
type Clip string

const (
	// ClipNone keeps the attribute selection as is.
	ClipNone Clip = ""
	// ClipIntersect cuts geometry at the boundary edge.
	ClipIntersect Clip = "intersect"
	// ClipJoin keeps whole features related to the boundary by ClipMatch.
	ClipJoin Clip = "join"
)

// BoundarySpec names the polygon layer and id field boundaries come from.
type BoundarySpec struct {
	Layer string
	Field string
}

// Overlay refines a layer against another feature set. The other set is
// either an earlier LayerSpec (Ref) or a fresh attribute selection of Layer.
type Overlay struct {
	Ref   string
	Layer string
	Where Filter
	Join  JoinOptions
	// Erase removes geometry near the other set instead of joining.
	Erase bool
}

// LayerSpec describes how one named collection is produced for a boundary.
type LayerSpec struct {
	Name      string
	Layer     string
	Where     Filter
	Clip      Clip
	ClipMatch Match
	Overlays  []Overlay
	// Dissolve merges features by DissolveBy, or all together when empty.
	Dissolve   bool
	DissolveBy []string
	Length     bool
}

// Plan is the full fetch recipe of a BOM variant.
type Plan struct {
	Boundary BoundarySpec
	Layers   []LayerSpec
}

// Fetcher runs plans against a Provider, one workspace per boundary.
type Fetcher struct {
	Provider         Provider
	EraseToleranceFt float64
}

// Fetch produces the feature set of boundary. The workspace is released
// before returning, whatever the outcome.
func (f *Fetcher) Fetch(ctx context.Context, plan Plan, boundary string) (set *feature.Set, err error) {
	log := zap.L().With(zap.String("component", "spatial.fetch"), zap.String("boundary", boundary))

	ws, err := f.Provider.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := ws.Release(context.WithoutCancel(ctx)); rerr != nil {
			log.Warn("release workspace", zap.Error(rerr))
			if err == nil {
				err = rerr
			}
		}
	}()

	bh, err := f.Provider.SelectByAttribute(ctx, ws, plan.Boundary.Layer, Where(Eq(plan.Boundary.Field, boundary)))
	if err != nil {
		return nil, eris.Wrap(err, "spatial: select boundary")
	}
	n, err := f.Provider.Count(ctx, ws, bh)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, eris.Wrapf(ErrUnknownBoundary, "%s.%s = %q", plan.Boundary.Layer, plan.Boundary.Field, boundary)
	}

	set = feature.NewSet(boundary)
	handles := make(map[string]Handle, len(plan.Layers))
	for _, spec := range plan.Layers {
		h, err := f.layer(ctx, ws, spec, bh, boundary, handles)
		if err != nil {
			return nil, eris.Wrapf(err, "spatial: layer %s", spec.Name)
		}
		handles[spec.Name] = h

		fc, err := f.Provider.Features(ctx, ws, h)
		if err != nil {
			return nil, eris.Wrapf(err, "spatial: layer %s", spec.Name)
		}
		fc.Layer = spec.Layer
		set.Put(spec.Name, fc)
		log.Debug("fetched layer", zap.String("name", spec.Name), zap.Int("features", fc.Len()))
	}
	return set, nil
}

func (f *Fetcher) layer(ctx context.Context, ws *Workspace, spec LayerSpec, boundaryH Handle, boundary string, prior map[string]Handle) (Handle, error) {
	p := f.Provider

	h, err := p.SelectByAttribute(ctx, ws, spec.Layer, spec.Where.Bind(boundary))
	if err != nil {
		return Handle{}, err
	}

	switch spec.Clip {
	case ClipNone:
	case ClipIntersect:
		if h, err = p.Intersect(ctx, ws, h, boundaryH); err != nil {
			return Handle{}, err
		}
	case ClipJoin:
		if h, err = p.SpatialJoin(ctx, ws, h, boundaryH, JoinOptions{Match: spec.ClipMatch, Mode: KeepCommon}); err != nil {
			return Handle{}, err
		}
	default:
		return Handle{}, eris.Errorf("spatial: unsupported clip %q", spec.Clip)
	}

	for _, ov := range spec.Overlays {
		other, err := f.overlaySource(ctx, ws, ov, boundary, prior)
		if err != nil {
			return Handle{}, err
		}
		if ov.Erase {
			h, err = p.Erase(ctx, ws, h, other, f.EraseToleranceFt)
		} else {
			h, err = p.SpatialJoin(ctx, ws, h, other, ov.Join)
		}
		if err != nil {
			return Handle{}, err
		}
	}

	if spec.Dissolve {
		if h, err = p.Dissolve(ctx, ws, h, spec.DissolveBy); err != nil {
			return Handle{}, err
		}
	}
	if spec.Length {
		if err := p.AddGeodesicLength(ctx, ws, h); err != nil {
			return Handle{}, err
		}
	}
	return h, nil
}

func (f *Fetcher) overlaySource(ctx context.Context, ws *Workspace, ov Overlay, boundary string, prior map[string]Handle) (Handle, error) {
	if ov.Ref != "" {
		h, ok := prior[ov.Ref]
		if !ok {
			return Handle{}, eris.Errorf("spatial: overlay references unknown layer %q", ov.Ref)
		}
		return h, nil
	}
	return f.Provider.SelectByAttribute(ctx, ws, ov.Layer, ov.Where.Bind(boundary))
}
