package spatial

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fiber-bom/internal/db"
	"github.com/sells-group/fiber-bom/internal/feature"
)

// FeetPerMeter converts meters to US survey feet.
const FeetPerMeter = 3.2808333333

// PostGIS implements Provider on a PostGIS database. Source layers live in
// LayerSchema as tables shaped (id bigint, attrs jsonb, geom geometry) in
// EPSG:4326; every intermediate result is a table of the same shape inside
// the workspace schema.
type PostGIS struct {
	pool          db.Pool
	layerSchema   string
	scratchSchema string
	log           *zap.Logger
}

// NewPostGIS creates a provider. scratchSchema names the schema dropped and
// recreated on every Acquire.
func NewPostGIS(pool db.Pool, layerSchema, scratchSchema string) (*PostGIS, error) {
	if !ValidIdent(layerSchema) {
		return nil, eris.Errorf("spatial: invalid layer schema %q", layerSchema)
	}
	if !ValidIdent(scratchSchema) {
		return nil, eris.Errorf("spatial: invalid scratch schema %q", scratchSchema)
	}
	return &PostGIS{
		pool:          pool,
		layerSchema:   layerSchema,
		scratchSchema: scratchSchema,
		log:           zap.L().With(zap.String("component", "spatial.postgis")),
	}, nil
}

// Acquire drops any leftover scratch schema and creates an empty one.
func (p *PostGIS) Acquire(ctx context.Context) (*Workspace, error) {
	ident := pgx.Identifier{p.scratchSchema}.Sanitize()
	if _, err := p.pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+ident+" CASCADE"); err != nil {
		return nil, eris.Wrap(err, "spatial: clear workspace")
	}
	if _, err := p.pool.Exec(ctx, "CREATE SCHEMA "+ident); err != nil {
		return nil, eris.Wrap(err, "spatial: create workspace")
	}
	return NewWorkspace(p.scratchSchema, func(ctx context.Context) error {
		if _, err := p.pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+ident+" CASCADE"); err != nil {
			return eris.Wrap(err, "spatial: release workspace")
		}
		return nil
	}), nil
}

func (p *PostGIS) create(ctx context.Context, ws *Workspace, kind, query string, args ...any) (Handle, error) {
	out := ws.Next(kind)
	sql := fmt.Sprintf("CREATE TABLE %s AS %s", out.Ident(), query)
	if _, err := p.pool.Exec(ctx, sql, args...); err != nil {
		return Handle{}, eris.Wrapf(err, "spatial: %s into %s", kind, out)
	}
	p.log.Debug("created scratch table", zap.String("table", out.String()), zap.String("op", kind))
	return out, nil
}

// SelectByAttribute copies the features of layer matching where.
func (p *PostGIS) SelectByAttribute(ctx context.Context, ws *Workspace, layer string, where Filter) (Handle, error) {
	if !ValidIdent(layer) {
		return Handle{}, eris.Errorf("spatial: invalid layer name %q", layer)
	}
	cond, args, err := where.SQL("t", 1)
	if err != nil {
		return Handle{}, err
	}
	src := pgx.Identifier{p.layerSchema, layer}.Sanitize()
	return p.create(ctx, ws, "select",
		fmt.Sprintf("SELECT t.id, t.attrs, t.geom FROM %s t WHERE %s", src, cond), args...)
}

// Intersect clips target to the union of clip.
func (p *PostGIS) Intersect(ctx context.Context, ws *Workspace, target, clip Handle) (Handle, error) {
	q := fmt.Sprintf(`SELECT t.id, t.attrs, ST_Intersection(t.geom, c.geom) AS geom
FROM %s t, (SELECT ST_Union(geom) AS geom FROM %s) c
WHERE ST_Intersects(t.geom, c.geom)`, target.Ident(), clip.Ident())
	return p.create(ctx, ws, "intersect", q)
}

func matchSQL(m Match) (string, error) {
	switch m {
	case MatchIntersects, "":
		return "ST_Intersects(t.geom, j.geom)", nil
	case MatchWithin:
		return "ST_Within(t.geom, j.geom)", nil
	case MatchCompletelyWithin:
		return "ST_ContainsProperly(j.geom, t.geom)", nil
	case MatchCenterIn:
		return "ST_Intersects(ST_Centroid(t.geom), j.geom)", nil
	case MatchEndpoints:
		return "ST_Intersects(t.geom, ST_Boundary(j.geom))", nil
	default:
		return "", eris.Errorf("spatial: unsupported match %q", m)
	}
}

// SpatialJoin relates target to join according to opts.
func (p *PostGIS) SpatialJoin(ctx context.Context, ws *Workspace, target, join Handle, opts JoinOptions) (Handle, error) {
	var args []any
	pred, err := matchSQL(opts.Match)
	if err != nil {
		return Handle{}, err
	}
	exists := fmt.Sprintf("EXISTS (SELECT 1 FROM %s j WHERE %s)", join.Ident(), pred)

	var q string
	switch opts.Mode {
	case KeepCommon, "":
		q = fmt.Sprintf("SELECT t.id, t.attrs, t.geom FROM %s t WHERE %s", target.Ident(), exists)
	case KeepUnmatched:
		q = fmt.Sprintf("SELECT t.id, t.attrs, t.geom FROM %s t WHERE NOT %s", target.Ident(), exists)
	case Flag:
		if !ValidIdent(opts.Field) {
			return Handle{}, eris.Errorf("spatial: invalid flag field %q", opts.Field)
		}
		args = append(args, strings.ToLower(opts.Field))
		q = fmt.Sprintf(`SELECT t.id, t.attrs || jsonb_build_object($%d::text, CASE WHEN %s THEN 'Y' ELSE 'N' END) AS attrs, t.geom FROM %s t`,
			len(args), exists, target.Ident())
	case Max:
		if !ValidIdent(opts.Field) || !ValidIdent(opts.As) {
			return Handle{}, eris.Errorf("spatial: invalid max fields %q -> %q", opts.Field, opts.As)
		}
		args = append(args, strings.ToLower(opts.As))
		q = fmt.Sprintf(`SELECT t.id, t.attrs || jsonb_build_object($%d::text, (SELECT max(%s) FROM %s j WHERE %s)) AS attrs, t.geom FROM %s t`,
			len(args), numExpr("j", strings.ToLower(opts.Field)), join.Ident(), pred, target.Ident())
	default:
		return Handle{}, eris.Errorf("spatial: unsupported join mode %q", opts.Mode)
	}
	return p.create(ctx, ws, "join", q, args...)
}

// Erase removes from target everything within toleranceFt of eraser. Features
// erased entirely are dropped.
func (p *PostGIS) Erase(ctx context.Context, ws *Workspace, target, eraser Handle, toleranceFt float64) (Handle, error) {
	q := fmt.Sprintf(`SELECT id, attrs, geom FROM (
  SELECT t.id, t.attrs,
    CASE WHEN e.geom IS NULL THEN t.geom ELSE ST_Difference(t.geom, e.geom) END AS geom
  FROM %s t,
    (SELECT ST_Union(ST_Buffer(geom::geography, $1)::geometry) AS geom FROM %s) e
) d WHERE NOT ST_IsEmpty(geom)`, target.Ident(), eraser.Ident())
	return p.create(ctx, ws, "erase", q, toleranceFt/FeetPerMeter)
}

// Dissolve merges features sharing the same groupFields values. With no
// group fields everything merges into one feature.
func (p *PostGIS) Dissolve(ctx context.Context, ws *Workspace, h Handle, groupFields []string) (Handle, error) {
	var keys, pairs []string
	for _, f := range groupFields {
		if !ValidIdent(f) {
			return Handle{}, eris.Errorf("spatial: invalid dissolve field %q", f)
		}
		f = strings.ToLower(f)
		keys = append(keys, fmt.Sprintf("t.attrs->'%s'", f))
		pairs = append(pairs, fmt.Sprintf("'%s', t.attrs->'%s'", f, f))
	}

	q := fmt.Sprintf("SELECT min(t.id) AS id, jsonb_build_object(%s) AS attrs, ST_Union(t.geom) AS geom FROM %s t",
		strings.Join(pairs, ", "), h.Ident())
	if len(keys) > 0 {
		q += " GROUP BY " + strings.Join(keys, ", ")
	}
	q += " HAVING count(*) > 0"
	return p.create(ctx, ws, "dissolve", q)
}

// AddGeodesicLength sets feature.LengthField to each feature's geodesic
// length in US survey feet.
func (p *PostGIS) AddGeodesicLength(ctx context.Context, _ *Workspace, h Handle) error {
	sql := fmt.Sprintf(`UPDATE %s SET attrs = attrs || jsonb_build_object($1::text, ST_Length(geom::geography) * $2)`, h.Ident())
	if _, err := p.pool.Exec(ctx, sql, feature.LengthField, FeetPerMeter); err != nil {
		return eris.Wrapf(err, "spatial: geodesic length on %s", h)
	}
	return nil
}

// Count returns the number of features in h.
func (p *PostGIS) Count(ctx context.Context, _ *Workspace, h Handle) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, "SELECT count(*) FROM "+h.Ident()).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "spatial: count %s", h)
	}
	return n, nil
}

// Features reads the attributes of every feature in h, ordered by id.
func (p *PostGIS) Features(ctx context.Context, _ *Workspace, h Handle) (*feature.Collection, error) {
	rows, err := p.pool.Query(ctx, "SELECT id, attrs FROM "+h.Ident()+" ORDER BY id")
	if err != nil {
		return nil, eris.Wrapf(err, "spatial: read %s", h)
	}
	defer rows.Close()

	fc := feature.NewCollection(h.Table)
	for rows.Next() {
		var id int64
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, eris.Wrapf(err, "spatial: scan %s", h)
		}
		attrs, err := decodeAttrs(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "spatial: decode attrs of %s id %d", h, id)
		}
		fc.Features = append(fc.Features, feature.New(id, attrs))
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "spatial: iterate %s", h)
	}
	return fc, nil
}

func decodeAttrs(raw []byte) (map[string]any, error) {
	attrs := map[string]any{}
	if len(raw) == 0 {
		return attrs, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}
