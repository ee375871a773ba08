package spatial

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fiber-bom/internal/feature"
)

func newMockProvider(t *testing.T) (*PostGIS, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	p, err := NewPostGIS(mock, "layers", "bom_scratch")
	require.NoError(t, err)
	return p, mock
}

func TestNewPostGIS_InvalidSchema(t *testing.T) {
	_, err := NewPostGIS(nil, "bad schema", "bom_scratch")
	assert.Error(t, err)
	_, err = NewPostGIS(nil, "layers", "x;y")
	assert.Error(t, err)
}

func TestPostGIS_AcquireRelease(t *testing.T) {
	p, mock := newMockProvider(t)
	ctx := context.Background()

	mock.ExpectExec(`DROP SCHEMA IF EXISTS "bom_scratch" CASCADE`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE SCHEMA "bom_scratch"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`DROP SCHEMA IF EXISTS "bom_scratch" CASCADE`).WillReturnResult(pgxmock.NewResult("DROP", 0))

	ws, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bom_scratch", ws.Schema)

	require.NoError(t, ws.Release(ctx))
	// second release is a no-op
	require.NoError(t, ws.Release(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_AcquireError(t *testing.T) {
	p, mock := newMockProvider(t)
	mock.ExpectExec(`DROP SCHEMA`).WillReturnError(errors.New("permission denied"))

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clear workspace")
}

func TestPostGIS_SelectByAttribute(t *testing.T) {
	p, mock := newMockProvider(t)
	ws := NewWorkspace("bom_scratch", nil)

	mock.ExpectExec(`CREATE TABLE "bom_scratch"\."select_1" AS SELECT t\.id, t\.attrs, t\.geom FROM "layers"\."OLT_Boundaries" t WHERE \(t\.attrs->>'name' = \$1\)`).
		WithArgs("OLT-3").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	h, err := p.SelectByAttribute(context.Background(), ws, "OLT_Boundaries", Where(Eq("name", "OLT-3")))
	require.NoError(t, err)
	assert.Equal(t, Handle{Schema: "bom_scratch", Table: "select_1"}, h)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_SelectByAttribute_InvalidLayer(t *testing.T) {
	p, _ := newMockProvider(t)
	_, err := p.SelectByAttribute(context.Background(), NewWorkspace("s", nil), "x; drop", Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid layer name")
}

func TestPostGIS_Intersect(t *testing.T) {
	p, mock := newMockProvider(t)
	ws := NewWorkspace("bom_scratch", nil)

	mock.ExpectExec(`CREATE TABLE "bom_scratch"\."intersect_1" AS SELECT t\.id, t\.attrs, ST_Intersection`).
		WillReturnResult(pgxmock.NewResult("SELECT", 4))

	_, err := p.Intersect(context.Background(), ws, Handle{"bom_scratch", "a"}, Handle{"bom_scratch", "b"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_SpatialJoinModes(t *testing.T) {
	tests := []struct {
		name    string
		opts    JoinOptions
		pattern string
		args    []any
	}{
		{"keep common", JoinOptions{Match: MatchIntersects}, `WHERE EXISTS \(SELECT 1 FROM "s"\."b" j WHERE ST_Intersects`, nil},
		{"keep unmatched", JoinOptions{Match: MatchWithin, Mode: KeepUnmatched}, `WHERE NOT EXISTS .*ST_Within`, nil},
		{"completely within", JoinOptions{Match: MatchCompletelyWithin}, `ST_ContainsProperly\(j\.geom, t\.geom\)`, nil},
		{"center in", JoinOptions{Match: MatchCenterIn}, `ST_Centroid\(t\.geom\)`, nil},
		{"flag", JoinOptions{Match: MatchIntersects, Mode: Flag, Field: "Plow"}, `jsonb_build_object\(\$1::text, CASE WHEN EXISTS`, []any{"plow"}},
		{"max", JoinOptions{Match: MatchEndpoints, Mode: Max, Field: "fibercount", As: "maxfiber"}, `SELECT max\(.*'fibercount'.*ST_Boundary`, []any{"maxfiber"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, mock := newMockProvider(t)
			ws := NewWorkspace("s", nil)

			exp := mock.ExpectExec(`(?s)CREATE TABLE "s"\."join_1" AS .*` + tt.pattern)
			if tt.args != nil {
				exp = exp.WithArgs(tt.args...)
			}
			exp.WillReturnResult(pgxmock.NewResult("SELECT", 1))

			_, err := p.SpatialJoin(context.Background(), ws, Handle{"s", "a"}, Handle{"s", "b"}, tt.opts)
			require.NoError(t, err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostGIS_SpatialJoinInvalid(t *testing.T) {
	p, _ := newMockProvider(t)
	ws := NewWorkspace("s", nil)
	ctx := context.Background()

	_, err := p.SpatialJoin(ctx, ws, Handle{"s", "a"}, Handle{"s", "b"}, JoinOptions{Match: "touches"})
	assert.Error(t, err)
	_, err = p.SpatialJoin(ctx, ws, Handle{"s", "a"}, Handle{"s", "b"}, JoinOptions{Mode: "sum"})
	assert.Error(t, err)
	_, err = p.SpatialJoin(ctx, ws, Handle{"s", "a"}, Handle{"s", "b"}, JoinOptions{Mode: Flag, Field: "a b"})
	assert.Error(t, err)
}

func TestPostGIS_Erase(t *testing.T) {
	p, mock := newMockProvider(t)
	ws := NewWorkspace("s", nil)

	mock.ExpectExec(`(?s)CREATE TABLE "s"\."erase_1" AS .*ST_Difference.*ST_Buffer.*WHERE NOT ST_IsEmpty`).
		WithArgs(1.0).
		WillReturnResult(pgxmock.NewResult("SELECT", 2))

	_, err := p.Erase(context.Background(), ws, Handle{"s", "ug"}, Handle{"s", "conduit"}, FeetPerMeter)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_Dissolve(t *testing.T) {
	p, mock := newMockProvider(t)
	ws := NewWorkspace("s", nil)

	mock.ExpectExec(`jsonb_build_object\('fiber_size', t\.attrs->'fiber_size'\).*GROUP BY t\.attrs->'fiber_size' HAVING count\(\*\) > 0`).
		WillReturnResult(pgxmock.NewResult("SELECT", 3))
	mock.ExpectExec(`jsonb_build_object\(\) AS attrs, ST_Union\(t\.geom\) AS geom FROM "s"\."dissolve_1" t HAVING`).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	h, err := p.Dissolve(context.Background(), ws, Handle{"s", "fiber"}, []string{"Fiber_Size"})
	require.NoError(t, err)
	_, err = p.Dissolve(context.Background(), ws, h, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_AddGeodesicLength(t *testing.T) {
	p, mock := newMockProvider(t)

	mock.ExpectExec(`UPDATE "s"\."f" SET attrs = attrs \|\| jsonb_build_object\(\$1::text, ST_Length\(geom::geography\) \* \$2\)`).
		WithArgs(feature.LengthField, FeetPerMeter).
		WillReturnResult(pgxmock.NewResult("UPDATE", 5))

	require.NoError(t, p.AddGeodesicLength(context.Background(), nil, Handle{"s", "f"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_Count(t *testing.T) {
	p, mock := newMockProvider(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "s"\."f"`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := p.Count(context.Background(), nil, Handle{"s", "f"})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestPostGIS_Features(t *testing.T) {
	p, mock := newMockProvider(t)

	mock.ExpectQuery(`SELECT id, attrs FROM "s"\."f" ORDER BY id`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "attrs"}).
			AddRow(int64(1), []byte(`{"Fiber_Size": 288, "length_geo": 120.5}`)).
			AddRow(int64(2), []byte(`{"fiber_size": "144", "note": null}`)))

	fc, err := p.Features(context.Background(), nil, Handle{"s", "f"})
	require.NoError(t, err)
	require.Equal(t, 2, fc.Len())

	n, ok := fc.Features[0].Get("fiber_size").Float()
	assert.True(t, ok)
	assert.Equal(t, 288.0, n)
	assert.Equal(t, 120.5, fc.Features[0].Length())
	assert.Equal(t, "144", fc.Features[1].Get("fiber_size").Str())
	assert.True(t, fc.Features[1].Get("note").IsNull())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_FeaturesBadJSON(t *testing.T) {
	p, mock := newMockProvider(t)

	mock.ExpectQuery(`SELECT id, attrs FROM`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "attrs"}).AddRow(int64(1), []byte(`{`)))

	_, err := p.Features(context.Background(), nil, Handle{"s", "f"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode attrs")
}
