// Package loader loads design-export shapefiles into the PostGIS layer
// schema read by the spatial provider.
package loader

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/fiber-bom/internal/db"
	"github.com/sells-group/fiber-bom/internal/spatial"
)

// Mode selects how a layer table is written.
type Mode string

const (
	// ModeReplace drops and recreates the layer table.
	ModeReplace Mode = "replace"
	// ModeUpsert merges features into the existing table by id.
	ModeUpsert Mode = "upsert"
)

// TargetSRID is the SRID of every layer table.
const TargetSRID = 4326

var columns = []string{"id", "attrs", "geom"}

// Options configures a Loader.
type Options struct {
	Schema string
	// SRID of the source shapefiles. Geometries are transformed to TargetSRID.
	SRID        int
	Concurrency int
	BatchSize   int
	Mode        Mode
	// Layers restricts loading to these names, compared case-insensitively.
	Layers []string
}

// Result reports one loaded layer.
type Result struct {
	Layer    string        `json:"layer"`
	Path     string        `json:"path"`
	Rows     int64         `json:"rows"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"duration"`
}

// Loader writes shapefiles to PostGIS tables shaped (id, attrs jsonb, geom).
type Loader struct {
	pool db.Pool
	opts Options
}

// New creates a Loader.
func New(pool db.Pool, opts Options) (*Loader, error) {
	if opts.Schema == "" {
		opts.Schema = "layers"
	}
	if !spatial.ValidIdent(opts.Schema) {
		return nil, eris.Errorf("loader: invalid schema %q", opts.Schema)
	}
	if opts.SRID <= 0 {
		opts.SRID = TargetSRID
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5000
	}
	switch opts.Mode {
	case "":
		opts.Mode = ModeReplace
	case ModeReplace, ModeUpsert:
	default:
		return nil, eris.Errorf("loader: unknown mode %q", opts.Mode)
	}
	return &Loader{pool: pool, opts: opts}, nil
}

// FindShapefiles walks dir for .shp files and keys them by base name.
func FindShapefiles(dir string) (map[string]string, error) {
	out := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".shp") {
			out[strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))] = path
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "loader: scan %s", dir)
	}
	return out, nil
}

// LoadDir loads every shapefile under dir.
func (l *Loader) LoadDir(ctx context.Context, dir string) ([]Result, error) {
	files, err := FindShapefiles(dir)
	if err != nil {
		return nil, err
	}
	return l.LoadFiles(ctx, files)
}

// LoadFiles loads the given layer → .shp path map, up to Concurrency layers
// at once. Results are sorted by layer name. The first failure cancels the
// remaining loads.
func (l *Loader) LoadFiles(ctx context.Context, files map[string]string) ([]Result, error) {
	selected, err := l.selectLayers(files)
	if err != nil {
		return nil, err
	}
	if err := l.ensureSchema(ctx); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Concurrency)

	var (
		mu      sync.Mutex
		results []Result
	)
	for _, name := range selected {
		g.Go(func() error {
			res, err := l.LoadLayer(gctx, name, files[name])
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].Layer < results[j].Layer })
	return results, err
}

func (l *Loader) selectLayers(files map[string]string) ([]string, error) {
	want := make(map[string]bool, len(l.opts.Layers))
	for _, name := range l.opts.Layers {
		want[strings.ToLower(name)] = true
	}

	var names []string
	for name := range files {
		if len(want) > 0 && !want[strings.ToLower(name)] {
			continue
		}
		if !spatial.ValidIdent(name) {
			return nil, eris.Errorf("loader: invalid layer name %q", name)
		}
		delete(want, strings.ToLower(name))
		names = append(names, name)
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for n := range want {
			missing = append(missing, n)
		}
		sort.Strings(missing)
		return nil, eris.Errorf("loader: no shapefile for layers %v", missing)
	}
	if len(names) == 0 {
		return nil, eris.New("loader: no shapefiles to load")
	}
	sort.Strings(names)
	return names, nil
}

func (l *Loader) ensureSchema(ctx context.Context) error {
	sql := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{l.opts.Schema}.Sanitize()
	if _, err := l.pool.Exec(ctx, sql); err != nil {
		return eris.Wrapf(err, "loader: create schema %s", l.opts.Schema)
	}
	return nil
}

// LoadLayer loads one shapefile into the table named layer.
func (l *Loader) LoadLayer(ctx context.Context, layer, path string) (Result, error) {
	log := zap.L().With(zap.String("component", "loader"), zap.String("layer", layer))
	start := time.Now()

	records, skipped, err := ReadShapefile(path, l.opts.SRID)
	if err != nil {
		return Result{}, err
	}
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{r.ID, r.Attrs, r.Geom}
	}

	table := pgx.Identifier{l.opts.Schema, layer}
	var n int64
	switch l.opts.Mode {
	case ModeUpsert:
		n, err = l.upsert(ctx, table, rows)
	default:
		n, err = l.replace(ctx, table, rows)
	}
	if err != nil {
		return Result{}, err
	}

	res := Result{Layer: layer, Path: path, Rows: n, Skipped: skipped, Duration: time.Since(start)}
	log.Info("loader: layer loaded",
		zap.Int64("rows", res.Rows),
		zap.Int("skipped", res.Skipped),
		zap.Int64("duration_ms", res.Duration.Milliseconds()),
	)
	return res, nil
}

func (l *Loader) replace(ctx context.Context, table pgx.Identifier, rows [][]any) (int64, error) {
	name := strings.Join(table, ".")
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "loader: begin %s", name)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ident := table.Sanitize()
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS " + ident,
		createTableSQL(table, false),
	} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, eris.Wrapf(err, "loader: prepare %s", name)
		}
	}

	n, err := db.CopyRows(ctx, tx, table, columns, rows, l.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	if err := l.finish(ctx, tx, table); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "loader: commit %s", name)
	}
	return n, nil
}

func (l *Loader) upsert(ctx context.Context, table pgx.Identifier, rows [][]any) (int64, error) {
	if _, err := l.pool.Exec(ctx, createTableSQL(table, true)); err != nil {
		return 0, eris.Wrapf(err, "loader: create %s", strings.Join(table, "."))
	}
	n, err := db.BulkUpsert(ctx, l.pool, db.UpsertConfig{
		Table:        table,
		Columns:      columns,
		ConflictKeys: []string{"id"},
		BatchSize:    l.opts.BatchSize,
	}, rows)
	if err != nil {
		return 0, err
	}
	return n, l.finish(ctx, l.pool, table)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// finish reprojects to TargetSRID and refreshes the spatial index and stats.
func (l *Loader) finish(ctx context.Context, ex execer, table pgx.Identifier) error {
	ident := table.Sanitize()
	index := pgx.Identifier{table[len(table)-1] + "_geom_idx"}.Sanitize()
	stmts := []string{
		fmt.Sprintf("UPDATE %s SET geom = ST_Transform(geom, %d) WHERE ST_SRID(geom) <> %d", ident, TargetSRID, TargetSRID),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (geom)", index, ident),
		"ANALYZE " + ident,
	}
	for _, stmt := range stmts {
		if _, err := ex.Exec(ctx, stmt); err != nil {
			return eris.Wrapf(err, "loader: finish %s", strings.Join(table, "."))
		}
	}
	return nil
}

func createTableSQL(table pgx.Identifier, ifNotExists bool) string {
	clause := ""
	if ifNotExists {
		clause = "IF NOT EXISTS "
	}
	return fmt.Sprintf("CREATE TABLE %s%s (id bigint PRIMARY KEY, attrs jsonb NOT NULL DEFAULT '{}', geom geometry)", clause, table.Sanitize())
}
