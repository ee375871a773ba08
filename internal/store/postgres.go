package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/fiber-bom/internal/db"
	"github.com/sells-group/fiber-bom/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller keeps ownership of it.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS bom_runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	variant    TEXT NOT NULL,
	boundaries TEXT[] NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	succeeded  INTEGER NOT NULL DEFAULT 0,
	failed     INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bom_boundary_results (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id      TEXT NOT NULL REFERENCES bom_runs(id),
	seq         INTEGER NOT NULL,
	boundary    TEXT NOT NULL,
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	file        TEXT NOT NULL DEFAULT '',
	items       INTEGER NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bom_runs_status ON bom_runs(status);
CREATE INDEX IF NOT EXISTS idx_bom_runs_variant ON bom_runs(variant);
CREATE INDEX IF NOT EXISTS idx_bom_boundary_results_run_id ON bom_boundary_results(run_id, seq);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, variant string, boundaries []string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO bom_runs (id, variant, boundaries, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, variant, boundaries, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:         id,
		Variant:    variant,
		Boundaries: boundaries,
		Status:     model.RunStatusRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *PostgresStore) RecordBoundary(ctx context.Context, runID string, r model.BoundaryResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	counter := "failed"
	if r.OK() {
		counter = "succeeded"
	}
	tag, err := tx.Exec(ctx,
		`UPDATE bom_runs SET `+counter+` = `+counter+` + 1, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run counters %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO bom_boundary_results (run_id, seq, boundary, stage, status, error, file, items, duration_ms, finished_at)
		 VALUES ($1, (SELECT COUNT(*) FROM bom_boundary_results WHERE run_id = $1), $2, $3, $4, $5, $6, $7, $8, $9)`,
		runID, r.Boundary, string(r.Stage), string(r.Status), r.Error, r.File, r.Items, r.Duration.Milliseconds(), finishedAt(r),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert boundary result %s", r.Boundary)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit boundary result")
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bom_runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

const runColumns = `id, variant, boundaries, status, succeeded, failed, created_at, updated_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	err := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM bom_runs WHERE id = $1`, runID).
		Scan(&r.ID, &r.Variant, &r.Boundaries, &r.Status, &r.Succeeded, &r.Failed, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT boundary, stage, status, error, file, items, duration_ms, finished_at
		 FROM bom_boundary_results WHERE run_id = $1 ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list boundary results")
	}
	defer rows.Close()

	for rows.Next() {
		var b model.BoundaryResult
		var ms int64
		if err := rows.Scan(&b.Boundary, &b.Stage, &b.Status, &b.Error, &b.File, &b.Items, &ms, &b.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan boundary result")
		}
		b.Duration = time.Duration(ms) * time.Millisecond
		r.Results = append(r.Results, b)
	}
	return &r, eris.Wrap(rows.Err(), "postgres: boundary results iterate")
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM bom_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Variant != "" {
		query += fmt.Sprintf(` AND variant = $%d`, argIdx)
		args = append(args, filter.Variant)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		if err := rows.Scan(&r.ID, &r.Variant, &r.Boundaries, &r.Status, &r.Succeeded, &r.Failed, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
