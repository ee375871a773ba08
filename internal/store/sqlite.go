package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/fiber-bom/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	variant    TEXT NOT NULL,
	boundaries TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	succeeded  INTEGER NOT NULL DEFAULT 0,
	failed     INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS boundary_results (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	seq         INTEGER NOT NULL,
	boundary    TEXT NOT NULL,
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	file        TEXT NOT NULL DEFAULT '',
	items       INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_variant ON runs(variant);
CREATE INDEX IF NOT EXISTS idx_boundary_results_run_id ON boundary_results(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, variant string, boundaries []string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	boundariesJSON, err := json.Marshal(boundaries)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal boundaries")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, variant, boundaries, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, variant, string(boundariesJSON), string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) RecordBoundary(ctx context.Context, runID string, r model.BoundaryResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	counter := "failed"
	if r.OK() {
		counter = "succeeded"
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET `+counter+` = `+counter+` + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run counters %s", runID)
	}
	if err := checkRowsAffected(res, "run", runID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO boundary_results (id, run_id, seq, boundary, stage, status, error, file, items, duration_ms, finished_at)
		 VALUES (?, ?, (SELECT COUNT(*) FROM boundary_results WHERE run_id = ?), ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), runID, runID, r.Boundary, string(r.Stage), string(r.Status),
		r.Error, r.File, r.Items, r.Duration.Milliseconds(), finishedAt(r),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert boundary result %s", r.Boundary)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit boundary result")
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, variant, boundaries, status, succeeded, failed, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT boundary, stage, status, error, file, items, duration_ms, finished_at
		 FROM boundary_results WHERE run_id = ? ORDER BY seq`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list boundary results")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var b model.BoundaryResult
		var ms int64
		if err := rows.Scan(&b.Boundary, &b.Stage, &b.Status, &b.Error, &b.File, &b.Items, &ms, &b.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan boundary result")
		}
		b.Duration = time.Duration(ms) * time.Millisecond
		r.Results = append(r.Results, b)
	}
	return r, eris.Wrap(rows.Err(), "sqlite: boundary results iterate")
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, variant, boundaries, status, succeeded, failed, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Variant != "" {
		query += ` AND variant = ?`
		args = append(args, filter.Variant)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func finishedAt(r model.BoundaryResult) time.Time {
	if r.FinishedAt.IsZero() {
		return time.Now().UTC()
	}
	return r.FinishedAt.UTC()
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var boundariesJSON string

	err := row.Scan(&r.ID, &r.Variant, &boundariesJSON, &r.Status, &r.Succeeded, &r.Failed, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "sqlite: get run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if err := json.Unmarshal([]byte(boundariesJSON), &r.Boundaries); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal boundaries")
	}
	return &r, nil
}
