package main

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fiber-bom/internal/batch"
	"github.com/sells-group/fiber-bom/internal/bom"
	"github.com/sells-group/fiber-bom/internal/db"
	"github.com/sells-group/fiber-bom/internal/monitoring"
	"github.com/sells-group/fiber-bom/internal/resilience"
	"github.com/sells-group/fiber-bom/internal/spatial"
	"github.com/sells-group/fiber-bom/internal/store"
	"github.com/sells-group/fiber-bom/internal/workbook"
)

// bomEnv holds everything generate and serve need to run batches.
type bomEnv struct {
	Store   store.Store
	Pool    *pgxpool.Pool
	Metrics *monitoring.Metrics
	Driver  *batch.Driver
}

// Close releases resources held by the environment.
func (e *bomEnv) Close() {
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "fiber-bom.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initSpatialPool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, cfg.Spatial.DatabaseURL, db.PoolConfig{
		MaxConns:         cfg.Spatial.MaxConns,
		StatementTimeout: time.Duration(cfg.Spatial.StatementTimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, eris.Wrap(err, "connect spatial database")
	}
	return pool, nil
}

// scratchSchema names this process's workspace schema. The suffix keeps two
// processes on one database from clearing each other's scratch tables.
func scratchSchema(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// templateOverrides collects the configured template for every variant.
func templateOverrides() map[string]string {
	out := make(map[string]string)
	for _, name := range bom.Names() {
		if p := cfg.Templates.For(name); p != "" {
			out[name] = p
		}
	}
	return out
}

// newSource wraps the PostGIS plan fetcher with retry and a breaker.
func newSource(pool db.Pool) (batch.Source, error) {
	provider, err := spatial.NewPostGIS(pool, cfg.Spatial.LayerSchema, scratchSchema(cfg.Spatial.ScratchPrefix))
	if err != nil {
		return nil, err
	}
	fetcher := &spatial.Fetcher{Provider: provider, EraseToleranceFt: cfg.Spatial.EraseToleranceFt}
	return batch.NewResilientSource(fetcher, resilience.DefaultRetryConfig(), resilience.BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("spatial database breaker changed state",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}), nil
}

// initBOM sets up the store, the spatial pool and the batch driver.
// Callers should defer env.Close().
func initBOM(ctx context.Context, mode string) (*bomEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	pool, err := initSpatialPool(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	src, err := newSource(pool)
	if err != nil {
		pool.Close()
		_ = st.Close()
		return nil, err
	}

	metrics := monitoring.NewMetrics()
	return &bomEnv{
		Store:   st,
		Pool:    pool,
		Metrics: metrics,
		Driver: &batch.Driver{
			Source:    src,
			Writer:    workbook.NewXLSX(),
			Store:     st,
			Observer:  metrics,
			OutputDir: cfg.Output.Dir,
			Templates: templateOverrides(),
		},
	}, nil
}
