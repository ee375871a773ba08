package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fiber-bom/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  model.RunStatus `json:"status,omitempty"`
	Variant string          `json:"variant,omitempty"`
	Limit   int             `json:"limit,omitempty"`
	Offset  int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for batch run history.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, variant string, boundaries []string) (*model.Run, error)
	RecordBoundary(ctx context.Context, runID string, result model.BoundaryResult) error
	CompleteRun(ctx context.Context, runID string, status model.RunStatus) error
	// GetRun returns the run with its boundary results.
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	// ListRuns returns runs newest first, without boundary results.
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
