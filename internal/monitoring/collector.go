package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fiber-bom/internal/model"
	"github.com/sells-group/fiber-bom/internal/store"
)

// MetricsSnapshot holds a point-in-time view of batch health.
type MetricsSnapshot struct {
	// Batch runs within the lookback window.
	RunsTotal    int `json:"runs_total"`
	RunsComplete int `json:"runs_complete"`
	RunsPartial  int `json:"runs_partial"`
	RunsFailed   int `json:"runs_failed"`
	RunsRunning  int `json:"runs_running"`

	// Boundaries across those runs.
	BoundariesSucceeded int     `json:"boundaries_succeeded"`
	BoundariesFailed    int     `json:"boundaries_failed"`
	BoundaryFailRate    float64 `json:"boundary_fail_rate"`

	// Failures per variant, and the runs that lost at least one boundary.
	FailedByVariant map[string]int `json:"failed_by_variant,omitempty"`
	FailingRuns     []RunRef       `json:"failing_runs,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunRef identifies a BOM run in snapshots and alert payloads.
type RunRef struct {
	ID         string          `json:"id"`
	Variant    string          `json:"variant"`
	Status     model.RunStatus `json:"status"`
	Boundaries int             `json:"boundaries"`
	Failed     int             `json:"failed"`
}

// maxFailingRuns caps FailingRuns so a bad day does not flood the webhook.
const maxFailingRuns = 20

// RunLister is the part of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run store.
type Collector struct {
	store RunLister
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st RunLister) *Collector {
	return &Collector{store: st, now: time.Now}
}

const collectLimit = 10000

// Collect gathers a snapshot of batch metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: collectLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		// Runs are newest first.
		if r.CreatedAt.Before(cutoff) {
			break
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusPartial:
			snap.RunsPartial++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		snap.BoundariesSucceeded += r.Succeeded
		snap.BoundariesFailed += r.Failed

		if r.Failed > 0 || r.Status == model.RunStatusFailed {
			if snap.FailedByVariant == nil {
				snap.FailedByVariant = map[string]int{}
			}
			snap.FailedByVariant[r.Variant] += r.Failed
			if len(snap.FailingRuns) < maxFailingRuns {
				snap.FailingRuns = append(snap.FailingRuns, RunRef{
					ID: r.ID, Variant: r.Variant, Status: r.Status,
					Boundaries: len(r.Boundaries), Failed: r.Failed,
				})
			}
		}
	}

	if finished := snap.BoundariesSucceeded + snap.BoundariesFailed; finished > 0 {
		snap.BoundaryFailRate = float64(snap.BoundariesFailed) / float64(finished)
	}
	return snap, nil
}
