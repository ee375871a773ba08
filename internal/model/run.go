package model

import "time"

// Stage is where a boundary is in the batch lifecycle. A failed boundary
// keeps the stage it failed in; BoundaryStatus records that it errored.
type Stage string

const (
	StageIdle             Stage = "idle"
	StageFetchingFeatures Stage = "fetching_features"
	StageAggregating      Stage = "aggregating"
	StageWriting          Stage = "writing"
	StageDone             Stage = "done"
)

// BoundaryStatus is the outcome of one boundary.
type BoundaryStatus string

const (
	BoundaryOK      BoundaryStatus = "ok"
	BoundaryErrored BoundaryStatus = "errored"
)

// RunStatus represents the current state of a batch run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete" // every boundary succeeded
	RunStatusPartial  RunStatus = "partial"  // some boundaries failed
	RunStatusFailed   RunStatus = "failed"   // no boundary succeeded, or the run aborted
)

// StatusFor derives the final run status from boundary outcomes.
func StatusFor(succeeded, failed int) RunStatus {
	switch {
	case failed == 0:
		return RunStatusComplete
	case succeeded == 0:
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}

// BoundaryResult records what happened to one boundary of a batch.
type BoundaryResult struct {
	Boundary string `json:"boundary" yaml:"boundary"`
	// Stage is the last stage reached; for errored results, the failing one.
	Stage      Stage          `json:"stage" yaml:"stage"`
	Status     BoundaryStatus `json:"status" yaml:"status"`
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
	File       string         `json:"file,omitempty" yaml:"file,omitempty"`
	Items      int            `json:"items" yaml:"items"`
	Duration   time.Duration  `json:"duration" yaml:"duration"`
	FinishedAt time.Time      `json:"finished_at" yaml:"finished_at"`

	Err error `json:"-" yaml:"-"`
}

// OK reports whether the boundary produced a BOM.
func (r BoundaryResult) OK() bool { return r.Status == BoundaryOK }

// Run is one batch invocation for a variant over a list of boundaries.
type Run struct {
	ID         string           `json:"id"`
	Variant    string           `json:"variant"`
	Boundaries []string         `json:"boundaries"`
	Status     RunStatus        `json:"status"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Results    []BoundaryResult `json:"results,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}
