// Package batch turns a list of boundary ids into one BOM workbook each.
package batch

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fiber-bom/internal/bom"
	"github.com/sells-group/fiber-bom/internal/feature"
	"github.com/sells-group/fiber-bom/internal/model"
	"github.com/sells-group/fiber-bom/internal/spatial"
	"github.com/sells-group/fiber-bom/internal/store"
	"github.com/sells-group/fiber-bom/internal/workbook"
)

// Source produces the feature set of one boundary.
type Source interface {
	Fetch(ctx context.Context, plan spatial.Plan, boundary string) (*feature.Set, error)
}

// Observer receives timing and outcome events. monitoring.Metrics implements it.
type Observer interface {
	ObserveStage(variant string, stage model.Stage, d time.Duration)
	ObserveBoundary(variant string, r model.BoundaryResult)
	ObserveBatch(variant string, status model.RunStatus)
}

// TemplateChecker is implemented by writers that can verify a template
// before any boundary is processed.
type TemplateChecker interface {
	CheckTemplate(path string, sheets ...string) error
}

// Driver runs variants over boundaries, one boundary at a time.
type Driver struct {
	Source Source
	Writer workbook.Writer
	// Store records run history when set.
	Store store.Store
	// Observer receives metrics when set.
	Observer Observer
	// OutputDir receives one workbook per successful boundary.
	OutputDir string
	// Templates overrides a variant's template path by variant name.
	Templates map[string]string
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d *Driver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// TemplateFor returns the template path used for v.
func (d *Driver) TemplateFor(v bom.Variant) string {
	if p, ok := d.Templates[v.Name]; ok && p != "" {
		return p
	}
	return v.Template
}

// Run processes boundaries in order. A boundary that fails is recorded in
// the summary and the batch moves on. The returned error is non-nil only
// when the batch could not start (a *FatalConfigError) or ctx was cancelled;
// in the latter case the partial summary is returned too.
func (d *Driver) Run(ctx context.Context, v bom.Variant, boundaries []string) (*Summary, error) {
	log := zap.L().With(zap.String("component", "batch"), zap.String("variant", v.Name))

	boundaries = NormalizeBoundaries(boundaries)
	tmpl := d.TemplateFor(v)
	if err := d.preflight(v, tmpl, boundaries); err != nil {
		return nil, err
	}

	sum := &Summary{Variant: v.Name, Template: tmpl, OutputDir: d.OutputDir, Started: d.now()}
	if d.Store != nil {
		run, err := d.Store.CreateRun(ctx, v.Name, boundaries)
		if err != nil {
			log.Warn("batch: failed to create run", zap.Error(err))
		} else {
			sum.RunID = run.ID
		}
	}
	log.Info("batch: starting", zap.String("run_id", sum.RunID), zap.Int("boundaries", len(boundaries)))

	claims := workbook.Claims{}
	var ctxErr error
	for _, b := range boundaries {
		var res model.BoundaryResult
		if ctxErr = ctx.Err(); ctxErr != nil {
			res = model.BoundaryResult{
				Boundary:   b,
				Stage:      model.StageIdle,
				Status:     model.BoundaryErrored,
				Error:      ctxErr.Error(),
				Err:        ctxErr,
				FinishedAt: d.now(),
			}
		} else {
			res = d.process(ctx, log, v, tmpl, b, claims)
		}
		sum.add(res)

		if d.Observer != nil {
			d.Observer.ObserveBoundary(v.Name, res)
		}
		if d.Store != nil && sum.RunID != "" {
			if err := d.Store.RecordBoundary(ctx, sum.RunID, res); err != nil {
				log.Warn("batch: failed to record boundary", zap.String("boundary", b), zap.Error(err))
			}
		}
	}

	sum.Status = model.StatusFor(sum.Succeeded, sum.Failed)
	sum.Duration = d.now().Sub(sum.Started)
	if d.Observer != nil {
		d.Observer.ObserveBatch(v.Name, sum.Status)
	}
	if d.Store != nil && sum.RunID != "" {
		// the run row is closed even when ctx is done
		if err := d.Store.CompleteRun(context.WithoutCancel(ctx), sum.RunID, sum.Status); err != nil {
			log.Warn("batch: failed to complete run", zap.Error(err))
		}
	}

	log.Info("batch: finished",
		zap.String("run_id", sum.RunID),
		zap.String("status", string(sum.Status)),
		zap.Int("succeeded", sum.Succeeded),
		zap.Int("failed", sum.Failed),
		zap.Int64("duration_ms", sum.Duration.Milliseconds()),
	)

	if ctxErr != nil {
		return sum, eris.Wrap(ctxErr, "batch: cancelled")
	}
	return sum, nil
}

func (d *Driver) preflight(v bom.Variant, tmpl string, boundaries []string) error {
	switch {
	case d.Source == nil:
		return &FatalConfigError{Reason: "no feature source configured"}
	case d.Writer == nil:
		return &FatalConfigError{Reason: "no workbook writer configured"}
	case len(boundaries) == 0:
		return &FatalConfigError{Reason: "no boundaries given"}
	case tmpl == "":
		return &FatalConfigError{Reason: "variant " + v.Name + " has no template"}
	}

	if c, ok := d.Writer.(TemplateChecker); ok {
		if err := c.CheckTemplate(tmpl, sheetsOf(v)...); err != nil {
			return &FatalConfigError{Reason: "template unusable", Err: err}
		}
	}

	dir := d.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &FatalConfigError{Reason: "output directory unusable", Err: err}
	}
	return nil
}

// process walks one boundary through fetch, aggregate and write. A panic in
// any stage is recovered and reported as that stage's error.
func (d *Driver) process(ctx context.Context, log *zap.Logger, v bom.Variant, tmpl, boundary string, claims workbook.Claims) model.BoundaryResult {
	log = log.With(zap.String("boundary", boundary))
	start := d.now()
	res := model.BoundaryResult{Boundary: boundary, Stage: model.StageIdle}

	stage := func(s model.Stage, fn func() error) (err error) {
		res.Stage = s
		t := d.now()
		defer func() {
			if r := recover(); r != nil {
				err = stagePanic(s, boundary, res.File, r)
			}
			if d.Observer != nil {
				d.Observer.ObserveStage(v.Name, s, d.now().Sub(t))
			}
		}()
		return fn()
	}

	var (
		set   *feature.Set
		items []bom.LineItem
	)
	err := stage(model.StageFetchingFeatures, func() error {
		var ferr error
		set, ferr = d.Source.Fetch(ctx, v.Plan, boundary)
		if ferr != nil {
			return &FetchError{Boundary: boundary, Err: ferr}
		}
		return nil
	})
	if err == nil {
		err = stage(model.StageAggregating, func() error {
			items = v.Apply(boundary, set)
			return nil
		})
	}
	if err == nil {
		res.File = workbook.OutputPath(d.OutputDir, boundary, d.now())
		err = stage(model.StageWriting, func() error {
			if cerr := claims.Claim(res.File, boundary); cerr != nil {
				return &WriteError{Boundary: boundary, Path: res.File, Err: cerr}
			}
			if werr := d.Writer.Write(tmpl, res.File, items); werr != nil {
				return &WriteError{Boundary: boundary, Path: res.File, Err: werr}
			}
			return nil
		})
	}

	res.Items = len(items)
	res.FinishedAt = d.now()
	res.Duration = res.FinishedAt.Sub(start)
	if err != nil {
		res.Stage = StageOf(err)
		res.Status = model.BoundaryErrored
		res.Error = err.Error()
		res.Err = err
		res.File = ""
		log.Error("batch: boundary failed",
			zap.String("stage", string(res.Stage)),
			zap.Int64("duration_ms", res.Duration.Milliseconds()),
			zap.Error(err),
		)
		return res
	}

	res.Stage = model.StageDone
	res.Status = model.BoundaryOK
	log.Info("batch: boundary complete",
		zap.String("file", res.File),
		zap.Int("items", res.Items),
		zap.Int64("duration_ms", res.Duration.Milliseconds()),
	)
	return res
}

// stagePanic converts a value recovered in stage s into that stage's error.
func stagePanic(s model.Stage, boundary, path string, r any) error {
	switch s {
	case model.StageFetchingFeatures:
		return &FetchError{Boundary: boundary, Err: panicErr(r)}
	case model.StageWriting:
		return &WriteError{Boundary: boundary, Path: path, Err: panicErr(r)}
	default:
		return &AggregationError{Boundary: boundary, Panic: r}
	}
}

func panicErr(r any) error {
	if err, ok := r.(error); ok {
		return eris.Wrap(err, "panic")
	}
	return eris.Errorf("panic: %v", r)
}

func sheetsOf(v bom.Variant) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	add(v.Sheet)
	for _, e := range v.Entries {
		add(e.Sheet)
	}
	return out
}
