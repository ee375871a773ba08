package batch

import (
	"errors"
	"fmt"

	"github.com/sells-group/fiber-bom/internal/model"
)

// FetchError means the spatial provider could not produce the features of a
// boundary, e.g. because the boundary id matches no polygon.
type FetchError struct {
	Boundary string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Boundary, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AggregationError wraps a panic raised while a variant table ran.
type AggregationError struct {
	Boundary string
	Panic    any
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate %s: %v", e.Boundary, e.Panic)
}

// Unwrap exposes the panic value when it was an error.
func (e *AggregationError) Unwrap() error {
	err, _ := e.Panic.(error)
	return err
}

// WriteError means the BOM workbook could not be saved.
type WriteError struct {
	Boundary string
	Path     string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s to %s: %v", e.Boundary, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// FatalConfigError stops a batch before any boundary is processed.
type FatalConfigError struct {
	Reason string
	Err    error
}

func (e *FatalConfigError) Error() string {
	if e.Err == nil {
		return "batch: " + e.Reason
	}
	return fmt.Sprintf("batch: %s: %v", e.Reason, e.Err)
}

func (e *FatalConfigError) Unwrap() error { return e.Err }

// IsFatal reports whether err is, or wraps, a FatalConfigError.
func IsFatal(err error) bool {
	var fe *FatalConfigError
	return errors.As(err, &fe)
}

// StageOf returns the stage a per-boundary error belongs to.
func StageOf(err error) model.Stage {
	var (
		fe *FetchError
		ae *AggregationError
		we *WriteError
	)
	switch {
	case errors.As(err, &fe):
		return model.StageFetchingFeatures
	case errors.As(err, &ae):
		return model.StageAggregating
	case errors.As(err, &we):
		return model.StageWriting
	default:
		return model.StageIdle
	}
}
