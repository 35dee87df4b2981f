package tide

import (
	"github.com/pkg/errors"
)

// Sentinel errors. The first five are input-validation failures, reported
// once at the ingest API boundary, never at evaluate time.
// ErrMismatchedEvaluator is the panic message of TIDE.AddRun for a Run
// from another evaluator; ErrMismatchedMode is returned by Evaluate when a
// DataSet's geometry mode differs from the requested mode.
var (
	ErrUnknownClass        = errors.New("class id was never declared")
	ErrInvalidScore        = errors.New("score outside [0, 1]")
	ErrNonPositiveBox      = errors.New("box width/height must be positive")
	ErrMixedGeometryMode   = errors.New("dataset mixes box and mask geometry")
	ErrNilMask             = errors.New("mask geometry is nil")
	ErrMismatchedEvaluator = errors.New("run was not produced by this evaluator")
	ErrMismatchedMode      = errors.New("dataset geometry mode does not match the evaluation mode")
)

// wrapf names the offending id in the wrapped message, following the
// teacher's errors.Wrap(err, "Can't update object tracker") idiom in
// blob_bbox.go.
func wrapf(err error, format string, args ...any) error {
	return errors.Wrapf(err, format, args...)
}
