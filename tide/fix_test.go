package tide

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildMixedRun(t *testing.T) *Run {
	t.Helper()
	gt := NewDataSet("gt", 100)
	gt.AddClass(1, "c1")
	gt.AddClass(2, "c2")
	_, err := gt.AddGroundTruth(0, 1, box(10, 10, 50, 50), false)
	require.NoError(t, err)

	pred := NewDataSet("pred", 100)
	pred.AddClass(1, "c1")
	pred.AddClass(2, "c2")
	_, err = pred.AddDetection(0, 2, 0.95, box(10, 10, 50, 50)) // classification error
	require.NoError(t, err)
	_, err = pred.AddDetection(0, 1, 0.9, box(10, 10, 50, 50)) // TP
	require.NoError(t, err)
	_, err = pred.AddDetection(0, 1, 0.85, box(10, 10, 50, 50)) // duplicate
	require.NoError(t, err)
	_, err = pred.AddDetection(1, 1, 0.8, box(200, 200, 20, 20)) // background
	require.NoError(t, err)

	run, err := Evaluate(gt, pred, 0.5, BOX)
	require.NoError(t, err)
	return run
}

// Spec §6's monotone-fix invariant: fixing any non-empty selection of
// errors never lowers AP relative to the unfixed Run.
func TestFixMainErrorsAreMonotoneNonNegative(t *testing.T) {
	run := buildMixedRun(t)
	for kind, delta := range run.FixMainErrors() {
		assert.GreaterOrEqual(t, delta, 0.0, "ΔAP for %s must not be negative", kind)
	}
	for kind, delta := range run.FixSpecialErrors() {
		assert.GreaterOrEqual(t, delta, 0.0, "ΔAP for %s must not be negative", kind)
	}
}

// Fixing a union of disjoint error sets must not score below fixing either
// one alone - the marginal value of fixing more errors is never negative.
func TestFixUnionOfErrorsAtLeastAsGoodAsEither(t *testing.T) {
	run := buildMixedRun(t)

	onlyCls := run.FixErrors(func(e Error) bool { return e.Kind == ClassificationError }).MAP
	onlyBkg := run.FixErrors(func(e Error) bool { return e.Kind == BackgroundError }).MAP
	union := run.FixErrors(func(e Error) bool {
		return e.Kind == ClassificationError || e.Kind == BackgroundError
	}).MAP

	assert.GreaterOrEqual(t, union, onlyCls-eps)
	assert.GreaterOrEqual(t, union, onlyBkg-eps)
}

func TestFixedAPCurveStaysWithinBounds(t *testing.T) {
	run := buildMixedRun(t)
	fixed := run.FixErrors(func(e Error) bool { return true })
	assert.GreaterOrEqual(t, fixed.MAP, 0.0)
	assert.LessOrEqual(t, fixed.MAP, 1.0)
}

// FixMainErrors/FixSpecialErrors must return a fully-keyed map even when a
// given error kind never occurred in the Run (spec's "dict is total, not
// sparse" requirement for Summary consumers).
func TestFixMainErrorsMapIsFullyKeyed(t *testing.T) {
	run := buildMixedRun(t)
	main := run.FixMainErrors()
	for _, k := range []ErrorKind{ClassificationError, LocalizationError, BothError, DuplicateError, BackgroundError, MissedError} {
		_, ok := main[k]
		assert.True(t, ok, "missing key %s", k)
	}
	special := run.FixSpecialErrors()
	for _, k := range []SpecialKind{FalsePositiveError, FalseNegativeError} {
		_, ok := special[k]
		assert.True(t, ok, "missing key %s", k)
	}
}

// Re-running FixErrors with the same selector twice must be deterministic
// and must never mutate the Run's own curve.
func TestFixErrorsIsDeterministicAndNonMutating(t *testing.T) {
	run := buildMixedRun(t)
	before := run.AP()

	first := run.FixErrors(func(e Error) bool { return e.Kind == DuplicateError })
	second := run.FixErrors(func(e Error) bool { return e.Kind == DuplicateError })

	assert.Equal(t, first.MAP, second.MAP)
	assert.Equal(t, before, run.AP(), "FixErrors must not mutate the Run's own curve")
}

func TestFixMissedErrorInjectsSyntheticDetection(t *testing.T) {
	gt := NewDataSet("gt", 100)
	gt.AddClass(1, "c1")
	_, err := gt.AddGroundTruth(0, 1, box(10, 10, 50, 50), false)
	require.NoError(t, err)
	_, err = gt.AddGroundTruth(1, 1, box(10, 10, 50, 50), false)
	require.NoError(t, err)

	pred := NewDataSet("pred", 100)
	pred.AddClass(1, "c1")
	_, err = pred.AddDetection(0, 1, 0.9, box(10, 10, 50, 50))
	require.NoError(t, err)
	// image 1's GT is never detected.

	run, err := Evaluate(gt, pred, 0.5, BOX)
	require.NoError(t, err)

	missedDelta := run.FixMainErrors()[MissedError]
	assert.Greater(t, missedDelta, 0.0)
}
