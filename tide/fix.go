package tide

// fixEpsilon nudges a rewritten score strictly below the floor it targets,
// and a synthetic injected detection strictly above 1.0, avoiding ties
// that would make the rewrite order-dependent.
const fixEpsilon = 1e-6

// FixErrors is the user-supplied-transform fix API of spec §4.6/§6: select
// errors with the predicate, then apply the main-error rewrite to any
// selected detection-attached error and the missed-fix injection to any
// selected MissedError. It returns the resulting APCurve; the Run's own
// curve is never mutated (FixEngine operates over a clone of the score
// vector, per spec §4.6/§5).
func (r *Run) FixErrors(selector func(Error) bool) *APCurve {
	selected := make([]Error, 0)
	for _, e := range r.errors {
		if selector(e) {
			selected = append(selected, e)
		}
	}
	return r.applyFix(selected)
}

func (r *Run) applyFix(selected []Error) *APCurve {
	samples := append([]apSample(nil), r.samples...)
	byID := make(map[DetectionID]int, len(samples))
	for i, s := range samples {
		byID[s.id] = i
	}

	floor := r.belowMinTP(samples)

	injected := make([]apSample, 0)
	for _, e := range selected {
		switch {
		case e.HasDetection:
			if idx, ok := byID[e.DetectionID]; ok {
				samples[idx].score = floor
			}
		case e.HasGT:
			gm, ok := r.state.gts[e.GroundTruthID]
			if !ok {
				continue
			}
			injected = append(injected, apSample{
				id:      syntheticDetectionID(gm.gt.ID),
				classID: gm.gt.ClassID,
				score:   1 + fixEpsilon,
				isTP:    true,
			})
		}
	}
	samples = append(samples, injected...)

	return computeAP(samples, r.groundTruthCount)
}

// belowMinTP computes a value strictly below the minimum TP score, per
// spec §4.6's "rewrite its score to a value strictly below the minimum
// score of any TP detection." With no TPs at all, any finite floor works
// since there is nothing above it to preserve the order of; -1 is used as
// a score floor below the [0,1] valid detection-score range.
func (r *Run) belowMinTP(samples []apSample) float64 {
	minTP, _, ok := scoreBounds(samples)
	if !ok {
		return -1
	}
	return minTP - fixEpsilon
}

func syntheticDetectionID(gt GroundTruthID) DetectionID {
	return DetectionID(-1 - int(gt))
}

// FixMainErrors implements Run.fix_main_errors(): ΔAP per main error kind
// (the five detection-level kinds plus MissedError, spec §3/§6), each an
// independent counterfactual against the Run's own AP.
func (r *Run) FixMainErrors() map[ErrorKind]float64 {
	kinds := []ErrorKind{
		ClassificationError, LocalizationError, BothError,
		DuplicateError, BackgroundError, MissedError,
	}
	out := make(map[ErrorKind]float64, len(kinds))
	for _, k := range kinds {
		out[k] = r.deltaFor(func(e Error) bool { return e.Kind == k })
	}
	return out
}

// FixSpecialErrors implements Run.fix_special_errors(): ΔAP for the two
// coarse FalsePositive/FalseNegative re-partitions.
func (r *Run) FixSpecialErrors() map[SpecialKind]float64 {
	out := make(map[SpecialKind]float64, 2)
	out[FalsePositiveError] = r.deltaFor(func(e Error) bool { return specialKindOf(e) == FalsePositiveError })
	out[FalseNegativeError] = r.deltaFor(func(e Error) bool { return specialKindOf(e) == FalseNegativeError })
	return out
}

func (r *Run) deltaFor(selector func(Error) bool) float64 {
	fixed := r.FixErrors(selector)
	return fixed.MAP - r.curve.MAP
}
