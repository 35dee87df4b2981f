package tide

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// apSample is one ranked item in the AP curve's score-ordered walk: a
// surviving (non-ignore-suppressed) detection together with whether the
// Matcher judged it a true positive. FixEngine builds modified slices of
// these (rewritten scores, synthetic injected TPs) and feeds them back
// through computeAP, so APCurve itself never needs to know about errors
// or fixes.
type apSample struct {
	id      DetectionID
	classID ClassID
	score   float64
	isTP    bool
}

// ClassAP holds one class's precision-recall curve summary.
type ClassAP struct {
	ClassID        ClassID
	GroundTruths   int
	Recalls        []float64
	Precisions     []float64 // right-envelope, monotonically non-increasing
	AveragePrecision float64
}

// APCurve is the per-class and overall AP result of spec §4.5.
type APCurve struct {
	PerClass map[ClassID]*ClassAP
	MAP      float64
}

// computeAP implements spec §4.5: per class, rank surviving detections by
// score descending, walk cumulative TP/FP, envelope precision from the
// right, integrate via trapezoidal-at-recall-step. Classes with P=0 are
// omitted from the mean entirely, not zero-weighted.
func computeAP(samples []apSample, groundTruthCount map[ClassID]int) *APCurve {
	byClass := make(map[ClassID][]apSample)
	for _, s := range samples {
		byClass[s.classID] = append(byClass[s.classID], s)
	}

	curve := &APCurve{PerClass: make(map[ClassID]*ClassAP)}

	classIDs := make([]ClassID, 0, len(groundTruthCount))
	seen := make(map[ClassID]struct{})
	for c := range groundTruthCount {
		classIDs = append(classIDs, c)
		seen[c] = struct{}{}
	}
	for c := range byClass {
		if _, ok := seen[c]; !ok {
			classIDs = append(classIDs, c)
		}
	}
	sort.Slice(classIDs, func(i, j int) bool { return classIDs[i] < classIDs[j] })

	apValues := make([]float64, 0, len(classIDs))
	for _, c := range classIDs {
		p := groundTruthCount[c]
		if p == 0 {
			// Omitted from mAP entirely — load-bearing for datasets with
			// images that have no GTs of this class (spec §4.5/§7).
			continue
		}
		classAP := computeClassAP(c, byClass[c], p)
		curve.PerClass[c] = classAP
		apValues = append(apValues, classAP.AveragePrecision)
	}

	if len(apValues) == 0 {
		curve.MAP = 0
		return curve
	}
	curve.MAP = stat.Mean(apValues, nil)
	return curve
}

func computeClassAP(classID ClassID, items []apSample, groundTruths int) *ClassAP {
	sorted := append([]apSample(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].score != sorted[j].score {
			return sorted[i].score > sorted[j].score
		}
		return sorted[i].id < sorted[j].id
	})

	n := len(sorted)
	recalls := make([]float64, n)
	precisions := make([]float64, n)
	tp, fp := 0, 0
	for i, s := range sorted {
		if s.isTP {
			tp++
		} else {
			fp++
		}
		precisions[i] = float64(tp) / float64(tp+fp)
		recalls[i] = float64(tp) / float64(groundTruths)
	}

	envelope := make([]float64, n)
	running := 0.0
	for i := n - 1; i >= 0; i-- {
		if precisions[i] > running {
			running = precisions[i]
		}
		envelope[i] = running
	}

	ap := 0.0
	if n > 0 {
		x := make([]float64, 0, n+1)
		y := make([]float64, 0, n+1)
		x = append(x, 0)
		y = append(y, envelope[0])
		x = append(x, recalls...)
		y = append(y, envelope...)
		ap = integrate.Trapezoidal(x, y)
	}

	return &ClassAP{
		ClassID:          classID,
		GroundTruths:     groundTruths,
		Recalls:          recalls,
		Precisions:       envelope,
		AveragePrecision: ap,
	}
}

// scoreBounds returns the min and max score among samples flagged isTP,
// used by FixEngine to compute the "strictly below the minimum TP score"
// rewrite target of spec §4.6. ok is false when there are no TPs at all.
func scoreBounds(samples []apSample) (min, max float64, ok bool) {
	tpScores := make([]float64, 0, len(samples))
	for _, s := range samples {
		if s.isTP {
			tpScores = append(tpScores, s.score)
		}
	}
	if len(tpScores) == 0 {
		return 0, 0, false
	}
	return floats.Min(tpScores), floats.Max(tpScores), true
}
