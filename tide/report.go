package tide

import (
	"sync"

	"github.com/google/uuid"
)

// Run is the immutable outcome of one Evaluate call: the names of the two
// DataSets it was computed from, the chosen pos_threshold and mode, the Error list,
// and the resulting APCurve. FixEngine methods on Run derive new
// APCurves without mutating any of this.
type Run struct {
	evaluatorID uuid.UUID

	gtName   string
	predName string

	posThreshold float64
	mode         Mode

	state            *matchState
	errors           []Error
	curve            *APCurve
	samples          []apSample
	groundTruthCount map[ClassID]int
}

// Errors returns the read-only list of Error records attached during
// classification.
func (r *Run) Errors() []Error { return r.errors }

// AP returns the Run's overall mAP.
func (r *Run) AP() float64 { return r.curve.MAP }

// Curve returns the Run's full per-class APCurve.
func (r *Run) Curve() *APCurve { return r.curve }

// Mode returns the geometry mode this Run was evaluated under.
func (r *Run) Mode() Mode { return r.mode }

// PosThreshold returns the positive-match threshold this Run used.
func (r *Run) PosThreshold() float64 { return r.posThreshold }

// runKey identifies one (pos_threshold, mode) slot in a TIDE evaluator's
// registry.
type runKey struct {
	posThreshold float64
	mode         Mode
}

// TIDE is the evaluator: an owned registry of Runs keyed by DataSet name
// and (pos_threshold, mode), per spec §9's "owned registry keyed by
// DataSet name" note — not process-wide mutable state, the same shape as
// the teacher's IoUTracker.Objects being an owned field rather than a
// package-level map.
type TIDE struct {
	mu   sync.Mutex
	id   uuid.UUID
	runs map[string]map[runKey]*Run
}

// NewTIDE creates an empty evaluator.
func NewTIDE() *TIDE {
	return &TIDE{
		id:   uuid.New(),
		runs: make(map[string]map[runKey]*Run),
	}
}

// DefaultThresholds is the COCO-style {0.5, 0.55, ..., 0.95} threshold
// sweep of spec §4.7.
func DefaultThresholds() []float64 {
	out := make([]float64, 0, 10)
	for t := 0.5; t <= 0.95+1e-9; t += 0.05 {
		out = append(out, roundTo(t, 2))
	}
	return out
}

func roundTo(v float64, places int) float64 {
	scale := 1.0
	for i := 0; i < places; i++ {
		scale *= 10
	}
	return float64(int(v*scale+0.5)) / scale
}

// Evaluate runs the Matcher and ErrorClassifier for gt/pred at the given
// pos_threshold and mode, builds the AP curve, registers the resulting
// Run under pred's DataSet name, and returns it.
func (t *TIDE) Evaluate(gtDS, predDS *DataSet, posThreshold float64, mode Mode) (*Run, error) {
	if gtDS.modeSet && gtDS.mode != mode || predDS.modeSet && predDS.mode != mode {
		return nil, wrapf(ErrMismatchedMode, "evaluate: dataset mode does not match requested mode %s", mode)
	}

	state := match(gtDS, predDS, posThreshold, mode)
	errs := classify(state, predDS, posThreshold, backgroundThreshold)

	samples := buildSamples(state)
	gtCount := groundTruthCounts(gtDS)
	curve := computeAP(samples, gtCount)

	run := &Run{
		evaluatorID:      t.id,
		gtName:           gtDS.Name(),
		predName:         predDS.Name(),
		posThreshold:     posThreshold,
		mode:             mode,
		state:            state,
		errors:           errs,
		curve:            curve,
		samples:          samples,
		groundTruthCount: gtCount,
	}
	t.AddRun(predDS.Name(), run)
	return run, nil
}

// Evaluate is the package-level convenience form of spec §6's
// `evaluate(gt_dataset, pred_dataset, pos_threshold, mode) → Run`, for
// callers that only need a single Run and not the named registry —
// equivalent to NewTIDE().Evaluate(...).
func Evaluate(gtDS, predDS *DataSet, posThreshold float64, mode Mode) (*Run, error) {
	return NewTIDE().Evaluate(gtDS, predDS, posThreshold, mode)
}

// AddRun registers a Run under a DataSet name, keyed by its own
// (pos_threshold, mode). Panics if the Run was produced by a different
// evaluator — the "programmer error" case of spec §7.
func (t *TIDE) AddRun(name string, r *Run) {
	if r.evaluatorID != t.id {
		panic(ErrMismatchedEvaluator.Error() + ": run for dataset " + name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.runs[name] == nil {
		t.runs[name] = make(map[runKey]*Run)
	}
	t.runs[name][runKey{posThreshold: r.posThreshold, mode: r.mode}] = r
}

// Summary is the per-DataSet-name result surfaced by Summarize(): the AP,
// the full (never sparse) dict of main-error names to ΔAP, and the full
// dict of special-error names to ΔAP.
type Summary struct {
	AP      float64
	Main    map[ErrorKind]float64
	Special map[SpecialKind]float64
}

// Summarize surfaces, per DataSet name, the single most recently added
// Run's AP plus its fix_main_errors/fix_special_errors dicts.
func (t *TIDE) Summarize() map[string]Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]Summary, len(t.runs))
	for name, byKey := range t.runs {
		var latest *Run
		for _, r := range byKey {
			latest = r
		}
		if latest == nil {
			continue
		}
		out[name] = Summary{
			AP:      latest.AP(),
			Main:    latest.FixMainErrors(),
			Special: latest.FixSpecialErrors(),
		}
	}
	return out
}

// SummarizeAll evaluates gt/pred at every threshold in DefaultThresholds
// (run concurrently across a small worker pool — per-threshold evaluation
// is a pure function of its inputs, so output never depends on
// completion order) and averages AP/ΔAPs across thresholds, the
// "full COCO-style summary" of spec §4.7.
func (t *TIDE) SummarizeAll(gtDS, predDS *DataSet, mode Mode) (Summary, error) {
	thresholds := DefaultThresholds()

	// Freeze both DataSets up front so the concurrent Evaluate calls below
	// only read them.
	gtDS.freeze()
	predDS.freeze()

	type result struct {
		run *Run
		err error
	}
	results := make([]result, len(thresholds))

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := len(thresholds)
	if workers > 8 {
		workers = 8
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				run, err := t.Evaluate(gtDS, predDS, thresholds[i], mode)
				results[i] = result{run: run, err: err}
			}
		}()
	}
	for i := range thresholds {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	aps := make([]float64, 0, len(thresholds))
	mainSums := make(map[ErrorKind]float64)
	specialSums := make(map[SpecialKind]float64)
	n := 0
	for _, res := range results {
		if res.err != nil {
			return Summary{}, res.err
		}
		aps = append(aps, res.run.AP())
		for k, v := range res.run.FixMainErrors() {
			mainSums[k] += v
		}
		for k, v := range res.run.FixSpecialErrors() {
			specialSums[k] += v
		}
		n++
	}

	summary := Summary{Main: make(map[ErrorKind]float64), Special: make(map[SpecialKind]float64)}
	if n == 0 {
		return summary, nil
	}
	sum := 0.0
	for _, v := range aps {
		sum += v
	}
	summary.AP = sum / float64(n)
	for k, v := range mainSums {
		summary.Main[k] = v / float64(n)
	}
	for k, v := range specialSums {
		summary.Special[k] = v / float64(n)
	}
	return summary, nil
}

func buildSamples(state *matchState) []apSample {
	out := make([]apSample, 0, len(state.dets))
	for id, dm := range state.dets {
		if dm.suppressed {
			continue
		}
		out = append(out, apSample{
			id:      id,
			classID: dm.det.ClassID,
			score:   dm.det.Score,
			isTP:    dm.matched,
		})
	}
	return out
}

func groundTruthCounts(gtDS *DataSet) map[ClassID]int {
	counts := make(map[ClassID]int)
	for _, gt := range gtDS.GroundTruths() {
		if gt.Ignore {
			continue
		}
		counts[gt.ClassID]++
	}
	return counts
}
