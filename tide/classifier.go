package tide

import "sort"

// ErrorKind is one of the six main error-variant tags of spec §3, modelled as
// a string enum rather than subclasses of a common base — pattern
// matching over the tag replaces isinstance dispatch (spec §9).
type ErrorKind string

// Main error kinds: mutually exclusive, attached to an unmatched
// detection or an unmatched ground truth.
const (
	ClassificationError ErrorKind = "ClassificationError"
	LocalizationError   ErrorKind = "LocalizationError"
	BothError           ErrorKind = "BothError"
	DuplicateError      ErrorKind = "DuplicateError"
	BackgroundError     ErrorKind = "BackgroundError"
	MissedError         ErrorKind = "MissedError"
)

// SpecialKind is one of the two coarse-grained re-partitions of the main
// error kinds.
type SpecialKind string

const (
	FalsePositiveError SpecialKind = "FalsePositiveError"
	FalseNegativeError SpecialKind = "FalseNegativeError"
)

// mainShortNames maps the stable enum names to the summary-table short names
// of spec §6.
var mainShortNames = map[ErrorKind]string{
	ClassificationError: "Cls",
	LocalizationError:   "Loc",
	BothError:           "Both",
	DuplicateError:      "Dupe",
	BackgroundError:     "Bkg",
	MissedError:         "Miss",
}

var specialShortNames = map[SpecialKind]string{
	FalsePositiveError: "FalsePos",
	FalseNegativeError: "FalseNeg",
}

// ShortName returns the summary-table abbreviation for a main error kind.
func (k ErrorKind) ShortName() string { return mainShortNames[k] }

// ShortName returns the summary-table abbreviation for a special kind.
func (k SpecialKind) ShortName() string { return specialShortNames[k] }

// Error is a tagged record attaching an attribution to a detection or a
// ground truth. Exactly one of DetectionID/GroundTruthID is meaningful,
// selected by Kind: detection-attached for the five non-missed main
// kinds, ground-truth-attached for MissedError.
type Error struct {
	Kind ErrorKind

	DetectionID   DetectionID
	HasDetection  bool
	GroundTruthID GroundTruthID
	HasGT         bool

	ImageID ImageID
	ClassID ClassID
}

// backgroundThreshold is the lower "background threshold" b of spec §3,
// used against pos_threshold t (t > b always holds for valid runs).
const backgroundThreshold = 0.1

// classify turns Matcher output into the Error list, per the decision
// order of spec §4.4: Duplicate, then Classification, then Both, then
// Localization, then Background for unmatched detections; MissedError for
// any non-ignore GT left unmatched and not "named" by a Cls/Both/Loc
// error.
func classify(state *matchState, predDS *DataSet, posThreshold, backgroundThresh float64) []Error {
	dets := make([]Detection, 0, len(state.dets))
	for _, dm := range state.dets {
		dets = append(dets, dm.det)
	}
	sort.Slice(dets, func(i, j int) bool {
		a, b := dets[i], dets[j]
		if a.ImageID != b.ImageID {
			return a.ImageID < b.ImageID
		}
		if a.ClassID != b.ClassID {
			return a.ClassID < b.ClassID
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.ID < b.ID
	})

	errs := make([]Error, 0)
	named := make(map[GroundTruthID]struct{})

	for _, d := range dets {
		dm := state.dets[d.ID]
		if dm.matched || dm.suppressed {
			continue
		}

		switch {
		case dm.isDuplicate:
			errs = append(errs, Error{
				Kind: DuplicateError, DetectionID: d.ID, HasDetection: true,
				ImageID: d.ImageID, ClassID: d.ClassID,
			})

		case dm.hasAnyClassGT && dm.bestAnyClassIoU >= posThreshold && anyClassDiffers(state, dm):
			errs = append(errs, Error{
				Kind: ClassificationError, DetectionID: d.ID, HasDetection: true,
				ImageID: d.ImageID, ClassID: d.ClassID,
			})
			named[dm.bestAnyClassGT] = struct{}{}

		case dm.hasAnyClassGT && inBand(dm.bestAnyClassIoU, backgroundThresh, posThreshold) && anyClassDiffers(state, dm):
			errs = append(errs, Error{
				Kind: BothError, DetectionID: d.ID, HasDetection: true,
				ImageID: d.ImageID, ClassID: d.ClassID,
			})
			named[dm.bestAnyClassGT] = struct{}{}

		case dm.hasSameClassGT && inBand(dm.bestSameClassIoU, backgroundThresh, posThreshold):
			errs = append(errs, Error{
				Kind: LocalizationError, DetectionID: d.ID, HasDetection: true,
				ImageID: d.ImageID, ClassID: d.ClassID,
			})
			named[dm.bestSameClassGT] = struct{}{}

		default:
			errs = append(errs, Error{
				Kind: BackgroundError, DetectionID: d.ID, HasDetection: true,
				ImageID: d.ImageID, ClassID: d.ClassID,
			})
		}
	}

	gts := make([]GroundTruth, 0, len(state.gts))
	for _, gm := range state.gts {
		gts = append(gts, gm.gt)
	}
	sort.Slice(gts, func(i, j int) bool { return gts[i].ID < gts[j].ID })

	for _, gt := range gts {
		gm := state.gts[gt.ID]
		if gm.suppressed || gm.matched {
			continue
		}
		if _, ok := named[gt.ID]; ok {
			continue
		}
		errs = append(errs, Error{
			Kind: MissedError, GroundTruthID: gt.ID, HasGT: true,
			ImageID: gt.ImageID, ClassID: gt.ClassID,
		})
	}

	return errs
}

func anyClassDiffers(state *matchState, dm *detMatch) bool {
	gm, ok := state.gts[dm.bestAnyClassGT]
	if !ok {
		return false
	}
	return gm.gt.ClassID != dm.det.ClassID
}

func inBand(iou, lo, hi float64) bool {
	return iou >= lo && iou < hi
}

// specialKindOf coarsens a main error kind into its special re-partition,
// per spec §3's FalsePositiveError/FalseNegativeError definitions.
func specialKindOf(e Error) SpecialKind {
	if e.Kind == MissedError {
		return FalseNegativeError
	}
	return FalsePositiveError
}
