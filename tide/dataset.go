package tide

import (
	"sort"
	"strconv"
)

// classKey identifies an (image, class) pair, the unit the Matcher and
// APCurve both iterate over.
type classKey struct {
	Image ImageID
	Class ClassID
}

// DataSet is an incrementally-built, immutable-after-freeze container of
// detections or ground truths, their classes, and the per-image/per-class
// indices the rest of the engine walks. A DataSet is built with
// AddDetection/AddGroundTruth/AddClass calls and frozen implicitly on
// first read (Evaluate, or any accessor below that returns detections or
// ground truths). Adding an item after a read un-freezes it; the indices
// and the max_dets cap are re-applied on the next read.
type DataSet struct {
	name    string
	maxDets int

	mode    Mode
	modeSet bool

	classes map[ClassID]string

	detections   []Detection
	groundTruths []GroundTruth

	frozen       bool
	byKeyDet     map[classKey][]int
	byKeyGT      map[classKey][]int
	allImageIDs  map[ImageID]struct{}
	allClassIDs  map[ClassID]struct{}
}

// NewDataSet creates an empty, named DataSet. maxDets caps the number of
// detections retained per image (ignored for ground truths); a non-
// positive maxDets means "unbounded."
func NewDataSet(name string, maxDets int) *DataSet {
	return &DataSet{
		name:        name,
		maxDets:     maxDets,
		classes:     make(map[ClassID]string),
		allImageIDs: make(map[ImageID]struct{}),
		allClassIDs: make(map[ClassID]struct{}),
	}
}

// Name returns the DataSet's name, used as a key in RunReport summaries.
func (ds *DataSet) Name() string {
	return ds.name
}

// AddClass declares a class id/name pair. Classes referenced by a
// detection or ground truth before being declared are rejected at ingest.
// Declaring the same id twice overwrites its name.
func (ds *DataSet) AddClass(id ClassID, name string) {
	if name == "" {
		name = classDefaultName(id)
	}
	ds.classes[id] = name
}

// AddDetection appends a prediction, validating score range, geometry
// dimensions and class declaration. Returns the detection's stable id.
func (ds *DataSet) AddDetection(imageID ImageID, classID ClassID, score float64, geom Geometry) (DetectionID, error) {
	if err := ds.validate(classID, geom); err != nil {
		return 0, wrapf(err, "add_detection: image %d class %d", imageID, classID)
	}
	if score < 0 || score > 1 {
		return 0, wrapf(ErrInvalidScore, "add_detection: image %d class %d score %v", imageID, classID, score)
	}
	// max_dets filtering on freeze can shrink the list, so the next id
	// follows the last retained one rather than the list length.
	id := DetectionID(0)
	if n := len(ds.detections); n > 0 {
		id = ds.detections[n-1].ID + 1
	}
	ds.detections = append(ds.detections, Detection{
		ID:      id,
		ImageID: imageID,
		ClassID: classID,
		Score:   score,
		Geom:    geom,
	})
	ds.allImageIDs[imageID] = struct{}{}
	ds.allClassIDs[classID] = struct{}{}
	ds.frozen = false
	return id, nil
}

// AddGroundTruth appends an annotation, validating geometry dimensions and
// class declaration. Returns the ground truth's stable id.
func (ds *DataSet) AddGroundTruth(imageID ImageID, classID ClassID, geom Geometry, ignore bool) (GroundTruthID, error) {
	if err := ds.validate(classID, geom); err != nil {
		return 0, wrapf(err, "add_ground_truth: image %d class %d", imageID, classID)
	}
	id := GroundTruthID(len(ds.groundTruths))
	ds.groundTruths = append(ds.groundTruths, GroundTruth{
		ID:      id,
		ImageID: imageID,
		ClassID: classID,
		Geom:    geom,
		Ignore:  ignore,
	})
	ds.allImageIDs[imageID] = struct{}{}
	ds.allClassIDs[classID] = struct{}{}
	ds.frozen = false
	return id, nil
}

// AddIgnoreRegion is AddGroundTruth with ignore=true, following spec §4.2's
// separate naming for the same underlying concept.
func (ds *DataSet) AddIgnoreRegion(imageID ImageID, classID ClassID, geom Geometry) (GroundTruthID, error) {
	return ds.AddGroundTruth(imageID, classID, geom, true)
}

func (ds *DataSet) validate(classID ClassID, geom Geometry) error {
	if _, ok := ds.classes[classID]; !ok {
		return wrapf(ErrUnknownClass, "class %d", classID)
	}
	if !ds.modeSet {
		ds.mode = geom.Mode
		ds.modeSet = true
	} else if ds.mode != geom.Mode {
		return ErrMixedGeometryMode
	}
	switch geom.Mode {
	case MASK:
		if geom.Mask == nil {
			return ErrNilMask
		}
	default:
		if geom.Box.Width <= 0 || geom.Box.Height <= 0 {
			return ErrNonPositiveBox
		}
	}
	return nil
}

// Mode returns the geometry mode this DataSet was ingested under. Zero
// value (BOX) if nothing has been added yet.
func (ds *DataSet) Mode() Mode {
	return ds.mode
}

// ClassName returns the declared name for a class id, defaulting to its
// decimal string form per spec §6.
func (ds *DataSet) ClassName(id ClassID) string {
	if name, ok := ds.classes[id]; ok {
		return name
	}
	return classDefaultName(id)
}

// freeze builds the per-(image,class) indices and applies the per-image
// max_dets cap, keeping the highest-scoring detections with ties broken by
// ingest order. Idempotent; called implicitly by every accessor that
// returns detections or ground truths.
func (ds *DataSet) freeze() {
	if ds.frozen {
		return
	}
	ds.applyMaxDets()

	ds.byKeyDet = make(map[classKey][]int)
	for i, d := range ds.detections {
		k := classKey{Image: d.ImageID, Class: d.ClassID}
		ds.byKeyDet[k] = append(ds.byKeyDet[k], i)
	}

	ds.byKeyGT = make(map[classKey][]int)
	for i, g := range ds.groundTruths {
		k := classKey{Image: g.ImageID, Class: g.ClassID}
		ds.byKeyGT[k] = append(ds.byKeyGT[k], i)
	}

	ds.frozen = true
}

func (ds *DataSet) applyMaxDets() {
	if ds.maxDets <= 0 {
		return
	}
	byImage := make(map[ImageID][]int)
	for i, d := range ds.detections {
		byImage[d.ImageID] = append(byImage[d.ImageID], i)
	}
	keep := make(map[int]struct{}, len(ds.detections))
	for _, idxs := range byImage {
		sort.SliceStable(idxs, func(i, j int) bool {
			return ds.detections[idxs[i]].Score > ds.detections[idxs[j]].Score
		})
		n := ds.maxDets
		if n > len(idxs) {
			n = len(idxs)
		}
		for _, idx := range idxs[:n] {
			keep[idx] = struct{}{}
		}
	}
	if len(keep) == len(ds.detections) {
		return
	}
	filtered := make([]Detection, 0, len(keep))
	for i, d := range ds.detections {
		if _, ok := keep[i]; ok {
			filtered = append(filtered, d)
		}
	}
	ds.detections = filtered
}

// Detections returns the frozen, max_dets-capped detection list.
func (ds *DataSet) Detections() []Detection {
	ds.freeze()
	return ds.detections
}

// GroundTruths returns the frozen ground truth list.
func (ds *DataSet) GroundTruths() []GroundTruth {
	ds.freeze()
	return ds.groundTruths
}

// DetectionsFor returns detections for a given (image, class) pair.
func (ds *DataSet) DetectionsFor(imageID ImageID, classID ClassID) []Detection {
	ds.freeze()
	out := make([]Detection, 0)
	for _, i := range ds.byKeyDet[classKey{Image: imageID, Class: classID}] {
		out = append(out, ds.detections[i])
	}
	return out
}

// GroundTruthsFor returns ground truths for a given (image, class) pair,
// optionally excluding ignored ones.
func (ds *DataSet) GroundTruthsFor(imageID ImageID, classID ClassID, includeIgnored bool) []GroundTruth {
	ds.freeze()
	out := make([]GroundTruth, 0)
	for _, i := range ds.byKeyGT[classKey{Image: imageID, Class: classID}] {
		gt := ds.groundTruths[i]
		if gt.Ignore && !includeIgnored {
			continue
		}
		out = append(out, gt)
	}
	return out
}

// IgnoreRegionsFor returns all ignore-flagged ground truths in an image,
// regardless of class — ignore regions absorb detections of any class.
func (ds *DataSet) IgnoreRegionsFor(imageID ImageID) []GroundTruth {
	ds.freeze()
	out := make([]GroundTruth, 0)
	for _, gt := range ds.groundTruths {
		if gt.ImageID == imageID && gt.Ignore {
			out = append(out, gt)
		}
	}
	return out
}

// AnyClassGroundTruthsFor returns every non-ignore ground truth in an
// image, across all classes — used by the classifier to find the best
// overlap "across any class" per spec §4.4.
func (ds *DataSet) AnyClassGroundTruthsFor(imageID ImageID) []GroundTruth {
	ds.freeze()
	out := make([]GroundTruth, 0)
	for _, gt := range ds.groundTruths {
		if gt.ImageID == imageID && !gt.Ignore {
			out = append(out, gt)
		}
	}
	return out
}

// ImageIDs returns the set of image ids seen by this DataSet.
func (ds *DataSet) ImageIDs() map[ImageID]struct{} {
	return ds.allImageIDs
}

// ClassIDs returns the sorted set of class ids seen by this DataSet.
func (ds *DataSet) ClassIDs() []ClassID {
	ids := make([]ClassID, 0, len(ds.allClassIDs))
	for id := range ds.allClassIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func classDefaultName(id ClassID) string {
	return strconv.Itoa(int(id))
}
