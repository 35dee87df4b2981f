package tide

import (
	"container/heap"
	"sort"
)

// detMatch is the Matcher's outcome for one detection: whether it matched
// a ground truth at or above pos_threshold, plus the best overlaps needed
// by the classifier to attribute an error when it didn't.
type detMatch struct {
	det Detection

	matchedGT   GroundTruthID
	matched     bool
	suppressed  bool // removed from the error population by an ignore region

	bestAnyClassGT  GroundTruthID
	bestAnyClassIoU float64
	hasAnyClassGT   bool

	bestSameClassGT  GroundTruthID
	bestSameClassIoU float64
	hasSameClassGT   bool

	// duplicateOf is set when this detection would have matched a GT
	// already claimed by a higher-scoring detection of the same class.
	duplicateOf   GroundTruthID
	isDuplicate   bool
}

// gtMatch is the Matcher's outcome for one ground truth.
type gtMatch struct {
	gt         GroundTruth
	matchedBy  DetectionID
	matched    bool
	suppressed bool // ignore==true: never missed, never contributes to TP/FP
}

// matchState is the full per-evaluate() Matcher output, keyed by id so the
// classifier can look either side up directly.
type matchState struct {
	dets map[DetectionID]*detMatch
	gts  map[GroundTruthID]*gtMatch
}

// gtCandidate is a heap element holding one detection's overlap against one
// ground truth. Per detection, a fresh candidateHeap is built and popped
// once — the max-heap realises "find the GT g* maximising IoU(d,g)" from
// spec §4.3 step 4, the same container/heap shape the teacher's
// IoUTracker.MatchObjects uses for its own greedy argmax, scoped to a
// single detection at a time so cross-detection score order (already
// established by the outer sort) is never disturbed.
type gtCandidate struct {
	gtIdx int
	iou   float64
}

type candidateHeap []gtCandidate

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if h[i].iou != h[j].iou {
		return h[i].iou > h[j].iou
	}
	return h[i].gtIdx < h[j].gtIdx
}
func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)   { *h = append(*h, x.(gtCandidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// match runs the Matcher algorithm of spec §4.3 for every (image, class)
// pair present in either DataSet, then fills in the per-image,
// any-class / ignore-region overlaps step 5 requires.
func match(gtDS, predDS *DataSet, posThreshold float64, mode Mode) *matchState {
	state := &matchState{
		dets: make(map[DetectionID]*detMatch),
		gts:  make(map[GroundTruthID]*gtMatch),
	}

	for _, gt := range gtDS.GroundTruths() {
		state.gts[gt.ID] = &gtMatch{gt: gt, suppressed: gt.Ignore}
	}
	for _, d := range predDS.Detections() {
		state.dets[d.ID] = &detMatch{det: d}
	}

	pairs := collectPairs(gtDS, predDS)
	for _, k := range pairs {
		matchPair(state, gtDS, predDS, k, posThreshold)
	}

	fillAnyClassAndIgnore(state, gtDS, predDS, posThreshold)
	return state
}

func collectPairs(gtDS, predDS *DataSet) []classKey {
	seen := make(map[classKey]struct{})
	for _, d := range predDS.Detections() {
		seen[classKey{Image: d.ImageID, Class: d.ClassID}] = struct{}{}
	}
	for _, gt := range gtDS.GroundTruths() {
		if gt.Ignore {
			continue
		}
		seen[classKey{Image: gt.ImageID, Class: gt.ClassID}] = struct{}{}
	}
	keys := make([]classKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Image != keys[j].Image {
			return keys[i].Image < keys[j].Image
		}
		return keys[i].Class < keys[j].Class
	})
	return keys
}

// matchPair performs steps 1-4 of spec §4.3 for a single (image, class)
// pair: sort detections by score descending (stable), build the
// overlap-ranked candidate heap, and greedily assign without
// back-tracking.
func matchPair(state *matchState, gtDS, predDS *DataSet, k classKey, posThreshold float64) {
	dets := predDS.DetectionsFor(k.Image, k.Class)
	gts := gtDS.GroundTruthsFor(k.Image, k.Class, false)
	if len(dets) == 0 || len(gts) == 0 {
		return
	}
	sort.SliceStable(dets, func(i, j int) bool {
		if dets[i].Score != dets[j].Score {
			return dets[i].Score > dets[j].Score
		}
		return dets[i].ID < dets[j].ID
	})

	gtTaken := make([]bool, len(gts))

	// Walk detections in score order, never back-tracking: once a GT is
	// taken by an earlier (higher-or-equal-scoring) detection, later
	// detections never reclaim it.
	for _, d := range dets {
		dm := state.dets[d.ID]

		h := &candidateHeap{}
		heap.Init(h)
		for gi, gt := range gts {
			iou := overlap(d.Geom, gt.Geom)
			if iou > 0 {
				heap.Push(h, gtCandidate{gtIdx: gi, iou: iou})
			}
		}
		if h.Len() == 0 {
			continue
		}
		best := heap.Pop(h).(gtCandidate)
		dm.bestSameClassGT = gts[best.gtIdx].ID
		dm.bestSameClassIoU = best.iou
		dm.hasSameClassGT = true

		if gtTaken[best.gtIdx] {
			// This detection's best candidate GT was already claimed by a
			// higher-scoring detection; spec §4.4 rule 1 fires only if the
			// overlap itself clears pos_threshold.
			if best.iou >= posThreshold {
				dm.isDuplicate = true
				dm.duplicateOf = gts[best.gtIdx].ID
			}
			continue
		}
		if best.iou >= posThreshold {
			gtTaken[best.gtIdx] = true
			dm.matched = true
			dm.matchedGT = gts[best.gtIdx].ID
			gm := state.gts[gts[best.gtIdx].ID]
			gm.matched = true
			gm.matchedBy = d.ID
		}
	}
}

// fillAnyClassAndIgnore implements spec §4.3 step 5: for every
// still-unassigned detection, record its best IoU across any-class GTs in
// the same image and its best IoMax against ignore regions, then apply
// the ignore-suppression rule of §4.3's "Ignore handling" paragraph.
func fillAnyClassAndIgnore(state *matchState, gtDS, predDS *DataSet, posThreshold float64) {
	for _, d := range predDS.Detections() {
		dm := state.dets[d.ID]
		if dm.matched {
			continue
		}
		for _, gt := range gtDS.AnyClassGroundTruthsFor(d.ImageID) {
			iou := overlap(d.Geom, gt.Geom)
			if !dm.hasAnyClassGT || iou > dm.bestAnyClassIoU {
				dm.bestAnyClassGT = gt.ID
				dm.bestAnyClassIoU = iou
				dm.hasAnyClassGT = true
			}
		}

		ioMax := 0.0
		for _, region := range gtDS.IgnoreRegionsFor(d.ImageID) {
			v := overlapMax(d.Geom, region.Geom)
			if v > ioMax {
				ioMax = v
			}
		}
		if ioMax >= posThreshold {
			dm.suppressed = true
		}
	}
}
