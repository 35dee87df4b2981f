package tide

// IoU computes Intersection-over-Union between two boxes: area(intersect)
// / area(union). Degenerate zero-area inputs yield 0. Ported from the
// teacher's geom_f64.go/utils.go IoU, generalised from a single Rectangle
// type to the Box type used across Detection/GroundTruth geometry.
func IoU(a, b Box) float64 {
	xA := maxFloat64(a.X, b.X)
	yA := maxFloat64(a.Y, b.Y)
	xB := minFloat64(a.X+a.Width, b.X+b.Width)
	yB := minFloat64(a.Y+a.Height, b.Y+b.Height)

	interArea := maxFloat64(0, xB-xA) * maxFloat64(0, yB-yA)
	if interArea == 0 {
		return 0
	}

	union := a.area() + b.area() - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}

// IoMax computes Intersection over the first geometry's area: area(a ∩
// b) / area(a). Used only to decide overlap against ignore regions, where
// a is the detection's geometry and b is the ignore region — an ignore
// region absorbs any detection mostly contained in it even if the ignore
// region itself is much larger.
func IoMax(a, b Box) float64 {
	xA := maxFloat64(a.X, b.X)
	yA := maxFloat64(a.Y, b.Y)
	xB := minFloat64(a.X+a.Width, b.X+b.Width)
	yB := minFloat64(a.Y+a.Height, b.Y+b.Height)

	interArea := maxFloat64(0, xB-xA) * maxFloat64(0, yB-yA)
	if interArea == 0 {
		return 0
	}
	aArea := a.area()
	if aArea <= 0 {
		return 0
	}
	return interArea / aArea
}

// IoUMask computes IoU between two pixel masks of identical dimensions,
// using the same formula as IoU but over pixel counts rather than box
// area. Masks of mismatched dimensions are treated as non-overlapping.
func IoUMask(a, b *Mask) float64 {
	if a == nil || b == nil {
		return 0
	}
	if a.Width != b.Width || a.Height != b.Height {
		return 0
	}
	inter, union := 0, 0
	for i := range a.Data {
		as, bs := a.Data[i], b.Data[i]
		if as && bs {
			inter++
		}
		if as || bs {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// IoMaxMask computes Intersection over the first mask's area, used for
// mask-mode ignore-region matching, mirroring IoMax's box semantics.
func IoMaxMask(a, b *Mask) float64 {
	if a == nil || b == nil {
		return 0
	}
	if a.Width != b.Width || a.Height != b.Height {
		return 0
	}
	inter, aArea := 0, 0
	for i := range a.Data {
		if a.Data[i] {
			aArea++
			if b.Data[i] {
				inter++
			}
		}
	}
	if aArea == 0 {
		return 0
	}
	return float64(inter) / float64(aArea)
}

// overlap dispatches IoU across a Geometry pair according to their mode.
// Both geometries must share the same mode; callers are responsible for
// that invariant (DataSet enforces a single mode per run).
func overlap(a, b Geometry) float64 {
	switch a.Mode {
	case MASK:
		return IoUMask(a.Mask, b.Mask)
	default:
		return IoU(a.Box, b.Box)
	}
}

// overlapMax dispatches IoMax across a Geometry pair according to mode.
func overlapMax(a, b Geometry) float64 {
	switch a.Mode {
	case MASK:
		return IoMaxMask(a.Mask, b.Mask)
	default:
		return IoMax(a.Box, b.Box)
	}
}

func maxFloat64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
