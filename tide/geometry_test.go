package tide

import (
	"math"
	"testing"
)

const eps = 0.00001

func TestIoUIdentical(t *testing.T) {
	a := NewBox(10, 10, 50, 50)
	b := NewBox(10, 10, 50, 50)
	if got := IoU(a, b); math.Abs(got-1.0) > eps {
		t.Errorf("expected IoU 1.0 for identical boxes, got %v", got)
	}
}

func TestIoUDisjoint(t *testing.T) {
	a := NewBox(10, 10, 50, 50)
	b := NewBox(100, 100, 30, 30)
	if got := IoU(a, b); got != 0 {
		t.Errorf("expected IoU 0 for disjoint boxes, got %v", got)
	}
}

func TestIoUPartial(t *testing.T) {
	a := NewBox(10, 10, 50, 50)
	b := NewBox(25, 25, 50, 50)
	got := IoU(a, b)
	// Intersection: [25,25]-[60,60] = 35x35 = 1225. Union: 2500+2500-1225=3775.
	want := 1225.0 / 3775.0
	if math.Abs(got-want) > eps {
		t.Errorf("expected IoU %v, got %v", want, got)
	}
	if got < 0.1 || got >= 0.5 {
		t.Fatalf("sanity check: expected this fixture to land in [0.1, 0.5), got %v", got)
	}
}

func TestIoUZeroArea(t *testing.T) {
	a := NewBox(10, 10, 0, 50)
	b := NewBox(10, 10, 50, 50)
	if got := IoU(a, b); got != 0 {
		t.Errorf("expected IoU 0 for a degenerate zero-area box, got %v", got)
	}
}

func TestIoMaxSmallerInsideLarger(t *testing.T) {
	small := NewBox(10, 10, 10, 10)
	large := NewBox(0, 0, 100, 100)
	if got := IoMax(small, large); math.Abs(got-1.0) > eps {
		t.Errorf("expected IoMax 1.0 when the smaller box is fully inside the larger one, got %v", got)
	}
}

func TestIoMaxAsymmetric(t *testing.T) {
	small := NewBox(0, 0, 10, 10)
	large := NewBox(5, 5, 100, 100)
	// Intersection is the 5x5 corner = 25, area(small) = 100.
	want := 25.0 / 100.0
	if got := IoMax(small, large); math.Abs(got-want) > eps {
		t.Errorf("expected IoMax %v, got %v", want, got)
	}
}

func TestIoUMask(t *testing.T) {
	a := NewMask(2, 2, []bool{true, true, false, false})
	b := NewMask(2, 2, []bool{true, false, false, false})
	// intersection=1, union=2
	if got := IoUMask(a, b); math.Abs(got-0.5) > eps {
		t.Errorf("expected mask IoU 0.5, got %v", got)
	}
}

func TestIoUMaskMismatchedDims(t *testing.T) {
	a := NewMask(2, 2, []bool{true, true, true, true})
	b := NewMask(3, 3, make([]bool, 9))
	if got := IoUMask(a, b); got != 0 {
		t.Errorf("expected 0 for mismatched mask dimensions, got %v", got)
	}
}
