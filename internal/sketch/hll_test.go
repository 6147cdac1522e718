package sketch

import (
	"fmt"
	"math"
	"testing"
)

func TestHLL_CardinalityApproximatesDistinctCount(t *testing.T) {
	h := NewHLL(12)
	const n = 10000
	for i := 0; i < n; i++ {
		h.Add([]byte(fmt.Sprintf("key-%d", i)))
	}

	est := h.Cardinality()
	errFrac := math.Abs(est-n) / n
	if errFrac > 0.05 {
		t.Errorf("cardinality estimate off by %.2f%%, got %f want ~%d", errFrac*100, est, n)
	}
}

func TestHLL_MergeIsAssociativeCommutative(t *testing.T) {
	build := func(lo, hi int) *HLL {
		h := NewHLL(10)
		for i := lo; i < hi; i++ {
			h.Add([]byte(fmt.Sprintf("k-%d", i)))
		}
		return h
	}
	a, b, c := build(0, 100), build(50, 150), build(120, 300)

	ab := a.Clone()
	if err := ab.Merge(b); err != nil {
		t.Fatal(err)
	}
	abc1 := ab.Clone()
	if err := abc1.Merge(c); err != nil {
		t.Fatal(err)
	}

	bc := b.Clone()
	if err := bc.Merge(c); err != nil {
		t.Fatal(err)
	}
	abc2 := a.Clone()
	if err := abc2.Merge(bc); err != nil {
		t.Fatal(err)
	}

	if abc1.Cardinality() != abc2.Cardinality() {
		t.Errorf("merge not associative: %f != %f", abc1.Cardinality(), abc2.Cardinality())
	}

	ba := b.Clone()
	if err := ba.Merge(a); err != nil {
		t.Fatal(err)
	}
	if ab.Cardinality() != ba.Cardinality() {
		t.Errorf("merge not commutative: %f != %f", ab.Cardinality(), ba.Cardinality())
	}
}

func TestHLL_MergeNeverDecreasesRegisters(t *testing.T) {
	h := NewHLL(8)
	for i := 0; i < 500; i++ {
		h.Add([]byte(fmt.Sprintf("a-%d", i)))
	}
	before := h.Cardinality()

	empty := NewHLL(8)
	if err := h.Merge(empty); err != nil {
		t.Fatal(err)
	}
	if h.Cardinality() < before {
		t.Errorf("cardinality decreased after merging empty sketch: %f < %f", h.Cardinality(), before)
	}
}

func TestHLL_MergeShapeMismatch(t *testing.T) {
	a := NewHLL(10)
	b := NewHLL(12)
	if err := a.Merge(b); err == nil {
		t.Fatal("expected InvalidShape error for precision mismatch")
	}
}
