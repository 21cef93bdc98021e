package geom

import (
	"testing"
)

func TestVector3(t *testing.T) {
	zero := NewVector3(0, 0, 0)
	if zero.Len() != 0 || zero.LenSqr() != 0 || zero.Dot(zero) != 0 {
		t.Error("len != 0")
	}

	if *zero.Normalize() != *NewVector3(0, 0, 0) {
		t.Error("Normalize shoud keep zero vector.", zero.Normalize())
	}

	if *NewVector3(1, 0, 0).Add(NewVector3(0, 1, 0)) != *NewVector3(1, 1, 0) {
		t.Error("Vector.Add()")
	}

	if *NewVector3(1, 0, 0).Cross(NewVector3(0, 1, 0)) != *NewVector3(0, 0, 1) {
		t.Error("Vector.Cross()")
	}

	if Cross3([3]Element{0, 1, 0}, [3]Element{0, 0, 1}) != [3]Element{1, 0, 0} {
		t.Error("Cross3()")
	}

	if l := NewVector3(3, 0, 4).Normalize().Len(); l < 0.99999 || l > 1.00001 {
		t.Error("Normalize shoud returns unit vector.", l)
	}
}

func TestAABB(t *testing.T) {
	b := NewAABB()
	if !b.IsEmpty() {
		t.Error("NewAABB() should be empty")
	}
	if b.Extent() != 0 {
		t.Error("empty extent", b.Extent())
	}

	b.Extend([3]Element{1, 2, 3})
	b.Extend([3]Element{-1, 0, 7})
	if b.IsEmpty() {
		t.Error("AABB should not be empty")
	}
	if b.Min != *NewVector3(-1, 0, 3) || b.Max != *NewVector3(1, 2, 7) {
		t.Error("AABB.Extend()", b)
	}
	if *b.Center() != *NewVector3(0, 1, 5) {
		t.Error("AABB.Center()", b.Center())
	}
	if b.Extent() != 4 {
		t.Error("AABB.Extent()", b.Extent())
	}

	o := NewAABB()
	o.Extend([3]Element{10, 10, 10})
	b.Merge(&o)
	if b.Max != *NewVector3(10, 10, 10) {
		t.Error("AABB.Merge()", b)
	}
}
