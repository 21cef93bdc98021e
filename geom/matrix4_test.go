package geom

import (
	"math"
	"testing"
)

func TestTRSMatrix(t *testing.T) {
	const eps = 0.00001

	pos := NewVector3(1, 2, 3)
	rot := axisAngle(0, 1, 0, math.Pi/2)
	scale := NewVector3(2, 2, 2)

	mat := NewTRSMatrix4(pos, rot, scale)

	// scale, then rotate, then translate.
	v := mat.ApplyTo(NewVector3(1, 0, 0))
	expected := pos.Add(rot.ApplyTo(NewVector3(2, 0, 0)))
	if v.Sub(expected).Len() > eps {
		t.Error("ApplyTo: ", v, expected)
	}

	d := mat.ApplyToDirection(NewVector3(1, 0, 0))
	if d.Sub(rot.ApplyTo(NewVector3(2, 0, 0))).Len() > eps {
		t.Error("ApplyToDirection: ", d)
	}

	if mat.Translation().Sub(pos).Len() > eps {
		t.Error("Translation: ", mat.Translation())
	}
}

func TestMatrixMul(t *testing.T) {
	const eps = 0.00001

	parent := NewTranslateMatrix4(10, 0, 0)
	child := NewScaleMatrix4(2, 3, 4)

	world := parent.Mul(child)
	v := world.ApplyTo(NewVector3(1, 1, 1))
	if v.Sub(NewVector3(12, 3, 4)).Len() > eps {
		t.Error("Mul: ", v)
	}

	if *NewMatrix4().Mul(world) != *world {
		t.Error("identity * m != m")
	}
}
