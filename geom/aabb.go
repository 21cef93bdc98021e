package geom

import "github.com/chewxy/math32"

// AABB is an axis aligned bounding box. The zero value is not empty; use NewAABB.
type AABB struct {
	Min Vector3
	Max Vector3
}

func NewAABB() AABB {
	inf := math32.Inf(1)
	return AABB{
		Min: Vector3{inf, inf, inf},
		Max: Vector3{-inf, -inf, -inf},
	}
}

func (b *AABB) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

func (b *AABB) Extend(p [3]Element) {
	b.Min.X = math32.Min(b.Min.X, p[0])
	b.Min.Y = math32.Min(b.Min.Y, p[1])
	b.Min.Z = math32.Min(b.Min.Z, p[2])
	b.Max.X = math32.Max(b.Max.X, p[0])
	b.Max.Y = math32.Max(b.Max.Y, p[1])
	b.Max.Z = math32.Max(b.Max.Z, p[2])
}

func (b *AABB) Merge(o *AABB) {
	if o.IsEmpty() {
		return
	}
	b.Extend(o.Min.Array())
	b.Extend(o.Max.Array())
}

func (b *AABB) Center() *Vector3 {
	return b.Min.Add(&b.Max).Scale(0.5)
}

func (b *AABB) Size() *Vector3 {
	if b.IsEmpty() {
		return &Vector3{}
	}
	return b.Max.Sub(&b.Min)
}

// Extent returns the longest edge.
func (b *AABB) Extent() Element {
	s := b.Size()
	return math32.Max(s.X, math32.Max(s.Y, s.Z))
}
