package model

type Meshlet struct {
	VertexOffset   uint32
	TriangleOffset uint32
	VertexCount    uint32
	TriangleCount  uint32
}

// MeshletArray holds the clusters of one LOD.
// Vertices are global vertex ids, Triangles are local ids into the meshlet's vertex slice.
type MeshletArray struct {
	Meshlets  []Meshlet
	Vertices  []uint32
	Triangles []uint8
}

func (a *MeshletArray) Len() int {
	return len(a.Meshlets)
}

// Meshlet returns the vertex and triangle sub-slices of the i-th meshlet.
func (a *MeshletArray) Meshlet(i int) ([]uint32, []uint8) {
	m := a.Meshlets[i]
	return a.Vertices[m.VertexOffset : m.VertexOffset+m.VertexCount],
		a.Triangles[m.TriangleOffset : m.TriangleOffset+m.TriangleCount*3]
}

type BoundingSphere struct {
	Center [3]float32
	Radius float32
}

// PackedCone is the normal cone quantized to 8 bits per component.
type PackedCone struct {
	Axis   [3]int8
	Cutoff int8
}

type Cone struct {
	Apex   [3]float32
	Axis   [3]float32
	Cutoff float32
}

type MeshletBoundsArray struct {
	Spheres     []BoundingSphere
	PackedCones []PackedCone
	Cones       []Cone
}
