package meshopt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMeshletsBound(t *testing.T) {
	assert.Equal(t, 0, BuildMeshletsBound(0, 96, 96))
	assert.Equal(t, 4, BuildMeshletsBound(300, 96, 96))
	assert.Equal(t, 1, BuildMeshletsBound(3, 96, 96))
	// triangle limited
	assert.Equal(t, 10, BuildMeshletsBound(30*3, 96, 3))
}

func checkMeshlets(t *testing.T, meshlets []Meshlet, vertices []uint32, triangles []uint8, indices []uint32) {
	t.Helper()
	var rebuilt []uint32
	vertexEnd, triangleEnd := uint32(0), uint32(0)
	for _, m := range meshlets {
		require.LessOrEqual(t, m.VertexCount, uint32(96))
		require.LessOrEqual(t, m.TriangleCount, uint32(124))
		require.Greater(t, m.TriangleCount, uint32(0))
		require.Equal(t, vertexEnd, m.VertexOffset)
		require.Equal(t, triangleEnd, m.TriangleOffset)
		vertexEnd += m.VertexCount
		triangleEnd += m.TriangleCount * 3

		mv := vertices[m.VertexOffset : m.VertexOffset+m.VertexCount]
		mt := triangles[m.TriangleOffset : m.TriangleOffset+m.TriangleCount*3]
		for _, l := range mt {
			require.Less(t, uint32(l), m.VertexCount)
			rebuilt = append(rebuilt, mv[l])
		}
	}
	assert.Equal(t, int(vertexEnd), len(vertices))
	assert.Equal(t, int(triangleEnd), len(triangles))
	assert.Equal(t, triangleSet(indices), triangleSet(rebuilt))
}

func TestBuildMeshletsFlex(t *testing.T) {
	positions, indices := grid(30)
	meshlets, vertices, triangles := BuildMeshletsFlex(indices, positions, 96, 96, 124, 0.25, 2.0)
	require.NotEmpty(t, meshlets)
	assert.LessOrEqual(t, len(meshlets), BuildMeshletsBound(len(indices), 96, 96))
	checkMeshlets(t, meshlets, vertices, triangles, indices)

	for i, m := range meshlets {
		mv := vertices[m.VertexOffset : m.VertexOffset+m.VertexCount]
		mt := triangles[m.TriangleOffset : m.TriangleOffset+m.TriangleCount*3]
		before := triangleSetFromLocal(mv, mt)
		OptimizeMeshlet(mv, mt)
		assert.Equal(t, before, triangleSetFromLocal(mv, mt), "meshlet %d", i)
		// first triangle uses the first vertices
		assert.Equal(t, []uint8{0, 1, 2}, mt[:3])
	}
	checkMeshlets(t, meshlets, vertices, triangles, indices)
}

func triangleSetFromLocal(vertices []uint32, triangles []uint8) [][3]uint32 {
	var global []uint32
	for _, l := range triangles {
		global = append(global, vertices[l])
	}
	return triangleSet(global)
}

func TestBuildMeshletsFlexEmpty(t *testing.T) {
	meshlets, vertices, triangles := BuildMeshletsFlex(nil, nil, 96, 96, 124, 0.25, 2.0)
	assert.Empty(t, meshlets)
	assert.Empty(t, vertices)
	assert.Empty(t, triangles)
}

func TestBuildMeshletsFlexSmallLimits(t *testing.T) {
	positions, indices := grid(10)
	meshlets, vertices, triangles := BuildMeshletsFlex(indices, positions, 16, 8, 12, 0.25, 2.0)
	for _, m := range meshlets {
		assert.LessOrEqual(t, m.VertexCount, uint32(16))
		assert.LessOrEqual(t, m.TriangleCount, uint32(12))
	}
	var rebuilt []uint32
	for _, m := range meshlets {
		for _, l := range triangles[m.TriangleOffset : m.TriangleOffset+m.TriangleCount*3] {
			rebuilt = append(rebuilt, vertices[m.VertexOffset+uint32(l)])
		}
	}
	assert.Equal(t, triangleSet(indices), triangleSet(rebuilt))
}

func TestComputeMeshletBoundsFlat(t *testing.T) {
	positions, indices := grid(4)
	meshlets, vertices, triangles := BuildMeshletsFlex(indices, positions, 96, 96, 124, 0.25, 2.0)
	require.Len(t, meshlets, 1)

	b := ComputeMeshletBounds(vertices, triangles, positions)
	for _, p := range positions {
		d := length(sub(p, b.Center))
		assert.LessOrEqual(t, d, b.Radius+1e-5)
	}
	assert.Equal(t, [3]float32{0, 0, 1}, b.ConeAxis)
	assert.Equal(t, [3]int8{0, 0, 127}, b.ConeAxisS8)
	assert.InDelta(t, 0, b.ConeCutoff, 1e-6)
	assert.Equal(t, int8(1), b.ConeCutoffS8)
}

func TestComputeMeshletBoundsClosed(t *testing.T) {
	// tetrahedron, normals spread over the whole sphere
	positions := [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	vertices := []uint32{0, 1, 2, 3}
	triangles := []uint8{0, 2, 1, 0, 1, 3, 0, 3, 2, 1, 2, 3}
	b := ComputeMeshletBounds(vertices, triangles, positions)
	assert.Equal(t, float32(1), b.ConeCutoff)
	assert.Equal(t, int8(127), b.ConeCutoffS8)
	assert.Greater(t, b.Radius, float32(0))
}

func TestComputeMeshletBoundsDegenerate(t *testing.T) {
	positions := [][3]float32{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}}
	b := ComputeMeshletBounds([]uint32{0, 1, 2}, []uint8{0, 1, 2}, positions)
	assert.Equal(t, Bounds{}, b)
}

func TestComputeBoundingSphere(t *testing.T) {
	points := [][3]float32{{-1, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 0.5}}
	center, radius := computeBoundingSphere(points)
	for _, p := range points {
		assert.LessOrEqual(t, length(sub(p, center)), radius+1e-6)
	}
	assert.InDelta(t, 1, radius, 1e-6)
}
