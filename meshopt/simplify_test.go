package meshopt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIndices(t *testing.T, indices []uint32, vertexCount int) {
	t.Helper()
	require.Zero(t, len(indices)%3)
	for _, v := range indices {
		require.Less(t, int(v), vertexCount)
	}
}

func TestSimplifyFlatGrid(t *testing.T) {
	positions, indices := grid(20)

	target := len(indices) / 10 / 3 * 3
	result, err := Simplify(indices, positions, target, 0.05, SimplifyPrune)
	validIndices(t, result, len(positions))
	assert.LessOrEqual(t, len(result), len(indices)/2)
	assert.NotEmpty(t, result)
	assert.Less(t, err, float32(0.05))

	// winding is kept: every remaining triangle still faces +z
	for i := 0; i < len(result); i += 3 {
		n := cross(sub(positions[result[i+1]], positions[result[i]]), sub(positions[result[i+2]], positions[result[i]]))
		assert.Greater(t, n[2], float32(0))
	}
}

func TestSimplifyNoop(t *testing.T) {
	positions, indices := grid(2)
	result, err := Simplify(indices, positions, len(indices), 0.05, 0)
	assert.Equal(t, indices, result)
	assert.Zero(t, err)

	result[0] = 99
	assert.NotEqual(t, uint32(99), indices[0])
}

func TestSimplifyLockBorder(t *testing.T) {
	positions, indices := grid(8)
	result, _ := Simplify(indices, positions, 0, 0.05, SimplifyLockBorder)
	validIndices(t, result, len(positions))

	// border vertices of the grid can't move, so all of them are still referenced
	used := map[uint32]bool{}
	for _, v := range result {
		used[v] = true
	}
	for i, p := range positions {
		if p[0] == 0 || p[1] == 0 || p[0] == 1 || p[1] == 1 {
			assert.True(t, used[uint32(i)], "border vertex %d", i)
		}
	}
}

func TestSimplifySparse(t *testing.T) {
	positions, indices := grid(16)
	half := indices[:len(indices)/2]

	referenced := map[uint32]bool{}
	for _, v := range half {
		referenced[v] = true
	}

	result, _ := Simplify(half, positions, len(half)/4/3*3, 0.05, SimplifySparse)
	validIndices(t, result, len(positions))
	assert.Less(t, len(result), len(half))
	for _, v := range result {
		assert.True(t, referenced[v])
	}
}

func TestSimplifyPrune(t *testing.T) {
	positions, indices := grid(10)
	// a tiny detached triangle
	base := uint32(len(positions))
	positions = append(positions, [3]float32{0.5, 0.5, 0.5}, [3]float32{0.5001, 0.5, 0.5}, [3]float32{0.5, 0.5001, 0.5})
	indices = append(indices, base, base+1, base+2)

	result, _ := Simplify(indices, positions, len(indices)/2/3*3, 0.05, SimplifyPrune)
	validIndices(t, result, len(positions))
	assert.NotEmpty(t, result)
	for _, v := range result {
		assert.Less(t, v, base)
	}
}

func TestSimplifyScale(t *testing.T) {
	assert.Equal(t, float32(0), SimplifyScale(nil))
	assert.Equal(t, float32(4), SimplifyScale([][3]float32{{0, 0, 0}, {1, -2, 0.5}, {-1, 2, 0}}))
}

func TestClassifyVertices(t *testing.T) {
	positions, indices := grid(2)
	remap, wedge := buildPositionRemap(positions)
	adj := newEdgeAdjacency(len(indices), len(positions))
	adj.update(indices, nil)
	kinds, _, _ := classifyVertices(adj, len(positions), remap, wedge, false)

	// center vertex of a 2x2 grid is the only interior vertex
	for i, k := range kinds {
		if i == 4 {
			assert.Equal(t, kindManifold, k)
		} else {
			assert.Equal(t, kindBorder, k, "vertex %d", i)
		}
	}
}

func TestClassifySeam(t *testing.T) {
	// two quads sharing an edge, with the shared edge split into separate vertices
	positions := [][3]float32{
		{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}, // left quad
		{1, 0, 0}, {2, 0, 0}, {2, 1, 0}, {1, 1, 0}, // right quad, 4 and 7 duplicate 1 and 2
	}
	indices := []uint32{
		0, 1, 2, 0, 2, 3,
		4, 5, 6, 4, 6, 7,
	}
	remap, wedge := buildPositionRemap(positions)
	assert.Equal(t, uint32(1), remap[4])
	assert.Equal(t, uint32(2), remap[7])
	assert.Equal(t, uint32(4), wedge[1])
	assert.Equal(t, uint32(1), wedge[4])

	adj := newEdgeAdjacency(len(indices), len(positions))
	adj.update(indices, nil)
	kinds, _, _ := classifyVertices(adj, len(positions), remap, wedge, false)
	// seam vertices at the mesh border have extra open edges
	assert.Equal(t, kindLocked, kinds[1])
	assert.Equal(t, kindLocked, kinds[4])
	assert.Equal(t, kindBorder, kinds[0])
}

func TestQuadricError(t *testing.T) {
	q := quadricFromTriangle([3]float32{0, 0, 0}, [3]float32{1, 0, 0}, [3]float32{0, 1, 0}, 1)
	assert.InDelta(t, 0, q.error([3]float32{5, 7, 0}), 1e-6)
	assert.InDelta(t, 4, q.error([3]float32{0, 0, 2}), 1e-5)
}
