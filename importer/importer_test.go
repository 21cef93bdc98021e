package importer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"path/filepath"
	"testing"

	"github.com/binzume/gpumodel/gltfutil"
	"github.com/binzume/gpumodel/internal/parallel"
	"github.com/binzume/gpumodel/model"
	"github.com/binzume/gpumodel/texture"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// grid returns the vertices and triangles of an n x m grid of quads on the XY plane.
func grid(n, m int) ([][3]float32, []uint32) {
	var positions [][3]float32
	for y := 0; y <= m; y++ {
		for x := 0; x <= n; x++ {
			positions = append(positions, [3]float32{float32(x), float32(y), 0})
		}
	}
	var indices []uint32
	for y := 0; y < m; y++ {
		for x := 0; x < n; x++ {
			a := uint32(y*(n+1) + x)
			b, c, d := a+1, a+uint32(n+1), a+uint32(n+2)
			indices = append(indices, a, b, d, a, d, c)
		}
	}
	return positions, indices
}

// unweld gives every triangle corner its own vertex.
func unweld(positions [][3]float32, indices []uint32) ([][3]float32, []uint32) {
	out := make([][3]float32, len(indices))
	idx := make([]uint32, len(indices))
	for i, v := range indices {
		out[i] = positions[v]
		idx[i] = uint32(i)
	}
	return out, idx
}

func gridMesh(n, m int) *model.Mesh {
	positions, indices := grid(n, m)
	mesh := model.NewMesh("grid")
	mesh.Positions = positions
	r := mesh.Indices.Append(indices)[0]
	mesh.LODs = []model.LOD{{Indices: r, ShadowIndices: r}}
	return mesh
}

type triangleKey [9]float32

// triangleSet returns the triangles of indices as position triples, rotated so that the
// smallest corner comes first. Winding is kept.
func triangleSet(positions [][3]float32, indices []uint32) map[triangleKey]int {
	less := func(a, b [3]float32) bool {
		for k := 0; k < 3; k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return false
	}
	set := map[triangleKey]int{}
	for i := 0; i+2 < len(indices); i += 3 {
		p := [3][3]float32{positions[indices[i]], positions[indices[i+1]], positions[indices[i+2]]}
		first := 0
		for k := 1; k < 3; k++ {
			if less(p[k], p[first]) {
				first = k
			}
		}
		var key triangleKey
		for k := 0; k < 3; k++ {
			copy(key[k*3:], p[(first+k)%3][:])
		}
		set[key]++
	}
	return set
}

func checkLODInvariants(t *testing.T, mesh *model.Mesh) {
	t.Helper()
	require.NoError(t, mesh.Validate())
	base := len(mesh.LODIndices(0))
	for i, lod := range mesh.LODs {
		assert.True(t, mesh.Indices.Contains(lod.Indices), "lod %d", i)
		assert.True(t, mesh.Indices.Contains(lod.ShadowIndices), "lod %d shadow", i)
		assert.Equal(t, lod.Indices.Count, lod.ShadowIndices.Count)
		assert.Zero(t, lod.Indices.Count%3)
		if i > 0 {
			assert.LessOrEqual(t, int(lod.Indices.Count), base)
		}
	}
}

func TestOptions(t *testing.T) {
	assert.False(t, All.Has(StrictTextures))
	assert.True(t, All.Has(LoadMeshAttributes|OptimizeMeshes))
	assert.Equal(t, "All", All.String())
	assert.Equal(t, "All,StrictTextures", (All | StrictTextures).String())
	assert.Equal(t, "OptimizeMeshes,GenerateMeshlets", (OptimizeMeshes | GenerateMeshlets).String())
	assert.Equal(t, "None", Options(0).String())

	o, err := ParseOptions([]string{"optimizemeshes", " GenerateMeshlets", ""})
	require.NoError(t, err)
	assert.Equal(t, OptimizeMeshes|GenerateMeshlets, o)

	o, err = ParseOptions([]string{"All", "StrictTextures"})
	require.NoError(t, err)
	assert.Equal(t, All|StrictTextures, o)

	_, err = ParseOptions([]string{"Fast"})
	assert.Error(t, err)

	assert.Equal(t, texture.Channels(1, 3), (Allow1ComponentImages | Allow3ComponentImages).Channels())
	assert.True(t, All.Channels().Allows(2))
}

func TestDetermineLODCountAndRatio(t *testing.T) {
	positions := [][3]float32{{0, 0, 0}}

	count, _ := DetermineLODCountAndRatio(positions, make([]uint32, 30))
	assert.Zero(t, count)
	count, _ = DetermineLODCountAndRatio(nil, make([]uint32, 3000))
	assert.Zero(t, count)

	count, ratio := DetermineLODCountAndRatio(positions, make([]uint32, 2400))
	assert.Equal(t, 2, count)
	assert.Equal(t, float32(0.1), ratio)

	// four levels would be needed, spread over three
	count, ratio = DetermineLODCountAndRatio(positions, make([]uint32, 141*2000))
	assert.Equal(t, 3, count)
	assert.InDelta(t, 0.0464, ratio, 1e-3)
}

func TestOptimizeDataLayout(t *testing.T) {
	positions, indices := unweld(grid(8, 8))
	mesh := model.NewMesh("unwelded")
	mesh.Positions = positions
	r := mesh.Indices.Append(indices)[0]
	mesh.LODs = []model.LOD{{Indices: r, ShadowIndices: r}}
	want := triangleSet(positions, indices)

	OptimizeDataLayout(mesh)
	assert.Len(t, mesh.Positions, 81)
	assert.False(t, mesh.HasAttributes())
	require.Len(t, mesh.LODs, 1)
	checkLODInvariants(t, mesh)
	assert.Equal(t, want, triangleSet(mesh.Positions, mesh.LODIndices(0)))
	assert.Equal(t, want, triangleSet(mesh.Positions, mesh.ShadowIndices(0)))

	// vertices are in first use order
	assert.Equal(t, uint32(0), mesh.LODIndices(0)[0])

	OptimizeDataLayout(mesh)
	assert.Len(t, mesh.Positions, 81)
	assert.Equal(t, want, triangleSet(mesh.Positions, mesh.LODIndices(0)))
	assert.Equal(t, 2*len(indices), mesh.Indices.Len())
}

func TestOptimizeDataLayoutAttributes(t *testing.T) {
	positions, indices := unweld(grid(2, 2))
	mesh := model.NewMesh("seams")
	mesh.Positions = positions
	mesh.Attributes = make([]model.VertexAttributes, len(positions))
	for i := range mesh.Attributes {
		// every triangle has its own texture island
		mesh.Attributes[i].TexCoord = [2]float32{float32(i / 3), 0}
	}
	r := mesh.Indices.Append(indices)[0]
	mesh.LODs = []model.LOD{{Indices: r, ShadowIndices: r}}

	OptimizeDataLayout(mesh)
	assert.Len(t, mesh.Positions, len(positions))
	assert.Len(t, mesh.Attributes, len(positions))
	checkLODInvariants(t, mesh)

	// shadow indices weld by position
	used := map[uint32]bool{}
	for _, v := range mesh.ShadowIndices(0) {
		used[v] = true
	}
	assert.Len(t, used, 9)
}

func TestGenerateLODs(t *testing.T) {
	pool := parallel.NewWorkerPool(4)
	defer pool.Close()

	mesh := gridMesh(20, 20)
	OptimizeDataLayout(mesh)
	GenerateLODs(mesh, pool, zap.NewNop())

	require.Greater(t, len(mesh.LODs), 1)
	assert.LessOrEqual(t, len(mesh.LODs), 1+lodMaxCount)
	checkLODInvariants(t, mesh)
	assert.Zero(t, mesh.LODs[0].Error)
	for i := 1; i < len(mesh.LODs); i++ {
		assert.GreaterOrEqual(t, mesh.LODs[i].Error, float32(0))
		assert.Less(t, mesh.TriangleCount(i), mesh.TriangleCount(0))
	}
	assert.NotZero(t, mesh.TriangleCount(len(mesh.LODs)-1))

	small := gridMesh(2, 2)
	GenerateLODs(small, nil, zap.NewNop())
	assert.Len(t, small.LODs, 1)
}

func TestNonEmptyLODs(t *testing.T) {
	buf := model.NewIndexBuffer(0)
	result := func(indices []uint32, lodError float32) lodResult {
		return lodResult{indices: indices, ranges: buf.Append(indices, indices), error: lodError}
	}
	results := []lodResult{
		result([]uint32{0, 1, 2, 0, 2, 3}, 0.1),
		result(nil, 0.2),
		result([]uint32{0, 1, 2}, 0.3),
		result(nil, 0.4),
	}

	lods := nonEmptyLODs(results)
	require.Len(t, lods, 2)
	assert.Equal(t, uint32(6), lods[0].Indices.Count)
	assert.Equal(t, float32(0.1), lods[0].Error)
	assert.Equal(t, uint32(3), lods[1].Indices.Count)
	assert.Equal(t, float32(0.3), lods[1].Error)
	assert.Empty(t, nonEmptyLODs([]lodResult{result(nil, 0)}))
}

func TestGenerateLODMeshletsRoundTrip(t *testing.T) {
	mesh := gridMesh(16, 16)
	OptimizeDataLayout(mesh)
	GenerateLODs(mesh, nil, zap.NewNop())

	for lod := range mesh.LODs {
		GenerateLODMeshlets(mesh, lod, zap.NewNop())
		l := &mesh.LODs[lod]
		want := triangleSet(mesh.Positions, mesh.LODIndices(lod))

		got := map[triangleKey]int{}
		for i := 0; i < l.Meshlets.Len(); i++ {
			vertices, triangles := l.Meshlets.Meshlet(i)
			assert.LessOrEqual(t, len(vertices), maxMeshletVerts)
			assert.LessOrEqual(t, len(triangles)/3, maxMeshletTris)
			local := make([]uint32, len(triangles))
			for k, v := range triangles {
				local[k] = vertices[v]
			}
			for key, n := range triangleSet(mesh.Positions, local) {
				got[key] += n
			}
		}
		assert.Equal(t, want, got, "lod %d", lod)
		assert.Len(t, l.Bounds.Spheres, l.Meshlets.Len())
		assert.Len(t, l.Bounds.PackedCones, l.Meshlets.Len())
		assert.Len(t, l.Bounds.Cones, l.Meshlets.Len())
		assert.Equal(t, len(l.Meshlets.Vertices), cap(l.Meshlets.Vertices))
	}
}

func TestGenerateLODMeshletsEmptyLOD(t *testing.T) {
	mesh := gridMesh(1, 1)
	mesh.LODs = append(mesh.LODs, model.LOD{Indices: mesh.Indices.Append(nil)[0]})

	GenerateLODMeshlets(mesh, 1, zap.NewNop())
	assert.Zero(t, mesh.LODs[1].Meshlets.Len())
	assert.Empty(t, mesh.LODs[1].Bounds.Spheres)

	GenerateLODMeshlets(mesh, 0, zap.NewNop())
	assert.Equal(t, 1, mesh.LODs[0].Meshlets.Len())
}

func pngImage(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

// sceneDocument holds a 5x1 grid (10 triangles) with a textured material whose normal
// map is not decodable, a broken primitive and a point light.
func sceneDocument(t *testing.T) *gltf.Document {
	doc := gltf.NewDocument()
	positions, indices := grid(5, 1)
	good, err := modeler.WriteImage(doc, "gray", "image/png", bytes.NewReader(pngImage(t)))
	require.NoError(t, err)
	bad, err := modeler.WriteImage(doc, "bad", "image/ktx2", bytes.NewReader([]byte("not a texture")))
	require.NoError(t, err)
	doc.Textures = []*gltf.Texture{{Source: gltf.Index(good)}, {Source: gltf.Index(bad)}}
	doc.Materials = []*gltf.Material{{
		Name:                 "Mat",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{BaseColorTexture: &gltf.TextureInfo{Index: 0}},
		NormalTexture:        &gltf.NormalTexture{Index: gltf.Index(1)},
	}}

	pos := modeler.WritePosition(doc, positions)
	idx := modeler.WriteIndices(doc, indices)
	shortNormals := modeler.WriteNormal(doc, [][3]float32{{0, 0, 1}})
	doc.Meshes = []*gltf.Mesh{
		{Name: "strip", Primitives: []*gltf.Primitive{{
			Indices: gltf.Index(idx), Attributes: map[string]uint32{gltf.POSITION: pos}, Material: gltf.Index(0),
		}}},
		{Name: "broken", Primitives: []*gltf.Primitive{{
			Indices: gltf.Index(idx), Attributes: map[string]uint32{gltf.POSITION: pos, gltf.NORMAL: shortNormals},
		}}},
	}

	doc.Extensions = gltf.Extensions{gltfutil.ExtLightsPunctual: &gltfutil.LightsPunctual{
		Lights: []*gltfutil.Light{{Name: "bulb", Type: gltfutil.LightPoint}},
	}}
	doc.Nodes = []*gltf.Node{
		{Mesh: gltf.Index(0)},
		{Mesh: gltf.Index(1)},
		{Translation: [3]float32{0, 2, 0}, Extensions: gltf.Extensions{
			gltfutil.ExtLightsPunctual: &gltfutil.LightsPunctual{Light: gltf.Index(0)},
		}},
	}
	doc.Scenes = []*gltf.Scene{{Nodes: []uint32{0, 1, 2}}}
	doc.Scene = gltf.Index(0)
	return doc
}

func withDocument(doc *gltf.Document) Option {
	return WithParser(func(string) (*gltf.Document, error) { return doc, nil })
}

func TestImportWithoutLODs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.glb")
	require.NoError(t, gltf.SaveBinary(sceneDocument(t), path))

	m, err := Import(path, All&^GenerateDiscreteLODs)
	require.NoError(t, err)
	require.Len(t, m.Meshes, 1)
	mesh := m.Meshes[0]
	assert.Equal(t, "strip", mesh.Name)
	require.Len(t, mesh.LODs, 1)
	assert.Equal(t, 10, mesh.TriangleCount(0))
	assert.NotZero(t, mesh.LODs[0].Meshlets.Len())
	assert.Len(t, mesh.Transforms, 1)
	checkLODInvariants(t, mesh)

	// the undecodable normal map is left out
	require.Len(t, m.Materials, 1)
	assert.NotNil(t, m.Materials[0].Texture(model.TextureBaseColor))
	assert.Nil(t, m.Materials[0].Texture(model.TextureNormalMap))

	require.Len(t, m.Lights.Points, 1)
	assert.Equal(t, [3]float32{0, 2, 0}, m.Lights.Points[0].Position)
}

func TestImportAll(t *testing.T) {
	pool := parallel.NewWorkerPool(3)
	defer pool.Close()

	doc := gltf.NewDocument()
	positions, indices := grid(24, 24)
	doc.Meshes = []*gltf.Mesh{{Name: "plane", Primitives: []*gltf.Primitive{{
		Indices:    gltf.Index(modeler.WriteIndices(doc, indices)),
		Attributes: map[string]uint32{gltf.POSITION: modeler.WritePosition(doc, positions)},
	}}}}

	g := NewFlowGraph("plane.glb", All, withDocument(doc), WithPool(pool))
	assert.Equal(t, StateUnstarted, g.State().Graph)
	m, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, pool.IsRunning())
	assert.Equal(t, GraphState{
		Graph:     StateDone,
		Meshes:    StateMeshletsGenerated,
		Materials: StateMaterialsLoaded,
		Lights:    StateLightsLoaded,
	}, g.State())

	require.Len(t, m.Meshes, 1)
	mesh := m.Meshes[0]
	assert.Greater(t, len(mesh.LODs), 1)
	checkLODInvariants(t, mesh)
	for i := range mesh.LODs {
		assert.NotZero(t, mesh.LODs[i].Meshlets.Len(), "lod %d", i)
	}

	_, err = g.Run(context.Background())
	assert.Error(t, err)
}

func TestImportClosedPool(t *testing.T) {
	pool := parallel.NewWorkerPool(2)
	pool.Close()
	core, logs := observer.New(zap.WarnLevel)

	m, err := ImportContext(context.Background(), "scene.glb", All, withDocument(sceneDocument(t)),
		WithPool(pool), WithLogger(zap.New(core)))
	require.NoError(t, err)
	require.Len(t, m.Meshes, 1)
	checkLODInvariants(t, m.Meshes[0])
	assert.Equal(t, 1, logs.FilterMessageSnippet("worker pool is closed").Len())
}

func TestImportStrictTextures(t *testing.T) {
	_, err := ImportContext(context.Background(), "scene.glb", All|StrictTextures, withDocument(sceneDocument(t)))
	require.Error(t, err)
	assert.ErrorIs(t, err, texture.ErrUnsupportedImage)

	m, err := ImportContext(context.Background(), "scene.glb", StrictTextures, withDocument(sceneDocument(t)))
	require.NoError(t, err)
	assert.Empty(t, m.Materials)
}

func TestImportParseFailure(t *testing.T) {
	m, err := Import(filepath.Join(t.TempDir(), "missing.glb"), All)
	require.Error(t, err)
	assert.Nil(t, m)
	assert.ErrorIs(t, err, ErrParse)

	parseErr := errors.New("bad json")
	g := NewFlowGraph("x.gltf", All, WithParser(func(string) (*gltf.Document, error) { return nil, parseErr }))
	_, err = g.Run(context.Background())
	assert.ErrorIs(t, err, parseErr)
	assert.Equal(t, StateFailed, g.State().Graph)
	assert.Equal(t, StateUnstarted, g.State().Meshes)
}

func TestImportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ImportContext(ctx, "scene.glb", All, withDocument(sceneDocument(t)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "fanned-out", StateFannedOut.String())
	assert.Equal(t, "unknown", State(99).String())
}
