package importer

import (
	"github.com/binzume/gpumodel/internal/parallel"
	"github.com/binzume/gpumodel/meshopt"
	"github.com/binzume/gpumodel/model"
	"github.com/chewxy/math32"
	"go.uber.org/zap"
)

const (
	overdrawThreshold = 1.05

	lodBaseRatio      = 0.1
	lodMaxCount       = 3
	lodTargetError    = 0.05
	lodMinIndexCount  = 3 * 47
	maxMeshletVerts   = 96
	minMeshletTris    = 96
	maxMeshletTris    = 124
	meshletConeWeight = 0.25
	meshletSplit      = 2.0
)

func attributeStream(attrs []model.VertexAttributes) meshopt.Stream {
	return func(dst []byte, i int) []byte {
		a := &attrs[i]
		dst = meshopt.AppendFloat32s(dst, a.Color[:]...)
		dst = meshopt.AppendFloat32s(dst, a.Normal[:]...)
		dst = meshopt.AppendFloat32s(dst, a.Tangent[:]...)
		dst = meshopt.AppendFloat32s(dst, a.Bitangent[:]...)
		return meshopt.AppendFloat32s(dst, a.TexCoord[:]...)
	}
}

func remapVertices(mesh *model.Mesh, remap []uint32, count int) {
	mesh.Positions = meshopt.RemapVertexBuffer(mesh.Positions, count, remap)
	if mesh.HasAttributes() {
		mesh.Attributes = meshopt.RemapVertexBuffer(mesh.Attributes, count, remap)
	}
}

// OptimizeDataLayout reorders LOD 0 for the vertex cache and overdraw, merges identical
// vertices and sorts the vertex buffers in fetch order. The mesh gets a new index buffer
// holding LOD 0 and its position-only shadow indices.
func OptimizeDataLayout(mesh *model.Mesh) {
	if len(mesh.LODs) == 0 {
		return
	}
	vertexCount := len(mesh.Positions)
	src := mesh.LODIndices(0)

	indices := make([]uint32, len(src))
	meshopt.OptimizeVertexCache(indices, src, vertexCount)
	ordered := make([]uint32, len(indices))
	meshopt.OptimizeOverdraw(ordered, indices, mesh.Positions, overdrawThreshold)
	indices = ordered

	streams := []meshopt.Stream{meshopt.PositionStream(mesh.Positions)}
	if mesh.HasAttributes() {
		streams = append(streams, attributeStream(mesh.Attributes))
	}
	remap, unique := meshopt.GenerateVertexRemapMulti(indices, vertexCount, streams...)
	meshopt.RemapIndexBuffer(indices, indices, remap)
	remapVertices(mesh, remap, unique)

	remap, unique = meshopt.OptimizeVertexFetchRemap(indices, unique)
	meshopt.RemapIndexBuffer(indices, indices, remap)
	remapVertices(mesh, remap, unique)

	shadow := meshopt.GenerateShadowIndexBuffer(indices, unique, meshopt.PositionStream(mesh.Positions))

	buf := model.NewIndexBuffer(len(indices) * 2)
	ranges := buf.Append(indices, shadow)
	mesh.Indices = buf
	mesh.LODs = []model.LOD{{Indices: ranges[0], ShadowIndices: ranges[1]}}
}

// DetermineLODCountAndRatio returns how many LODs to build below LOD 0 and the index
// count ratio between consecutive levels. At most three levels are built; the ratio is
// raised to spread them when more would be needed.
func DetermineLODCountAndRatio(positions []model.Position, indices []uint32) (int, float32) {
	ratio := float32(lodBaseRatio)
	if len(positions) == 0 || len(indices) == 0 {
		return 0, ratio
	}
	count := int(math32.Ceil(math32.Log(float32(lodMinIndexCount)/float32(len(indices))) / math32.Log(ratio)))
	if count > lodMaxCount {
		ratio = math32.Pow(ratio, float32(count)/lodMaxCount)
		count = lodMaxCount
	}
	if count < 1 {
		return 0, ratio
	}
	return count, ratio
}

type lodResult struct {
	indices []uint32
	ranges  []model.IndexRange
	error   float32
}

// nonEmptyLODs keeps the results that hold triangles, in level order.
func nonEmptyLODs(results []lodResult) []model.LOD {
	var lods []model.LOD
	for _, r := range results {
		if len(r.indices) == 0 {
			continue
		}
		lods = append(lods, model.LOD{
			Indices:       r.ranges[0],
			ShadowIndices: r.ranges[1],
			Error:         r.error,
		})
	}
	return lods
}

// GenerateLODs simplifies LOD 0 into progressively coarser levels. Levels that simplify to
// nothing are dropped; LOD 0 is always kept.
func GenerateLODs(mesh *model.Mesh, pool *parallel.WorkerPool, log *zap.Logger) {
	if len(mesh.LODs) == 0 {
		return
	}
	base := mesh.LODIndices(0)
	count, ratio := DetermineLODCountAndRatio(mesh.Positions, base)
	if count == 0 {
		return
	}
	scale := meshopt.SimplifyScale(mesh.Positions)
	vertexCount := len(mesh.Positions)

	reserve := 0
	targets := make([]int, count)
	for i := range targets {
		r := math32.Pow(ratio, float32(i+1))
		targets[i] = int(float32(len(base))*r/3) * 3
		reserve += targets[i] * 2
	}
	mesh.Indices.Reserve(mesh.Indices.Len() + reserve)

	results := make([]lodResult, count)
	run := func(i int) {
		r := math32.Pow(ratio, float32(i+1))
		options := meshopt.SimplifyPrune
		if r <= 4/math32.Sqrt(float32(len(base))) {
			options |= meshopt.SimplifySparse
		}
		simplified, lodError := meshopt.Simplify(base, mesh.Positions, targets[i], lodTargetError, options)
		if len(simplified) > 0 {
			meshopt.OptimizeVertexCache(simplified, simplified, vertexCount)
		}
		shadow := meshopt.GenerateShadowIndexBuffer(simplified, vertexCount, meshopt.PositionStream(mesh.Positions))
		results[i] = lodResult{
			indices: simplified,
			ranges:  mesh.Indices.Append(simplified, shadow),
			error:   lodError * scale,
		}
	}
	if pool != nil {
		pool.ForEach(count, run)
	} else {
		for i := 0; i < count; i++ {
			run(i)
		}
	}

	mesh.LODs = append(mesh.LODs, nonEmptyLODs(results)...)
	log.Debug("lods generated",
		zap.String("mesh", mesh.Name),
		zap.Int("requested", count),
		zap.Int("lods", len(mesh.LODs)),
		zap.Float32("ratio", ratio))
}

// GenerateLODMeshlets clusters the primary indices of one LOD and computes the culling bounds
// of every cluster. A LOD without triangles gets empty arrays.
func GenerateLODMeshlets(mesh *model.Mesh, lod int, log *zap.Logger) {
	l := &mesh.LODs[lod]
	indices := mesh.LODIndices(lod)
	bound := meshopt.BuildMeshletsBound(len(indices), maxMeshletVerts, maxMeshletTris)
	if bound == 0 {
		log.Debug("no meshlets", zap.String("mesh", mesh.Name), zap.Int("lod", lod))
		l.Meshlets = model.MeshletArray{}
		l.Bounds = model.MeshletBoundsArray{}
		return
	}

	meshlets, vertices, triangles := meshopt.BuildMeshletsFlex(indices, mesh.Positions,
		maxMeshletVerts, minMeshletTris, maxMeshletTris, meshletConeWeight, meshletSplit)
	if len(meshlets) == 0 {
		log.Warn("meshlet generation produced no clusters", zap.String("mesh", mesh.Name), zap.Int("lod", lod))
		return
	}

	out := model.MeshletArray{
		Meshlets:  make([]model.Meshlet, len(meshlets)),
		Vertices:  vertices[:len(vertices):len(vertices)],
		Triangles: triangles[:len(triangles):len(triangles)],
	}
	bounds := model.MeshletBoundsArray{
		Spheres:     make([]model.BoundingSphere, len(meshlets)),
		PackedCones: make([]model.PackedCone, len(meshlets)),
		Cones:       make([]model.Cone, len(meshlets)),
	}
	for i, m := range meshlets {
		out.Meshlets[i] = model.Meshlet(m)
		v, t := out.Meshlet(i)
		meshopt.OptimizeMeshlet(v, t)
		b := meshopt.ComputeMeshletBounds(v, t, mesh.Positions)
		bounds.Spheres[i] = model.BoundingSphere{Center: b.Center, Radius: b.Radius}
		bounds.PackedCones[i] = model.PackedCone{Axis: b.ConeAxisS8, Cutoff: b.ConeCutoffS8}
		bounds.Cones[i] = model.Cone{Apex: b.ConeApex, Axis: b.ConeAxis, Cutoff: b.ConeCutoff}
	}
	l.Meshlets = out
	l.Bounds = bounds
}
