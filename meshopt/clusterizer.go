package meshopt

import (
	"github.com/chewxy/math32"
)

// Meshlet mirrors model.Meshlet so that the package has no dependency on the data model.
type Meshlet struct {
	VertexOffset   uint32
	TriangleOffset uint32
	VertexCount    uint32
	TriangleCount  uint32
}

// Bounds is the culling data of a meshlet.
type Bounds struct {
	Center [3]float32
	Radius float32

	ConeApex   [3]float32
	ConeAxis   [3]float32
	ConeCutoff float32

	ConeAxisS8   [3]int8
	ConeCutoffS8 int8
}

// BuildMeshletsBound returns the worst case meshlet count for the given limits.
func BuildMeshletsBound(indexCount, maxVertices, maxTriangles int) int {
	if indexCount == 0 || maxVertices < 3 || maxTriangles < 1 {
		return 0
	}
	// assume two vertices are wasted per meshlet, a third always fits any triangle
	maxVerticesConservative := maxVertices - 2
	limitVertices := (indexCount + maxVerticesConservative - 1) / maxVerticesConservative
	limitTriangles := (indexCount/3 + maxTriangles - 1) / maxTriangles
	return max(limitVertices, limitTriangles)
}

type triangleCone struct {
	center [3]float32
	normal [3]float32
}

type meshletBuilder struct {
	indices   []uint32
	positions [][3]float32

	maxVertices  int
	minTriangles int
	maxTriangles int
	coneWeight   float32
	splitFactor  float32

	adj           *triangleAdjacency
	liveTriangles []uint32
	cones         []triangleCone
	emitted       []bool
	expected      float32

	used []uint8 // local index of a vertex in the current meshlet, 0xff when unused

	current       Meshlet
	coneCenterSum [3]float32
	coneNormalSum [3]float32

	meshlets  []Meshlet
	vertices  []uint32
	triangles []uint8
}

func (b *meshletBuilder) computeTriangleCones() float32 {
	faceCount := len(b.indices) / 3
	b.cones = make([]triangleCone, faceCount)
	var totalArea float32
	for i := 0; i < faceCount; i++ {
		p0 := b.positions[b.indices[i*3]]
		p1 := b.positions[b.indices[i*3+1]]
		p2 := b.positions[b.indices[i*3+2]]
		n := cross(sub(p1, p0), sub(p2, p0))
		area := length(n)
		b.cones[i] = triangleCone{
			center: [3]float32{(p0[0] + p1[0] + p2[0]) / 3, (p0[1] + p1[1] + p2[1]) / 3, (p0[2] + p1[2] + p2[2]) / 3},
			normal: normalize(n),
		}
		totalArea += area / 2
	}
	if faceCount == 0 {
		return 0
	}
	return totalArea / float32(faceCount)
}

func (b *meshletBuilder) meshletCone() triangleCone {
	n := float32(b.current.TriangleCount)
	if n == 0 {
		return triangleCone{}
	}
	return triangleCone{
		center: [3]float32{b.coneCenterSum[0] / n, b.coneCenterSum[1] / n, b.coneCenterSum[2] / n},
		normal: normalize(b.coneNormalSum),
	}
}

func (b *meshletBuilder) score(tri uint32, cone *triangleCone) float32 {
	tc := &b.cones[tri]
	distance := length(sub(tc.center, cone.center))
	spread := dot(tc.normal, cone.normal)
	c := 1 - spread*b.coneWeight
	if c < 1e-3 {
		c = 1e-3
	}
	return (1 + distance/b.expected*(1-b.coneWeight)) * c
}

func (b *meshletBuilder) extraVertices(tri uint32) uint32 {
	extra := uint32(0)
	for k := uint32(0); k < 3; k++ {
		if b.used[b.indices[tri*3+k]] == 0xff {
			extra++
		}
	}
	return extra
}

// bestNeighbor picks the next triangle adjacent to the current meshlet. Triangles adding fewer vertices win,
// spatial score breaks ties.
func (b *meshletBuilder) bestNeighbor(cone *triangleCone) (int, float32) {
	best := -1
	bestPriority := uint32(5)
	bestScore := float32(math32.MaxFloat32)

	mv := b.vertices[b.current.VertexOffset:]
	for _, v := range mv {
		for _, tri := range b.adj.neighbors(v) {
			a, bb, c := b.indices[tri*3], b.indices[tri*3+1], b.indices[tri*3+2]
			extra := b.extraVertices(tri)
			if extra != 0 {
				// dangling triangles are expensive to pick up later
				if b.liveTriangles[a] == 1 || b.liveTriangles[bb] == 1 || b.liveTriangles[c] == 1 {
					extra = 0
				}
				extra++
			}
			if extra > bestPriority {
				continue
			}
			s := b.score(tri, cone)
			if extra < bestPriority || s < bestScore {
				best = int(tri)
				bestPriority = extra
				bestScore = s
			}
		}
	}
	return best, bestScore
}

func (b *meshletBuilder) finish() {
	if b.current.TriangleCount == 0 {
		return
	}
	b.meshlets = append(b.meshlets, b.current)
	for _, v := range b.vertices[b.current.VertexOffset:] {
		b.used[v] = 0xff
	}
	b.current = Meshlet{
		VertexOffset:   uint32(len(b.vertices)),
		TriangleOffset: uint32(len(b.triangles)),
	}
	b.coneCenterSum = [3]float32{}
	b.coneNormalSum = [3]float32{}
}

// appendTriangle adds tri to the current meshlet, starting a new one first when a limit would be exceeded.
func (b *meshletBuilder) appendTriangle(tri uint32, split bool) {
	extra := b.extraVertices(tri)
	if int(b.current.VertexCount+extra) > b.maxVertices || int(b.current.TriangleCount) >= b.maxTriangles || split {
		b.finish()
	}

	var local [3]uint8
	for k := uint32(0); k < 3; k++ {
		v := b.indices[tri*3+k]
		if b.used[v] == 0xff {
			b.used[v] = uint8(b.current.VertexCount)
			b.vertices = append(b.vertices, v)
			b.current.VertexCount++
		}
		local[k] = b.used[v]
	}
	b.triangles = append(b.triangles, local[0], local[1], local[2])
	b.current.TriangleCount++

	tc := &b.cones[tri]
	for k := 0; k < 3; k++ {
		b.coneCenterSum[k] += tc.center[k]
		b.coneNormalSum[k] += tc.normal[k]
	}

	b.emitted[tri] = true
	for k := uint32(0); k < 3; k++ {
		v := b.indices[tri*3+k]
		b.adj.remove(v, tri)
		b.liveTriangles[v]--
	}
}

// BuildMeshletsFlex partitions indices into meshlets of at most maxVertices vertices and maxTriangles triangles.
// Once a meshlet has minTriangles triangles it is split early when the next triangle scores worse than splitFactor.
// coneWeight in [0, 1] trades spatial compactness for normal cone tightness.
// Triangles are stored as 3 local indices each, tightly packed.
func BuildMeshletsFlex(indices []uint32, positions [][3]float32, maxVertices, minTriangles, maxTriangles int, coneWeight, splitFactor float32) ([]Meshlet, []uint32, []uint8) {
	faceCount := len(indices) / 3
	if faceCount == 0 {
		return nil, nil, nil
	}
	if maxVertices > 255 {
		maxVertices = 255
	}
	if minTriangles > maxTriangles {
		minTriangles = maxTriangles
	}

	b := &meshletBuilder{
		indices:      indices[:faceCount*3],
		positions:    positions,
		maxVertices:  maxVertices,
		minTriangles: minTriangles,
		maxTriangles: maxTriangles,
		coneWeight:   coneWeight,
		splitFactor:  splitFactor,
		emitted:      make([]bool, faceCount),
		used:         make([]uint8, len(positions)),
	}
	for i := range b.used {
		b.used[i] = 0xff
	}
	avgArea := b.computeTriangleCones()
	b.expected = math32.Sqrt(avgArea*float32(maxTriangles)) * 0.5
	if b.expected == 0 {
		b.expected = 1
	}

	b.adj = buildTriangleAdjacency(b.indices, len(positions))
	b.liveTriangles = make([]uint32, len(positions))
	copy(b.liveTriangles, b.adj.counts)

	bound := BuildMeshletsBound(len(indices), maxVertices, minTriangles)
	b.meshlets = make([]Meshlet, 0, bound)
	b.vertices = make([]uint32, 0, len(indices))
	b.triangles = make([]uint8, 0, len(indices))

	cursor := 0
	for {
		cone := b.meshletCone()
		tri, score := b.bestNeighbor(&cone)
		split := false
		if tri >= 0 && int(b.current.TriangleCount) >= b.minTriangles && b.splitFactor > 0 && score > b.splitFactor {
			split = true
		}
		if tri < 0 {
			// the current meshlet has no live neighbors; continue with the next triangle in input order
			for cursor < faceCount && b.emitted[cursor] {
				cursor++
			}
			if cursor == faceCount {
				break
			}
			tri = cursor
		}
		if b.isDegenerate(uint32(tri)) {
			b.emitted[tri] = true
			for k := 0; k < 3; k++ {
				v := b.indices[tri*3+k]
				b.adj.remove(v, uint32(tri))
				b.liveTriangles[v]--
			}
			continue
		}
		b.appendTriangle(uint32(tri), split)
	}
	b.finish()

	return b.meshlets, b.vertices[:len(b.vertices):len(b.vertices)], b.triangles[:len(b.triangles):len(b.triangles)]
}

func (b *meshletBuilder) isDegenerate(tri uint32) bool {
	a, bb, c := b.indices[tri*3], b.indices[tri*3+1], b.indices[tri*3+2]
	return a == bb || a == c || bb == c
}

// OptimizeMeshlet reorders the triangles of a meshlet for locality and renumbers its vertices
// in first use order. Winding is preserved.
func OptimizeMeshlet(vertices []uint32, triangles []uint8) {
	triCount := len(triangles) / 3
	if triCount == 0 {
		return
	}

	// greedy triangle order: prefer triangles sharing the most vertices with the last one
	src := append([]uint8(nil), triangles[:triCount*3]...)
	emitted := make([]bool, triCount)
	order := make([]int, 0, triCount)
	last := 0
	emitted[0] = true
	order = append(order, 0)
	for len(order) < triCount {
		best, bestShared := -1, -1
		la, lb, lc := src[last*3], src[last*3+1], src[last*3+2]
		for t := 0; t < triCount; t++ {
			if emitted[t] {
				continue
			}
			shared := 0
			for k := 0; k < 3; k++ {
				v := src[t*3+k]
				if v == la || v == lb || v == lc {
					shared++
				}
			}
			if shared > bestShared {
				best, bestShared = t, shared
				if shared >= 2 {
					break
				}
			}
		}
		emitted[best] = true
		order = append(order, best)
		last = best
	}

	// vertices in first use order
	remap := make([]int, len(vertices))
	for i := range remap {
		remap[i] = -1
	}
	newVertices := make([]uint32, 0, len(vertices))
	for i, t := range order {
		for k := 0; k < 3; k++ {
			v := src[t*3+k]
			if remap[v] < 0 {
				remap[v] = len(newVertices)
				newVertices = append(newVertices, vertices[v])
			}
			triangles[i*3+k] = uint8(remap[v])
		}
	}
	// vertices not used by any triangle keep trailing slots
	for v, r := range remap {
		if r < 0 {
			newVertices = append(newVertices, vertices[v])
		}
	}
	copy(vertices, newVertices)
}

// computeBoundingSphere returns a sphere containing all points.
func computeBoundingSphere(points [][3]float32) ([3]float32, float32) {
	if len(points) == 0 {
		return [3]float32{}, 0
	}
	var pmin, pmax [3]int
	for i, p := range points {
		for axis := 0; axis < 3; axis++ {
			if p[axis] < points[pmin[axis]][axis] {
				pmin[axis] = i
			}
			if p[axis] > points[pmax[axis]][axis] {
				pmax[axis] = i
			}
		}
	}
	// the longest axis extremum pair gives the initial diameter
	var paxisd2 float32
	paxis := 0
	for axis := 0; axis < 3; axis++ {
		d := sub(points[pmax[axis]], points[pmin[axis]])
		d2 := dot(d, d)
		if d2 > paxisd2 {
			paxisd2 = d2
			paxis = axis
		}
	}
	p1 := points[pmin[paxis]]
	p2 := points[pmax[paxis]]
	center := [3]float32{(p1[0] + p2[0]) / 2, (p1[1] + p2[1]) / 2, (p1[2] + p2[2]) / 2}
	radius := math32.Sqrt(paxisd2) / 2

	for _, p := range points {
		d := sub(p, center)
		d2 := dot(d, d)
		if d2 > radius*radius {
			dist := math32.Sqrt(d2)
			k := 0.5 + (radius/dist)/2
			center = [3]float32{
				center[0]*k + p[0]*(1-k),
				center[1]*k + p[1]*(1-k),
				center[2]*k + p[2]*(1-k),
			}
			radius = (radius + dist) / 2
		}
	}
	return center, radius
}

func quantizeSnorm8(v float32) int8 {
	const scale = 127
	round := float32(0.5)
	if v < 0 {
		round = -0.5
	}
	v = math32.Max(-1, math32.Min(1, v))
	return int8(v*scale + round)
}

// ComputeMeshletBounds computes the bounding sphere and the backface culling cone of a meshlet.
// A cone that cannot be used for culling has ConeCutoff 1 and ConeCutoffS8 127.
func ComputeMeshletBounds(vertices []uint32, triangles []uint8, positions [][3]float32) Bounds {
	triCount := len(triangles) / 3
	normals := make([][3]float32, 0, triCount)
	corners := make([][3]float32, 0, triCount*3)
	for i := 0; i < triCount; i++ {
		p0 := positions[vertices[triangles[i*3]]]
		p1 := positions[vertices[triangles[i*3+1]]]
		p2 := positions[vertices[triangles[i*3+2]]]
		n := cross(sub(p1, p0), sub(p2, p0))
		area := length(n)
		// degenerate triangles are invisible
		if area == 0 {
			continue
		}
		normals = append(normals, [3]float32{n[0] / area, n[1] / area, n[2] / area})
		corners = append(corners, p0, p1, p2)
	}

	var bounds Bounds
	if len(normals) == 0 {
		return bounds
	}

	center, radius := computeBoundingSphere(corners)
	bounds.Center = center
	bounds.Radius = radius

	// the bounding sphere of the normals gives the cone axis
	axis, _ := computeBoundingSphere(normals)
	axis = normalize(axis)

	mindp := float32(1)
	for _, n := range normals {
		mindp = math32.Min(mindp, dot(n, axis))
	}

	// normal cone wider than ~168 degrees is not useful
	if mindp <= 0.1 {
		bounds.ConeCutoff = 1
		bounds.ConeCutoffS8 = 127
		return bounds
	}

	// apex: the point on center - t*axis in the negative half space of all triangles
	var maxt float32
	for i, n := range normals {
		c := sub(center, corners[i*3])
		dc := dot(c, n)
		dn := dot(axis, n)
		t := dc / dn
		if t > maxt {
			maxt = t
		}
	}
	bounds.ConeApex = [3]float32{center[0] - axis[0]*maxt, center[1] - axis[1]*maxt, center[2] - axis[2]*maxt}
	bounds.ConeAxis = axis
	// the cone is inverted and widened by 90 degrees: sin(a) = sqrt(1 - cos^2(a))
	bounds.ConeCutoff = math32.Sqrt(1 - mindp*mindp)

	var errSum float32
	for k := 0; k < 3; k++ {
		bounds.ConeAxisS8[k] = quantizeSnorm8(axis[k])
		errSum += math32.Abs(float32(bounds.ConeAxisS8[k])/127 - axis[k])
	}
	// rounded up so that the 8 bit test stays conservative
	cutoff := int(127*(bounds.ConeCutoff+errSum) + 1)
	if cutoff > 127 {
		cutoff = 127
	}
	bounds.ConeCutoffS8 = int8(cutoff)
	return bounds
}
