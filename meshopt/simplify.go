package meshopt

import (
	"sort"

	"github.com/chewxy/math32"
)

type SimplifyOptions uint32

const (
	// SimplifyLockBorder keeps vertices on open mesh borders in place.
	SimplifyLockBorder SimplifyOptions = 1 << iota
	// SimplifySparse only processes the vertices referenced by the index buffer.
	// The error becomes relative to the extent of the referenced subset.
	SimplifySparse
	// SimplifyPrune removes disconnected parts whose size is below the target error.
	SimplifyPrune
)

type vertexKind uint8

const (
	kindManifold vertexKind = iota // not on an attribute seam, not on any boundary
	kindBorder                     // not on an attribute seam, has exactly two open edges
	kindSeam                       // on an attribute seam with exactly two attribute seam edges
	kindLocked                     // none of the above; can't move
)

var canCollapse = [4][4]bool{
	{true, true, true, true},
	{false, true, false, false},
	{false, false, true, false},
	{false, false, false, false},
}

// manifold and seam edges are guaranteed to have an opposite edge in the position-only topology
var hasOpposite = [4][4]bool{
	{true, true, true, true},
	{true, false, true, false},
	{true, true, true, true},
	{true, false, true, false},
}

type halfEdge struct {
	next uint32
	prev uint32
}

type edgeAdjacency struct {
	counts  []uint32
	offsets []uint32
	data    []halfEdge
}

func newEdgeAdjacency(indexCount, vertexCount int) *edgeAdjacency {
	return &edgeAdjacency{
		counts:  make([]uint32, vertexCount),
		offsets: make([]uint32, vertexCount),
		data:    make([]halfEdge, indexCount),
	}
}

// update rebuilds the adjacency for indices, welding vertices through remap when it is not nil.
func (a *edgeAdjacency) update(indices []uint32, remap []uint32) {
	for i := range a.counts {
		a.counts[i] = 0
	}
	r := func(v uint32) uint32 {
		if remap != nil {
			return remap[v]
		}
		return v
	}
	for _, v := range indices {
		a.counts[r(v)]++
	}
	var offset uint32
	for i, c := range a.counts {
		a.offsets[i] = offset
		offset += c
	}
	fill := make([]uint32, len(a.counts))
	copy(fill, a.offsets)
	for i := 0; i+2 < len(indices); i += 3 {
		v0, v1, v2 := r(indices[i]), r(indices[i+1]), r(indices[i+2])
		a.data[fill[v0]] = halfEdge{next: v1, prev: v2}
		fill[v0]++
		a.data[fill[v1]] = halfEdge{next: v2, prev: v0}
		fill[v1]++
		a.data[fill[v2]] = halfEdge{next: v0, prev: v1}
		fill[v2]++
	}
}

func (a *edgeAdjacency) edges(v uint32) []halfEdge {
	return a.data[a.offsets[v] : a.offsets[v]+a.counts[v]]
}

func (a *edgeAdjacency) hasEdge(from, to uint32) bool {
	for _, e := range a.edges(from) {
		if e.next == to {
			return true
		}
	}
	return false
}

// buildPositionRemap maps every vertex to the first vertex with the same position and
// links vertices sharing a position into a circular wedge list.
func buildPositionRemap(positions [][3]float32) (remap, wedge []uint32) {
	remap = make([]uint32, len(positions))
	wedge = make([]uint32, len(positions))
	seen := make(map[[3]uint32]uint32, len(positions))
	for i, p := range positions {
		k := [3]uint32{math32.Float32bits(p[0]), math32.Float32bits(p[1]), math32.Float32bits(p[2])}
		if r, ok := seen[k]; ok {
			remap[i] = r
		} else {
			seen[k] = uint32(i)
			remap[i] = uint32(i)
		}
		wedge[i] = uint32(i)
	}
	for i := range remap {
		if r := remap[i]; r != uint32(i) {
			wedge[i] = wedge[r]
			wedge[r] = uint32(i)
		}
	}
	return remap, wedge
}

func classifyVertices(adj *edgeAdjacency, vertexCount int, remap, wedge []uint32, lockBorder bool) (kinds []vertexKind, loop, loopback []uint32) {
	loop = make([]uint32, vertexCount)
	loopback = make([]uint32, vertexCount)
	for i := range loop {
		loop[i] = Unused
		loopback[i] = Unused
	}
	// loop[v] is the single open edge leaving v, loopback[v] the single open edge entering it;
	// v itself when there are several.
	for v := 0; v < vertexCount; v++ {
		vertex := uint32(v)
		for _, e := range adj.edges(vertex) {
			target := e.next
			if adj.hasEdge(target, vertex) {
				continue
			}
			if loopback[target] == Unused {
				loopback[target] = vertex
			} else {
				loopback[target] = target
			}
			if loop[vertex] == Unused {
				loop[vertex] = target
			} else {
				loop[vertex] = vertex
			}
		}
	}

	kinds = make([]vertexKind, vertexCount)
	for i := 0; i < vertexCount; i++ {
		v := uint32(i)
		if remap[v] != v {
			kinds[v] = kinds[remap[v]]
			continue
		}
		switch {
		case wedge[v] == v:
			in, out := loopback[v], loop[v]
			if in == Unused && out == Unused {
				kinds[v] = kindManifold
			} else if in != v && out != v && in != Unused && out != Unused {
				kinds[v] = kindBorder
			} else {
				kinds[v] = kindLocked
			}
		case wedge[wedge[v]] == v:
			w := wedge[v]
			iv, ov := loopback[v], loop[v]
			iw, ow := loopback[w], loop[w]
			// a seam has one open half-edge per wedge vertex and the edges connect after welding
			if iv != Unused && iv != v && ov != Unused && ov != v &&
				iw != Unused && iw != w && ow != Unused && ow != w &&
				remap[iv] == remap[ow] && remap[ov] == remap[iw] && remap[iv] != remap[ov] {
				kinds[v] = kindSeam
			} else {
				kinds[v] = kindLocked
			}
		default:
			kinds[v] = kindLocked
		}
	}
	if lockBorder {
		for i, k := range kinds {
			if k == kindBorder {
				kinds[i] = kindLocked
			}
		}
	}
	return kinds, loop, loopback
}

type quadric struct {
	a00, a11, a22 float32
	a10, a20, a21 float32
	b0, b1, b2    float32
	c             float32
	w             float32
}

func (q *quadric) add(r *quadric) {
	q.a00 += r.a00
	q.a11 += r.a11
	q.a22 += r.a22
	q.a10 += r.a10
	q.a20 += r.a20
	q.a21 += r.a21
	q.b0 += r.b0
	q.b1 += r.b1
	q.b2 += r.b2
	q.c += r.c
	q.w += r.w
}

func (q *quadric) error(v [3]float32) float32 {
	rx := q.b0
	ry := q.b1
	rz := q.b2

	rx += q.a10 * v[1]
	ry += q.a21 * v[2]
	rz += q.a20 * v[0]

	rx *= 2
	ry *= 2
	rz *= 2

	rx += q.a00 * v[0]
	ry += q.a11 * v[1]
	rz += q.a22 * v[2]

	r := q.c
	r += rx * v[0]
	r += ry * v[1]
	r += rz * v[2]

	if q.w == 0 {
		return 0
	}
	return math32.Abs(r) / q.w
}

func quadricFromPlane(a, b, c, d, w float32) quadric {
	aw, bw, cw, dw := a*w, b*w, c*w, d*w
	return quadric{
		a00: a * aw, a11: b * bw, a22: c * cw,
		a10: a * bw, a20: a * cw, a21: b * cw,
		b0: a * dw, b1: b * dw, b2: c * dw,
		c: d * dw,
		w: w,
	}
}

func quadricFromTriangle(p0, p1, p2 [3]float32, weight float32) quadric {
	n := cross(sub(p1, p0), sub(p2, p0))
	area := length(n)
	n = normalize(n)
	distance := dot(n, p0)
	// sqrt(area) keeps the error linear in scale
	return quadricFromPlane(n[0], n[1], n[2], -distance, math32.Sqrt(area)*weight)
}

func quadricFromTriangleEdge(p0, p1, p2 [3]float32, weight float32) quadric {
	p10 := sub(p1, p0)
	l := length(p10)
	p10 = normalize(p10)
	p20 := sub(p2, p0)
	p20p := dot(p20, p10)
	// altitude of the triangle from p2 onto the edge
	n := normalize([3]float32{p20[0] - p10[0]*p20p, p20[1] - p10[1]*p20p, p20[2] - p10[2]*p20p})
	distance := dot(n, p0)
	return quadricFromPlane(n[0], n[1], n[2], -distance, l*weight)
}

// rescalePositions maps positions into the unit cube and returns the original extent.
func rescalePositions(positions [][3]float32) ([][3]float32, float32) {
	extent := SimplifyScale(positions)
	if len(positions) == 0 {
		return nil, 0
	}
	lo := positions[0]
	for _, p := range positions {
		for k := 0; k < 3; k++ {
			lo[k] = math32.Min(lo[k], p[k])
		}
	}
	scale := float32(0)
	if extent > 0 {
		scale = 1 / extent
	}
	out := make([][3]float32, len(positions))
	for i, p := range positions {
		out[i] = [3]float32{(p[0] - lo[0]) * scale, (p[1] - lo[1]) * scale, (p[2] - lo[2]) * scale}
	}
	return out, extent
}

// SimplifyScale returns the factor converting relative simplification errors to mesh units.
func SimplifyScale(positions [][3]float32) float32 {
	if len(positions) == 0 {
		return 0
	}
	lo, hi := positions[0], positions[0]
	for _, p := range positions {
		for k := 0; k < 3; k++ {
			lo[k] = math32.Min(lo[k], p[k])
			hi[k] = math32.Max(hi[k], p[k])
		}
	}
	return math32.Max(hi[0]-lo[0], math32.Max(hi[1]-lo[1], hi[2]-lo[2]))
}

type collapse struct {
	v0    uint32
	v1    uint32
	bidi  bool
	error float32
}

var nextEdge = [3]int{1, 2, 0}

type simplifier struct {
	positions [][3]float32
	remap     []uint32
	wedge     []uint32
	kinds     []vertexKind
	loop      []uint32
	loopback  []uint32
	quadrics  []quadric
}

func newSimplifier(indices []uint32, positions [][3]float32, options SimplifyOptions) *simplifier {
	vertexCount := len(positions)
	s := &simplifier{positions: positions}
	s.remap, s.wedge = buildPositionRemap(positions)

	adj := newEdgeAdjacency(len(indices), vertexCount)
	adj.update(indices, nil)
	s.kinds, s.loop, s.loopback = classifyVertices(adj, vertexCount, s.remap, s.wedge, options&SimplifyLockBorder != 0)

	s.quadrics = make([]quadric, vertexCount)
	s.fillFaceQuadrics(indices)
	s.fillEdgeQuadrics(indices)
	return s
}

func (s *simplifier) fillFaceQuadrics(indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		q := quadricFromTriangle(s.positions[i0], s.positions[i1], s.positions[i2], 1)
		s.quadrics[s.remap[i0]].add(&q)
		s.quadrics[s.remap[i1]].add(&q)
		s.quadrics[s.remap[i2]].add(&q)
	}
}

func isOnLoop(k vertexKind) bool {
	return k == kindBorder || k == kindSeam
}

func (s *simplifier) fillEdgeQuadrics(indices []uint32) {
	const (
		edgeWeightSeam   = 1
		edgeWeightBorder = 10
	)
	for i := 0; i+2 < len(indices); i += 3 {
		for e := 0; e < 3; e++ {
			i0 := indices[i+e]
			i1 := indices[i+nextEdge[e]]
			k0, k1 := s.kinds[i0], s.kinds[i1]

			if !isOnLoop(k0) && !isOnLoop(k1) {
				continue
			}
			if isOnLoop(k0) && s.loop[i0] != i1 {
				continue
			}
			if isOnLoop(k1) && s.loopback[i1] != i0 {
				continue
			}
			// seam edges occur twice; keep one
			if hasOpposite[k0][k1] && s.remap[i1] > s.remap[i0] {
				continue
			}
			i2 := indices[i+nextEdge[nextEdge[e]]]
			weight := float32(edgeWeightSeam)
			if k0 == kindBorder || k1 == kindBorder {
				weight = edgeWeightBorder
			}
			q := quadricFromTriangleEdge(s.positions[i0], s.positions[i1], s.positions[i2], weight)
			s.quadrics[s.remap[i0]].add(&q)
			s.quadrics[s.remap[i1]].add(&q)
		}
	}
}

func (s *simplifier) pickEdgeCollapses(indices []uint32) []collapse {
	var result []collapse
	for i := 0; i+2 < len(indices); i += 3 {
		for e := 0; e < 3; e++ {
			i0 := indices[i+e]
			i1 := indices[i+nextEdge[e]]

			// zero length edges are left alone
			if s.remap[i0] == s.remap[i1] {
				continue
			}
			k0, k1 := s.kinds[i0], s.kinds[i1]
			if !canCollapse[k0][k1] && !canCollapse[k1][k0] {
				continue
			}
			if hasOpposite[k0][k1] && s.remap[i1] > s.remap[i0] {
				continue
			}
			// border and seam vertices on different edge loops
			if k0 == k1 && isOnLoop(k0) && s.loop[i0] != i1 {
				continue
			}
			if canCollapse[k0][k1] && canCollapse[k1][k0] {
				result = append(result, collapse{v0: i0, v1: i1, bidi: true})
			} else if canCollapse[k0][k1] {
				result = append(result, collapse{v0: i0, v1: i1})
			} else {
				result = append(result, collapse{v0: i1, v1: i0})
			}
		}
	}
	return result
}

func (s *simplifier) rankEdgeCollapses(collapses []collapse) {
	for i := range collapses {
		c := &collapses[i]
		i0, i1 := c.v0, c.v1
		j0, j1 := i0, i1
		if c.bidi {
			j0, j1 = i1, i0
		}
		ei := s.quadrics[s.remap[i0]].error(s.positions[i1])
		ej := s.quadrics[s.remap[j0]].error(s.positions[j1])
		if ei <= ej {
			c.v0, c.v1, c.error = i0, i1, ei
		} else {
			c.v0, c.v1, c.error = j0, j1, ej
		}
	}
}

func hasTriangleFlip(a, b, c, d [3]float32) bool {
	eb := sub(b, a)
	ec := sub(c, a)
	ed := sub(d, a)
	return dot(cross(eb, ec), cross(eb, ed)) <= 0
}

func (s *simplifier) hasTriangleFlips(adj *edgeAdjacency, collapseRemap []uint32, i0, i1 uint32) bool {
	v0 := s.positions[i0]
	v1 := s.positions[i1]
	for _, e := range adj.edges(i0) {
		a := collapseRemap[e.next]
		b := collapseRemap[e.prev]
		// triangles removed by this collapse or by an earlier one
		if a == i1 || b == i1 || a == b {
			continue
		}
		if hasTriangleFlip(s.positions[a], s.positions[b], v0, v1) {
			return true
		}
	}
	return false
}

func (s *simplifier) performEdgeCollapses(collapseRemap []uint32, locked []bool, collapses []collapse, order []int,
	adj *edgeAdjacency, triangleCollapseGoal int, errorLimit float32, resultError *float32) int {

	edgeCollapses := 0
	triangleCollapses := 0
	edgeCollapseGoal := triangleCollapseGoal / 2

	for _, ci := range order {
		c := collapses[ci]
		if c.error > errorLimit {
			break
		}
		if triangleCollapses >= triangleCollapseGoal {
			break
		}
		// collapses share vertices, so accept somewhat worse ones than the goal
		errorGoal := float32(math32.MaxFloat32)
		if edgeCollapseGoal < len(order) {
			errorGoal = 1.5 * collapses[order[edgeCollapseGoal]].error
		}
		if c.error > errorGoal && triangleCollapses > triangleCollapseGoal/6 {
			break
		}

		i0, i1 := c.v0, c.v1
		r0, r1 := s.remap[i0], s.remap[i1]

		// vertices move at most once per pass
		if locked[r0] || locked[r1] {
			continue
		}
		if s.hasTriangleFlips(adj, collapseRemap, r0, r1) {
			edgeCollapseGoal++
			continue
		}

		k := s.kinds[i0]
		if k == kindSeam {
			s0, s1 := s.wedge[i0], s.wedge[i1]
			collapseRemap[i0] = i1
			collapseRemap[s0] = s1
		} else {
			v := i0
			for {
				collapseRemap[v] = i1
				v = s.wedge[v]
				if v == i0 {
					break
				}
			}
		}

		locked[r0] = true
		locked[r1] = true

		if k == kindBorder {
			triangleCollapses++
		} else {
			triangleCollapses += 2
		}
		edgeCollapses++
		if c.error > *resultError {
			*resultError = c.error
		}
	}
	return edgeCollapses
}

func (s *simplifier) updateQuadrics(collapseRemap []uint32) {
	for i, target := range collapseRemap {
		i0 := uint32(i)
		if target == i0 {
			continue
		}
		r0, r1 := s.remap[i0], s.remap[target]
		// the primary vertex moves whenever any wedge moves
		if i0 == r0 {
			s.quadrics[r1].add(&s.quadrics[r0])
		}
	}
}

func remapEdgeLoops(loop []uint32, collapseRemap []uint32) {
	for i, l := range loop {
		if l == Unused {
			continue
		}
		r := collapseRemap[l]
		if uint32(i) == r {
			// seam collapsed against the loop direction
			loop[i] = loop[l]
		} else {
			loop[i] = r
		}
	}
}

// collapseIndices applies collapseRemap and drops triangles that became degenerate.
func collapseIndices(indices []uint32, collapseRemap []uint32) []uint32 {
	write := 0
	for i := 0; i+2 < len(indices); i += 3 {
		v0 := collapseRemap[indices[i]]
		v1 := collapseRemap[indices[i+1]]
		v2 := collapseRemap[indices[i+2]]
		if v0 != v1 && v0 != v2 && v1 != v2 {
			indices[write] = v0
			indices[write+1] = v1
			indices[write+2] = v2
			write += 3
		}
	}
	return indices[:write]
}

// pruneComponents removes connected components smaller than errorLimit, smallest first,
// until the index count reaches target.
func (s *simplifier) pruneComponents(indices []uint32, target int, errorLimit float32, resultError *float32) []uint32 {
	vertexCount := len(s.positions)
	parent := make([]uint32, vertexCount)
	for i := range parent {
		parent[i] = uint32(i)
	}
	find := func(v uint32) uint32 {
		for parent[v] != v {
			parent[v] = parent[parent[v]]
			v = parent[v]
		}
		return v
	}
	for i := 0; i+2 < len(indices); i += 3 {
		a := find(s.remap[indices[i]])
		for k := 1; k < 3; k++ {
			b := find(s.remap[indices[i+k]])
			if a != b {
				parent[b] = a
			}
		}
	}

	type component struct {
		min, max [3]float32
		indices  int
		err      float32
	}
	components := map[uint32]*component{}
	for i, v := range indices {
		root := find(s.remap[v])
		c := components[root]
		p := s.positions[v]
		if c == nil {
			c = &component{min: p, max: p}
			components[root] = c
		}
		if i%3 == 0 {
			c.indices += 3
		}
		for k := 0; k < 3; k++ {
			c.min[k] = math32.Min(c.min[k], p[k])
			c.max[k] = math32.Max(c.max[k], p[k])
		}
	}
	roots := make([]uint32, 0, len(components))
	for root, c := range components {
		radius := length(sub(c.max, c.min)) / 2
		c.err = radius * radius
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool {
		ci, cj := components[roots[i]], components[roots[j]]
		if ci.err != cj.err {
			return ci.err < cj.err
		}
		return roots[i] < roots[j]
	})

	removed := map[uint32]bool{}
	count := len(indices)
	for _, root := range roots {
		c := components[root]
		if count <= target || c.err > errorLimit {
			break
		}
		removed[root] = true
		count -= c.indices
		if c.err > *resultError {
			*resultError = c.err
		}
	}
	if len(removed) == 0 {
		return indices
	}
	write := 0
	for i := 0; i+2 < len(indices); i += 3 {
		if removed[find(s.remap[indices[i]])] {
			continue
		}
		copy(indices[write:write+3], indices[i:i+3])
		write += 3
	}
	return indices[:write]
}

func (s *simplifier) run(indices []uint32, targetIndexCount int, targetError float32, options SimplifyOptions) ([]uint32, float32) {
	vertexCount := len(s.positions)
	result := append([]uint32(nil), indices...)

	adj := newEdgeAdjacency(len(indices), vertexCount)
	collapseRemap := make([]uint32, vertexCount)
	locked := make([]bool, vertexCount)

	var resultError float32
	errorLimit := targetError * targetError

	if options&SimplifyPrune != 0 {
		// crumbs are always removed
		result = s.pruneComponents(result, 0, errorLimit*1e-3, &resultError)
	}

	for len(result) > targetIndexCount {
		adj.update(result, s.remap)

		collapses := s.pickEdgeCollapses(result)
		if len(collapses) == 0 {
			break
		}
		s.rankEdgeCollapses(collapses)
		order := make([]int, len(collapses))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool {
			return collapses[order[i]].error < collapses[order[j]].error
		})

		triangleCollapseGoal := (len(result) - targetIndexCount) / 3
		for i := range collapseRemap {
			collapseRemap[i] = uint32(i)
			locked[i] = false
		}
		n := s.performEdgeCollapses(collapseRemap, locked, collapses, order, adj, triangleCollapseGoal, errorLimit, &resultError)
		if n == 0 {
			break
		}
		s.updateQuadrics(collapseRemap)
		remapEdgeLoops(s.loop, collapseRemap)
		remapEdgeLoops(s.loopback, collapseRemap)
		result = collapseIndices(result, collapseRemap)
	}

	if options&SimplifyPrune != 0 && len(result) > targetIndexCount {
		result = s.pruneComponents(result, targetIndexCount, errorLimit, &resultError)
	}
	return result, math32.Sqrt(resultError)
}

// Simplify reduces indices toward targetIndexCount by collapsing edges onto existing vertices,
// as long as the error stays below targetError. Errors are relative to the mesh extent;
// multiply by SimplifyScale to get mesh units. It returns the new indices and the achieved error.
func Simplify(indices []uint32, positions [][3]float32, targetIndexCount int, targetError float32, options SimplifyOptions) ([]uint32, float32) {
	if len(indices) <= targetIndexCount || len(indices) < 3 {
		return append([]uint32(nil), indices...), 0
	}

	if options&SimplifySparse != 0 {
		local := make([]uint32, len(indices))
		toLocal := make(map[uint32]uint32, len(indices)/2)
		var toGlobal []uint32
		var subset [][3]float32
		for i, v := range indices {
			l, ok := toLocal[v]
			if !ok {
				l = uint32(len(toGlobal))
				toLocal[v] = l
				toGlobal = append(toGlobal, v)
				subset = append(subset, positions[v])
			}
			local[i] = l
		}
		scaled, _ := rescalePositions(subset)
		s := newSimplifier(local, scaled, options)
		result, err := s.run(local, targetIndexCount, targetError, options)
		for i, l := range result {
			result[i] = toGlobal[l]
		}
		return result, err
	}

	scaled, _ := rescalePositions(positions)
	s := newSimplifier(indices, scaled, options)
	return s.run(indices, targetIndexCount, targetError, options)
}
