// Package meshopt implements the mesh optimization algorithms used by the importer:
// vertex cache and fetch ordering, overdraw reduction, vertex deduplication,
// simplification and meshlet clustering.
package meshopt

const (
	cacheSizeMax = 16
	valenceMax   = 8
)

var vertexScoreCache = [1 + cacheSizeMax]float32{
	0, 0.779, 0.791, 0.789, 0.981, 0.843, 0.726, 0.847, 0.882, 0.867, 0.799, 0.642, 0.613, 0.600, 0.568, 0.372, 0.234,
}

var vertexScoreLive = [1 + valenceMax]float32{
	0, 0.995, 0.713, 0.450, 0.404, 0.059, 0.005, 0.147, 0.006,
}

func vertexScore(cachePosition int, liveTriangles uint32) float32 {
	if liveTriangles > valenceMax {
		liveTriangles = valenceMax
	}
	return vertexScoreCache[1+cachePosition] + vertexScoreLive[liveTriangles]
}

// triangleAdjacency lists the triangles using each vertex.
type triangleAdjacency struct {
	counts  []uint32
	offsets []uint32
	data    []uint32
}

func buildTriangleAdjacency(indices []uint32, vertexCount int) *triangleAdjacency {
	faceCount := len(indices) / 3
	adj := &triangleAdjacency{
		counts:  make([]uint32, vertexCount),
		offsets: make([]uint32, vertexCount),
		data:    make([]uint32, faceCount*3),
	}
	for _, v := range indices[:faceCount*3] {
		adj.counts[v]++
	}
	var offset uint32
	for i, c := range adj.counts {
		adj.offsets[i] = offset
		offset += c
	}
	fill := make([]uint32, vertexCount)
	copy(fill, adj.offsets)
	for i := 0; i < faceCount; i++ {
		for k := 0; k < 3; k++ {
			v := indices[i*3+k]
			adj.data[fill[v]] = uint32(i)
			fill[v]++
		}
	}
	return adj
}

func (adj *triangleAdjacency) neighbors(v uint32) []uint32 {
	return adj.data[adj.offsets[v] : adj.offsets[v]+adj.counts[v]]
}

func (adj *triangleAdjacency) remove(v, tri uint32) {
	n := adj.neighbors(v)
	for i, t := range n {
		if t == tri {
			n[i] = n[len(n)-1]
			adj.counts[v]--
			return
		}
	}
}

// OptimizeVertexCache reorders triangles to reduce post-transform vertex cache misses.
// dst and indices may be the same slice.
func OptimizeVertexCache(dst, indices []uint32, vertexCount int) {
	faceCount := len(indices) / 3
	if faceCount == 0 {
		return
	}
	src := indices
	if &dst[0] == &indices[0] {
		src = append([]uint32(nil), indices...)
	}

	adj := buildTriangleAdjacency(src, vertexCount)

	liveTriangles := make([]uint32, vertexCount)
	copy(liveTriangles, adj.counts)

	vertexScores := make([]float32, vertexCount)
	for i := range vertexScores {
		vertexScores[i] = vertexScore(-1, liveTriangles[i])
	}
	triangleScores := make([]float32, faceCount)
	for i := 0; i < faceCount; i++ {
		triangleScores[i] = vertexScores[src[i*3]] + vertexScores[src[i*3+1]] + vertexScores[src[i*3+2]]
	}

	emitted := make([]bool, faceCount)
	cache := make([]uint32, 0, cacheSizeMax+3)
	cacheNew := make([]uint32, 0, cacheSizeMax+3)

	current := 0
	inputCursor := 1
	output := 0

	for current >= 0 {
		a, b, c := src[current*3], src[current*3+1], src[current*3+2]

		dst[output*3] = a
		dst[output*3+1] = b
		dst[output*3+2] = c
		output++

		emitted[current] = true
		triangleScores[current] = 0

		cacheNew = append(cacheNew[:0], a, b, c)
		for _, v := range cache {
			if v != a && v != b && v != c {
				cacheNew = append(cacheNew, v)
			}
		}
		cache, cacheNew = cacheNew, cache

		for _, v := range [3]uint32{a, b, c} {
			adj.remove(v, uint32(current))
			liveTriangles[v]--
		}

		best := -1
		var bestScore float32
		for i, v := range cache {
			pos := i
			if i >= cacheSizeMax {
				pos = -1
			}
			score := vertexScore(pos, liveTriangles[v])
			diff := score - vertexScores[v]
			vertexScores[v] = score
			for _, tri := range adj.neighbors(v) {
				ts := triangleScores[tri] + diff
				triangleScores[tri] = ts
				if best < 0 || ts > bestScore {
					best = int(tri)
					bestScore = ts
				}
			}
		}
		if len(cache) > cacheSizeMax {
			cache = cache[:cacheSizeMax]
		}

		if best < 0 {
			for inputCursor < faceCount && emitted[inputCursor] {
				inputCursor++
			}
			if inputCursor < faceCount {
				best = inputCursor
			}
		}
		current = best
	}
}

// simulateCache returns the number of vertex cache misses of a FIFO cache.
func simulateCache(indices []uint32, vertexCount int, cacheSize uint32) int {
	timestamps := make([]uint32, vertexCount)
	timestamp := cacheSize + 1
	misses := 0
	for _, v := range indices {
		if timestamp-timestamps[v] > cacheSize {
			timestamps[v] = timestamp
			timestamp++
			misses++
		}
	}
	return misses
}

// ACMR returns the average number of cache misses per triangle for a FIFO cache.
func ACMR(indices []uint32, vertexCount int, cacheSize int) float32 {
	if len(indices) < 3 {
		return 0
	}
	return float32(simulateCache(indices, vertexCount, uint32(cacheSize))) / float32(len(indices)/3)
}
