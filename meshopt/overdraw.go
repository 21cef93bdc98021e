package meshopt

import (
	"sort"

	"github.com/chewxy/math32"
)

const overdrawCacheSize = 16

type cacheSim struct {
	timestamps []uint32
	timestamp  uint32
	size       uint32
}

func newCacheSim(vertexCount int, size uint32) *cacheSim {
	return &cacheSim{timestamps: make([]uint32, vertexCount), timestamp: size + 1, size: size}
}

func (c *cacheSim) update(a, b, c2 uint32) int {
	misses := 0
	for _, v := range [3]uint32{a, b, c2} {
		if c.timestamp-c.timestamps[v] > c.size {
			c.timestamps[v] = c.timestamp
			c.timestamp++
			misses++
		}
	}
	return misses
}

func (c *cacheSim) reset() {
	c.timestamp += c.size + 1
}

// hardBoundaries splits the triangle stream where a triangle misses on all three vertices.
func hardBoundaries(indices []uint32, sim *cacheSim) []int {
	faceCount := len(indices) / 3
	var clusters []int
	for i := 0; i < faceCount; i++ {
		m := sim.update(indices[i*3], indices[i*3+1], indices[i*3+2])
		if i == 0 || m == 3 {
			clusters = append(clusters, i)
		}
	}
	return clusters
}

// softBoundaries further splits each cluster once its running ACMR drops below threshold times the cluster ACMR.
func softBoundaries(indices []uint32, clusters []int, sim *cacheSim, threshold float32) []int {
	faceCount := len(indices) / 3
	var result []int
	for it, start := range clusters {
		end := faceCount
		if it+1 < len(clusters) {
			end = clusters[it+1]
		}

		sim.reset()
		misses := 0
		for i := start; i < end; i++ {
			misses += sim.update(indices[i*3], indices[i*3+1], indices[i*3+2])
		}
		clusterThreshold := threshold * float32(misses) / float32(end-start)

		first := len(result)
		result = append(result, start)

		sim.reset()
		runningMisses, runningFaces := 0, 0
		for i := start; i < end; i++ {
			runningMisses += sim.update(indices[i*3], indices[i*3+1], indices[i*3+2])
			runningFaces++
			if float32(runningMisses)/float32(runningFaces) <= clusterThreshold {
				result = append(result, i+1)
				sim.reset()
				runningMisses, runningFaces = 0, 0
			}
		}

		// drop the trailing empty cluster and merge a leftover tail into its predecessor
		if result[len(result)-1] == end {
			result = result[:len(result)-1]
		} else if runningFaces > 0 && len(result)-first > 1 &&
			float32(runningMisses)/float32(runningFaces) > clusterThreshold {
			result = result[:len(result)-1]
		}
	}
	return result
}

func clusterSortKeys(indices []uint32, positions [][3]float32, clusters []int) []float32 {
	faceCount := len(indices) / 3

	var meshCentroid [3]float32
	for _, v := range indices {
		p := positions[v]
		meshCentroid[0] += p[0]
		meshCentroid[1] += p[1]
		meshCentroid[2] += p[2]
	}
	inv := 1 / float32(len(indices))
	meshCentroid[0] *= inv
	meshCentroid[1] *= inv
	meshCentroid[2] *= inv

	keys := make([]float32, len(clusters))
	for c, start := range clusters {
		end := faceCount
		if c+1 < len(clusters) {
			end = clusters[c+1]
		}

		var area float32
		var centroid, normal [3]float32
		for i := start; i < end; i++ {
			p0 := positions[indices[i*3]]
			p1 := positions[indices[i*3+1]]
			p2 := positions[indices[i*3+2]]
			n := cross(sub(p1, p0), sub(p2, p0))
			a := length(n)
			for k := 0; k < 3; k++ {
				centroid[k] += (p0[k] + p1[k] + p2[k]) * (a / 3)
				normal[k] += n[k]
			}
			area += a
		}
		if area > 0 {
			for k := range centroid {
				centroid[k] /= area
			}
		}
		normal = normalize(normal)
		keys[c] = dot(sub(centroid, meshCentroid), normal)
	}
	return keys
}

// OptimizeOverdraw reorders clusters of triangles so that outward facing clusters come first,
// without degrading the vertex cache efficiency by more than threshold (1.05 allows 5%).
// indices must be optimized for the vertex cache. dst and indices must not overlap.
func OptimizeOverdraw(dst, indices []uint32, positions [][3]float32, threshold float32) {
	faceCount := len(indices) / 3
	if faceCount == 0 {
		return
	}
	sim := newCacheSim(len(positions), overdrawCacheSize)
	hard := hardBoundaries(indices, sim)
	clusters := softBoundaries(indices, hard, sim, threshold)
	keys := clusterSortKeys(indices, positions, clusters)

	order := make([]int, len(clusters))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return keys[order[i]] > keys[order[j]]
	})

	offset := 0
	for _, c := range order {
		start := clusters[c]
		end := faceCount
		if c+1 < len(clusters) {
			end = clusters[c+1]
		}
		n := copy(dst[offset:], indices[start*3:end*3])
		offset += n
	}
}

func sub(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func cross(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func dot(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func length(a [3]float32) float32 {
	return math32.Sqrt(dot(a, a))
}

func normalize(a [3]float32) [3]float32 {
	l := length(a)
	if l == 0 {
		return a
	}
	return [3]float32{a[0] / l, a[1] / l, a[2] / l}
}
