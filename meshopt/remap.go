package meshopt

import (
	"encoding/binary"
	"math"
)

// Unused marks a vertex that is not referenced by the index buffer in a remap table.
const Unused = ^uint32(0)

// Stream appends the bytes of vertex i to dst. Vertices are equal when all stream bytes are equal.
type Stream func(dst []byte, i int) []byte

// AppendFloat32s appends the bit patterns of v.
func AppendFloat32s(dst []byte, v ...float32) []byte {
	for _, f := range v {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(f))
	}
	return dst
}

func PositionStream(positions [][3]float32) Stream {
	return func(dst []byte, i int) []byte {
		p := positions[i]
		return AppendFloat32s(dst, p[0], p[1], p[2])
	}
}

type vertexKeys struct {
	streams []Stream
	buf     []byte
}

func (k *vertexKeys) key(i int) string {
	k.buf = k.buf[:0]
	for _, s := range k.streams {
		k.buf = s(k.buf, i)
	}
	return string(k.buf)
}

// GenerateVertexRemapMulti builds a remap table that merges bit-identical vertices and
// orders the survivors by first use. Unreferenced vertices map to Unused.
// It returns the table and the number of unique vertices.
func GenerateVertexRemapMulti(indices []uint32, vertexCount int, streams ...Stream) ([]uint32, int) {
	remap := make([]uint32, vertexCount)
	for i := range remap {
		remap[i] = Unused
	}
	keys := &vertexKeys{streams: streams}
	seen := make(map[string]uint32, vertexCount)
	next := uint32(0)
	for _, v := range indices {
		if remap[v] != Unused {
			continue
		}
		k := keys.key(int(v))
		if r, ok := seen[k]; ok {
			remap[v] = r
			continue
		}
		seen[k] = next
		remap[v] = next
		next++
	}
	return remap, int(next)
}

// RemapIndexBuffer writes remap[indices[i]] to dst[i]. dst and indices may be the same slice.
func RemapIndexBuffer(dst, indices, remap []uint32) {
	for i, v := range indices {
		dst[i] = remap[v]
	}
}

// RemapVertexBuffer returns a new buffer of vertexCount vertices placed at their remapped positions.
func RemapVertexBuffer[T any](vertices []T, vertexCount int, remap []uint32) []T {
	dst := make([]T, vertexCount)
	for i, r := range remap {
		if r != Unused {
			dst[r] = vertices[i]
		}
	}
	return dst
}

// OptimizeVertexFetchRemap builds a remap table that orders vertices by first use in indices.
// It returns the table and the number of referenced vertices.
func OptimizeVertexFetchRemap(indices []uint32, vertexCount int) ([]uint32, int) {
	remap := make([]uint32, vertexCount)
	for i := range remap {
		remap[i] = Unused
	}
	next := uint32(0)
	for _, v := range indices {
		if remap[v] == Unused {
			remap[v] = next
			next++
		}
	}
	return remap, int(next)
}

// GenerateShadowIndexBuffer returns indices where every vertex is replaced by the first
// vertex with identical stream data, so that position-only passes can share vertices.
func GenerateShadowIndexBuffer(indices []uint32, vertexCount int, streams ...Stream) []uint32 {
	canonical := make([]uint32, vertexCount)
	for i := range canonical {
		canonical[i] = Unused
	}
	keys := &vertexKeys{streams: streams}
	seen := make(map[string]uint32, vertexCount)
	dst := make([]uint32, len(indices))
	for i, v := range indices {
		if canonical[v] == Unused {
			k := keys.key(int(v))
			if r, ok := seen[k]; ok {
				canonical[v] = r
			} else {
				seen[k] = v
				canonical[v] = v
			}
		}
		dst[i] = canonical[v]
	}
	return dst
}
