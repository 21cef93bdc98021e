package model

import (
	"errors"
	"fmt"

	"github.com/binzume/gpumodel/geom"
)

var ErrAttributeMismatch = errors.New("attribute count does not match position count")

type Position = [3]float32

type VertexAttributes struct {
	Color     [4]float32
	Normal    [3]float32
	Tangent   [3]float32
	Bitangent [3]float32
	TexCoord  [2]float32
}

type Model struct {
	Meshes    []*Mesh
	Materials []*MaterialData
	Lights    Lights
}

func NewModel() *Model {
	return &Model{}
}

type LOD struct {
	Indices       IndexRange
	ShadowIndices IndexRange
	// Simplification error in mesh units. 0 for LOD 0.
	Error    float32
	Meshlets MeshletArray
	Bounds   MeshletBoundsArray
}

type Mesh struct {
	Name       string
	Positions  []Position
	Attributes []VertexAttributes
	Indices    *IndexBuffer
	LODs       []LOD
	Transforms []geom.Matrix4
	Material   int
	AABB       geom.AABB

	// IndexWidth is the face index width in bits of a decompressed primitive, 0 otherwise.
	IndexWidth int
}

func NewMesh(name string) *Mesh {
	return &Mesh{
		Name:     name,
		Indices:  NewIndexBuffer(0),
		Material: -1,
		AABB:     geom.NewAABB(),
	}
}

func (m *Mesh) Validate() error {
	if len(m.Attributes) != 0 && len(m.Attributes) != len(m.Positions) {
		return fmt.Errorf("%w: %d attributes, %d positions", ErrAttributeMismatch, len(m.Attributes), len(m.Positions))
	}
	if m.Indices == nil {
		return nil
	}
	for i, lod := range m.LODs {
		if !m.Indices.Contains(lod.Indices) || !m.Indices.Contains(lod.ShadowIndices) {
			return fmt.Errorf("lod %d range out of index buffer", i)
		}
	}
	return nil
}

// LODIndices returns the primary indices of the i-th LOD.
func (m *Mesh) LODIndices(i int) []uint32 {
	return m.Indices.Slice(m.LODs[i].Indices)
}

func (m *Mesh) ShadowIndices(i int) []uint32 {
	return m.Indices.Slice(m.LODs[i].ShadowIndices)
}

func (m *Mesh) TriangleCount(lod int) int {
	return int(m.LODs[lod].Indices.Count) / 3
}

func (m *Mesh) HasAttributes() bool {
	return len(m.Attributes) > 0
}
