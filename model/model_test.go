package model

import (
	"encoding/binary"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexBuffer(t *testing.T) {
	b := NewIndexBuffer(4)
	r := b.Append([]uint32{0, 1, 2}, []uint32{2, 1, 3, 3, 1, 4})
	require.Len(t, r, 2)
	assert.Equal(t, IndexRange{Offset: 0, Count: 3}, r[0])
	assert.Equal(t, IndexRange{Offset: 3, Count: 6}, r[1])
	assert.Equal(t, 9, b.Len())

	first := b.Slice(r[0])
	// grows past the initial capacity
	r2 := b.Append(make([]uint32, 100))
	assert.Equal(t, uint32(9), r2[0].Offset)
	assert.Equal(t, []uint32{0, 1, 2}, first)
	assert.Equal(t, []uint32{0, 1, 2}, b.Slice(r[0]))
	assert.Equal(t, []uint32{2, 1, 3, 3, 1, 4}, b.Slice(r[1]))

	assert.Nil(t, b.Slice(IndexRange{Offset: 100, Count: 10}))
	assert.False(t, b.Contains(IndexRange{Offset: 100, Count: 10}))
	assert.True(t, b.Contains(IndexRange{Offset: 109, Count: 0}))
}

func TestIndexBufferReserve(t *testing.T) {
	b := NewIndexBuffer(0)
	b.Append([]uint32{7, 8, 9})
	b.Reserve(64)
	first := b.Slice(IndexRange{Count: 3})
	assert.Equal(t, []uint32{7, 8, 9}, first)

	// appends within the reserved capacity keep the storage in place
	b.Reserve(8)
	r := b.Append(make([]uint32, 60))
	assert.Equal(t, IndexRange{Offset: 3, Count: 60}, r[0])
	assert.Same(t, &first[0], &b.Slice(IndexRange{Count: 3})[0])
}

func TestIndexBufferConcurrentAppend(t *testing.T) {
	b := NewIndexBuffer(0)
	first := b.Append([]uint32{1, 2, 3})[0]

	var wg sync.WaitGroup
	ranges := make([][]IndexRange, 16)
	for i := range ranges {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := uint32(i)
			ranges[i] = b.Append([]uint32{v, v, v}, []uint32{v + 100})
			assert.Equal(t, []uint32{1, 2, 3}, b.Slice(first))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3+16*4, b.Len())
	for i, r := range ranges {
		v := uint32(i)
		assert.Equal(t, []uint32{v, v, v}, b.Slice(r[0]))
		assert.Equal(t, []uint32{v + 100}, b.Slice(r[1]))
	}
}

func TestMeshValidate(t *testing.T) {
	m := NewMesh("m")
	m.Positions = []Position{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	assert.NoError(t, m.Validate())
	assert.Equal(t, -1, m.Material)

	m.Attributes = make([]VertexAttributes, 2)
	assert.ErrorIs(t, m.Validate(), ErrAttributeMismatch)

	m.Attributes = make([]VertexAttributes, 3)
	r := m.Indices.Append([]uint32{0, 1, 2}, []uint32{0, 1, 2})
	m.LODs = []LOD{{Indices: r[0], ShadowIndices: r[1]}}
	assert.NoError(t, m.Validate())
	assert.Equal(t, 1, m.TriangleCount(0))
	assert.Equal(t, []uint32{0, 1, 2}, m.LODIndices(0))

	m.LODs = append(m.LODs, LOD{Indices: IndexRange{Offset: 6, Count: 3}})
	assert.Error(t, m.Validate())
}

func TestMeshletArray(t *testing.T) {
	a := MeshletArray{
		Meshlets: []Meshlet{
			{VertexOffset: 0, TriangleOffset: 0, VertexCount: 3, TriangleCount: 1},
			{VertexOffset: 3, TriangleOffset: 3, VertexCount: 4, TriangleCount: 2},
		},
		Vertices:  []uint32{10, 11, 12, 20, 21, 22, 23},
		Triangles: []uint8{0, 1, 2, 0, 1, 2, 2, 1, 3},
	}
	v, tri := a.Meshlet(1)
	assert.Equal(t, []uint32{20, 21, 22, 23}, v)
	assert.Equal(t, []uint8{0, 1, 2, 2, 1, 3}, tri)
	assert.Equal(t, 2, a.Len())
}

func TestMaterialConstants(t *testing.T) {
	c := DefaultMaterialConstants()
	c.BaseColorFactor = [4]float32{0.5, 0.25, 1, 1}
	c.MetallicFactor = 0.75

	b := c.Bytes()
	require.Len(t, b, MaterialConstantsSize)
	assert.Zero(t, len(b)%16)
	f := func(i int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])) }
	assert.Equal(t, float32(0.5), f(0))
	assert.Equal(t, float32(0.25), f(1))
	assert.Equal(t, float32(1), f(8))
	assert.Equal(t, float32(0.75), f(11))

	m := &MaterialData{Textures: []TextureData{{Type: TextureNormalMap}}}
	assert.NotNil(t, m.Texture(TextureNormalMap))
	assert.Nil(t, m.Texture(TextureBaseColor))
}

func TestImageDataMip(t *testing.T) {
	img := &ImageData{
		Pixels:        make([]byte, 4*4*4+2*2*4+4),
		Width:         4,
		Height:        4,
		BytesPerPixel: 4,
		Mips: []MipRange{
			{Offset: 0, Size: 64, Width: 4, Height: 4},
			{Offset: 64, Size: 16, Width: 2, Height: 2},
			{Offset: 80, Size: 4, Width: 1, Height: 1},
		},
	}
	assert.Len(t, img.Mip(1), 16)
	assert.Len(t, img.Mip(2), 4)
	assert.False(t, img.IsCompressed())
	assert.Equal(t, "NormalMap", TextureNormalMap.String())
	assert.True(t, TextureEmissiveColor.IsColor())
}
