package main

import (
	"bytes"
	"testing"

	"github.com/binzume/gpumodel/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func testModel() *model.Model {
	mesh := model.NewMesh("quad")
	mesh.Positions = []model.Position{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}}
	ranges := mesh.Indices.Append([]uint32{0, 1, 2, 0, 2, 3}, []uint32{0, 1, 2, 0, 2, 3})
	mesh.LODs = []model.LOD{{Indices: ranges[0], ShadowIndices: ranges[1]}}
	mesh.Material = 0

	tex := model.TextureData{Name: "albedo", Type: model.TextureBaseColor}
	tex.Image = model.ImageData{Width: 2000, Height: 2000, Pixels: make([]byte, 16000000), Mips: make([]model.MipRange, 11)}

	m := model.NewModel()
	m.Meshes = []*model.Mesh{mesh}
	m.Materials = []*model.MaterialData{{Name: "mat", Textures: []model.TextureData{tex}}}
	m.Lights.Points = []model.PointLight{{}}
	return m
}

func TestSummaryText(t *testing.T) {
	var buf bytes.Buffer
	summarize("quad.glb", testModel()).writeText(&buf)
	out := buf.String()

	assert.Contains(t, out, `mesh "quad": 4 vertices, 0 instances, material 0`)
	assert.Contains(t, out, "lod 0: 2 triangles, 0 meshlets")
	assert.Contains(t, out, `BaseColor "albedo": 2,000x2,000, 11 mips`)
	assert.Contains(t, out, "16,000,000 bytes")
	assert.Contains(t, out, "lights: 0 directional, 1 point, 0 spot")
}

func TestSummaryYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, summarize("quad.glb", testModel()).writeYAML(&buf))

	var decoded summary
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "quad.glb", decoded.Input)
	require.Len(t, decoded.Meshes, 1)
	assert.Equal(t, 2, decoded.Meshes[0].LODs[0].Triangles)
	require.Len(t, decoded.Materials, 1)
	assert.Equal(t, 11, decoded.Materials[0].Textures[0].Mips)
	assert.Equal(t, 1, decoded.Lights["point"])
}
