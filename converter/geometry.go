package converter

import (
	"errors"
	"fmt"

	"github.com/binzume/gpumodel/geom"
	"github.com/binzume/gpumodel/gltfutil"
	"github.com/binzume/gpumodel/model"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"
)

// DecodedAttribute is a vertex stream of a decompressed primitive, Components floats per vertex.
type DecodedAttribute struct {
	Components int
	Data       []float32
}

func (a *DecodedAttribute) vertex(i int) []float32 {
	return a.Data[i*a.Components : (i+1)*a.Components]
}

// DecodedMesh is the output of a GeometryDecoder. Attributes are keyed by glTF semantic.
type DecodedMesh struct {
	Positions  [][3]float32
	Attributes map[string]DecodedAttribute
	Faces      [][3]uint32
}

// GeometryDecoder decompresses the payload of a KHR_draco_mesh_compression primitive.
type GeometryDecoder interface {
	Decode(data []byte) (*DecodedMesh, error)
}

// ConvertPrimitive extracts one primitive. Compressed primitives go through the
// registered GeometryDecoder and fall back to plain accessors when that fails.
func (c *gltfToModel) ConvertPrimitive(doc *gltf.Document, meshIndex, primIndex int) (*model.Mesh, error) {
	src := doc.Meshes[meshIndex]
	p := src.Primitives[primIndex]
	if p.Mode != gltf.PrimitiveTriangles {
		return nil, fmt.Errorf("%w: mode %v", ErrUnsupportedMode, p.Mode)
	}

	var mesh *model.Mesh
	var err error
	if draco := gltfutil.Draco(p); draco != nil {
		mesh, err = c.convertCompressed(doc, src.Name, p, draco)
		if err != nil {
			if _, ok := p.Attributes[gltf.POSITION]; !ok || p.Indices == nil {
				return nil, err
			}
			c.log.Debug("compressed primitive read from accessors", zap.String("mesh", src.Name), zap.Error(err))
			mesh = nil
		}
	}
	if mesh == nil {
		mesh, err = c.convertAccessors(doc, src.Name, p)
		if err != nil {
			return nil, err
		}
	}
	if p.Material != nil {
		mesh.Material = int(*p.Material)
	}
	if err := mesh.Validate(); err != nil {
		return nil, err
	}
	return mesh, nil
}

func (c *gltfToModel) accessor(doc *gltf.Document, p *gltf.Primitive, semantic string) (*gltf.Accessor, bool) {
	i, ok := p.Attributes[semantic]
	if !ok || int(i) >= len(doc.Accessors) {
		return nil, false
	}
	return doc.Accessors[i], true
}

func (c *gltfToModel) convertAccessors(doc *gltf.Document, name string, p *gltf.Primitive) (*model.Mesh, error) {
	if p.Indices == nil || int(*p.Indices) >= len(doc.Accessors) {
		return nil, ErrNoIndices
	}
	posAcr, ok := c.accessor(doc, p, gltf.POSITION)
	if !ok {
		return nil, ErrNoPositions
	}

	var (
		positions [][3]float32
		aabb      = geom.NewAABB()
		normals   [][3]float32
		texCoords [][2]float32
		tangents  [][4]float32
		colors    [][4]uint8
		indices   []uint32
		errs      [6]error
	)
	tasks := []func(){
		func() {
			positions, errs[0] = modeler.ReadPosition(doc, posAcr, nil)
			for _, v := range positions {
				aabb.Extend(v)
			}
		},
		func() {
			indices, errs[1] = modeler.ReadIndices(doc, doc.Accessors[*p.Indices], nil)
		},
		func() {
			if acr, ok := c.accessor(doc, p, gltf.NORMAL); ok {
				normals, errs[2] = modeler.ReadNormal(doc, acr, nil)
			}
		},
		func() {
			if acr, ok := c.accessor(doc, p, gltf.TEXCOORD_0); ok {
				texCoords, errs[3] = modeler.ReadTextureCoord(doc, acr, nil)
			}
		},
	}
	if c.options.LoadMeshAttributes {
		tasks = append(tasks,
			func() {
				if acr, ok := c.accessor(doc, p, gltf.TANGENT); ok {
					tangents, errs[4] = modeler.ReadTangent(doc, acr, nil)
				}
			},
			func() {
				if acr, ok := c.accessor(doc, p, gltf.COLOR_0); ok {
					colors, errs[5] = modeler.ReadColor(doc, acr, nil)
				}
			})
	}
	c.executeAll(tasks)
	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return nil, ErrNoPositions
	}
	if len(indices) == 0 {
		return nil, ErrNoIndices
	}

	mesh := model.NewMesh(name)
	mesh.Positions = positions
	mesh.AABB = aabb

	if normals != nil || texCoords != nil || tangents != nil || colors != nil {
		n := len(positions)
		for _, l := range []int{len(normals), len(texCoords), len(tangents), len(colors)} {
			if l != 0 && l != n {
				return nil, fmt.Errorf("%w: stream of %d for %d positions", ErrAttributeMismatch, l, n)
			}
		}
		attrs := make([]model.VertexAttributes, n)
		for i := range attrs {
			a := &attrs[i]
			a.Color = [4]float32{1, 1, 1, 1}
			if normals != nil {
				a.Normal = normals[i]
			}
			if texCoords != nil {
				a.TexCoord = texCoords[i]
			}
			if tangents != nil {
				t := tangents[i]
				a.Tangent = [3]float32{t[0], t[1], t[2]}
				a.Bitangent = bitangent(a.Normal, t)
			}
			if colors != nil {
				col := colors[i]
				a.Color = [4]float32{float32(col[0]) / 255, float32(col[1]) / 255, float32(col[2]) / 255, float32(col[3]) / 255}
			}
		}
		mesh.Attributes = attrs
	}

	if err := setBaseLOD(mesh, indices); err != nil {
		return nil, err
	}
	return mesh, nil
}

func bitangent(normal [3]float32, tangent [4]float32) [3]float32 {
	b := geom.Cross3(normal, [3]float32{tangent[0], tangent[1], tangent[2]})
	return [3]float32{b[0] * tangent[3], b[1] * tangent[3], b[2] * tangent[3]}
}

// setBaseLOD stores the raw triangle list as LOD 0.
func setBaseLOD(mesh *model.Mesh, indices []uint32) error {
	if len(indices)%3 != 0 {
		return fmt.Errorf("index count %d is not a multiple of 3", len(indices))
	}
	n := uint32(len(mesh.Positions))
	for _, v := range indices {
		if v >= n {
			return fmt.Errorf("index %d out of range of %d vertices", v, n)
		}
	}
	mesh.Indices.Reserve(len(indices))
	r := mesh.Indices.Append(indices)[0]
	mesh.LODs = []model.LOD{{Indices: r, ShadowIndices: r}}
	return nil
}

// IndexWidth returns the smallest unsigned index width in bits addressing vertexCount vertices.
func IndexWidth(vertexCount int) int {
	switch {
	case vertexCount <= 1<<8:
		return 8
	case vertexCount <= 1<<16:
		return 16
	}
	return 32
}

func (c *gltfToModel) convertCompressed(doc *gltf.Document, name string, p *gltf.Primitive, ext *gltfutil.DracoMeshCompression) (*model.Mesh, error) {
	if c.options.GeometryDecoder == nil {
		return nil, ErrNoDecoder
	}
	data, err := gltfutil.BufferViewData(doc, ext.BufferView)
	if err != nil {
		return nil, err
	}
	decoded, err := c.options.GeometryDecoder.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode compressed primitive: %w", err)
	}
	if len(decoded.Positions) == 0 {
		return nil, ErrNoPositions
	}
	if len(decoded.Faces) == 0 {
		return nil, ErrNoIndices
	}

	mesh := model.NewMesh(name)
	mesh.Positions = decoded.Positions
	for _, v := range decoded.Positions {
		mesh.AABB.Extend(v)
	}
	mesh.IndexWidth = IndexWidth(len(decoded.Positions))

	n := len(decoded.Positions)
	var attrs []model.VertexAttributes
	ensure := func() {
		if attrs == nil {
			attrs = make([]model.VertexAttributes, n)
			for i := range attrs {
				attrs[i].Color = [4]float32{1, 1, 1, 1}
			}
		}
	}
	var tangents *DecodedAttribute
	for semantic, a := range decoded.Attributes {
		if a.Components <= 0 || len(a.Data) != n*a.Components {
			return nil, fmt.Errorf("%w: %s", ErrAttributeMismatch, semantic)
		}
		switch semantic {
		case gltf.NORMAL:
			ensure()
			for i := range attrs {
				copy(attrs[i].Normal[:], a.vertex(i))
			}
		case gltf.TEXCOORD_0:
			ensure()
			for i := range attrs {
				copy(attrs[i].TexCoord[:], a.vertex(i))
			}
		case gltf.TANGENT:
			if c.options.LoadMeshAttributes && a.Components == 4 {
				tangents = &a
			}
		case gltf.COLOR_0:
			if c.options.LoadMeshAttributes {
				ensure()
				for i := range attrs {
					copy(attrs[i].Color[:], a.vertex(i))
				}
			}
		}
	}
	if tangents != nil {
		ensure()
		for i := range attrs {
			v := tangents.vertex(i)
			t := [4]float32{v[0], v[1], v[2], v[3]}
			attrs[i].Tangent = [3]float32{t[0], t[1], t[2]}
			attrs[i].Bitangent = bitangent(attrs[i].Normal, t)
		}
	}
	mesh.Attributes = attrs

	indices := make([]uint32, 0, len(decoded.Faces)*3)
	for _, f := range decoded.Faces {
		indices = append(indices, f[0], f[1], f[2])
	}
	if err := setBaseLOD(mesh, indices); err != nil {
		return nil, err
	}
	return mesh, nil
}
