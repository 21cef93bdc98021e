package gltfutil

import (
	"encoding/json"

	"github.com/qmuntal/gltf"
)

const (
	ExtDracoMeshCompression      = "KHR_draco_mesh_compression"
	ExtLightsPunctual            = "KHR_lights_punctual"
	ExtTextureBasisu             = "KHR_texture_basisu"
	ExtTextureDDS                = "MSFT_texture_dds"
	ExtPBRSpecularGlossiness     = "KHR_materials_pbrSpecularGlossiness"
	ExtMaterialsEmissiveStrength = "KHR_materials_emissive_strength"
)

func init() {
	gltf.RegisterExtension(ExtDracoMeshCompression, unmarshalExt[DracoMeshCompression])
	gltf.RegisterExtension(ExtLightsPunctual, unmarshalExt[LightsPunctual])
	gltf.RegisterExtension(ExtTextureBasisu, unmarshalExt[TextureSource])
	gltf.RegisterExtension(ExtTextureDDS, unmarshalExt[TextureSource])
	gltf.RegisterExtension(ExtPBRSpecularGlossiness, unmarshalExt[SpecularGlossiness])
	gltf.RegisterExtension(ExtMaterialsEmissiveStrength, unmarshalExt[EmissiveStrength])
}

func unmarshalExt[T any](data []byte) (interface{}, error) {
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	return v, nil
}

// extension returns the typed extension value stored under name, or nil.
func extension[T any](exts gltf.Extensions, name string) *T {
	if exts == nil {
		return nil
	}
	switch v := exts[name].(type) {
	case *T:
		return v
	case T:
		return &v
	case json.RawMessage:
		// registered after the document was decoded
		ext := new(T)
		if json.Unmarshal(v, ext) != nil {
			return nil
		}
		return ext
	}
	return nil
}

// DracoMeshCompression is the primitive extension of compressed geometry.
// Attributes maps semantic names to attribute ids inside the compressed payload.
type DracoMeshCompression struct {
	BufferView uint32            `json:"bufferView"`
	Attributes map[string]uint32 `json:"attributes"`
}

func Draco(p *gltf.Primitive) *DracoMeshCompression {
	return extension[DracoMeshCompression](p.Extensions, ExtDracoMeshCompression)
}

// LightsPunctual is used both at document level (Lights) and at node level (Light).
type LightsPunctual struct {
	Lights []*Light `json:"lights,omitempty"`
	Light  *uint32  `json:"light,omitempty"`
}

const (
	LightDirectional = "directional"
	LightPoint       = "point"
	LightSpot        = "spot"
)

type Light struct {
	Name      string      `json:"name,omitempty"`
	Type      string      `json:"type"`
	Color     *[3]float32 `json:"color,omitempty"`
	Intensity *float32    `json:"intensity,omitempty"`
	Range     *float32    `json:"range,omitempty"`
	Spot      *Spot       `json:"spot,omitempty"`
}

func (l *Light) ColorOrDefault() [3]float32 {
	if l.Color == nil {
		return [3]float32{1, 1, 1}
	}
	return *l.Color
}

func (l *Light) IntensityOrDefault() float32 {
	if l.Intensity == nil {
		return 1
	}
	return *l.Intensity
}

// RangeOrDefault returns 0 for lights with infinite range.
func (l *Light) RangeOrDefault() float32 {
	if l.Range == nil {
		return 0
	}
	return *l.Range
}

type Spot struct {
	InnerConeAngle *float32 `json:"innerConeAngle,omitempty"`
	OuterConeAngle *float32 `json:"outerConeAngle,omitempty"`
}

func (s *Spot) InnerConeAngleOrDefault() float32 {
	if s == nil || s.InnerConeAngle == nil {
		return 0
	}
	return *s.InnerConeAngle
}

func (s *Spot) OuterConeAngleOrDefault() float32 {
	if s == nil || s.OuterConeAngle == nil {
		return 0.7853981634
	}
	return *s.OuterConeAngle
}

// DocumentLights returns the light definitions of the document.
func DocumentLights(doc *gltf.Document) []*Light {
	if ext := extension[LightsPunctual](doc.Extensions, ExtLightsPunctual); ext != nil {
		return ext.Lights
	}
	return nil
}

// NodeLight returns the light index instanced by the node.
func NodeLight(n *gltf.Node) (uint32, bool) {
	ext := extension[LightsPunctual](n.Extensions, ExtLightsPunctual)
	if ext == nil || ext.Light == nil {
		return 0, false
	}
	return *ext.Light, true
}

// TextureSource is the texture extension pointing at an alternative image (KTX2 or DDS).
type TextureSource struct {
	Source uint32 `json:"source"`
}

type SpecularGlossiness struct {
	DiffuseFactor             *[4]float32       `json:"diffuseFactor,omitempty"`
	DiffuseTexture            *gltf.TextureInfo `json:"diffuseTexture,omitempty"`
	SpecularFactor            *[3]float32       `json:"specularFactor,omitempty"`
	GlossinessFactor          *float32          `json:"glossinessFactor,omitempty"`
	SpecularGlossinessTexture *gltf.TextureInfo `json:"specularGlossinessTexture,omitempty"`
}

func (s *SpecularGlossiness) DiffuseFactorOrDefault() [4]float32 {
	if s.DiffuseFactor == nil {
		return [4]float32{1, 1, 1, 1}
	}
	return *s.DiffuseFactor
}

func (s *SpecularGlossiness) GlossinessFactorOrDefault() float32 {
	if s.GlossinessFactor == nil {
		return 1
	}
	return *s.GlossinessFactor
}

func MaterialSpecularGlossiness(m *gltf.Material) *SpecularGlossiness {
	return extension[SpecularGlossiness](m.Extensions, ExtPBRSpecularGlossiness)
}

type EmissiveStrength struct {
	EmissiveStrength *float32 `json:"emissiveStrength,omitempty"`
}

// MaterialEmissiveStrength returns the emissive multiplier of the material, 1 when absent.
func MaterialEmissiveStrength(m *gltf.Material) float32 {
	ext := extension[EmissiveStrength](m.Extensions, ExtMaterialsEmissiveStrength)
	if ext == nil || ext.EmissiveStrength == nil {
		return 1
	}
	return *ext.EmissiveStrength
}

// TextureSources returns the candidate images of a texture in decode order.
// Compressed extension sources come first unless preferUncompressed is set.
func TextureSources(tex *gltf.Texture, preferUncompressed bool) []uint32 {
	var compressed []uint32
	for _, name := range []string{ExtTextureBasisu, ExtTextureDDS} {
		if ext := extension[TextureSource](tex.Extensions, name); ext != nil {
			compressed = append(compressed, ext.Source)
		}
	}
	var sources []uint32
	if preferUncompressed && tex.Source != nil {
		sources = append(sources, *tex.Source)
	}
	sources = append(sources, compressed...)
	if !preferUncompressed && tex.Source != nil {
		sources = append(sources, *tex.Source)
	}
	return sources
}
