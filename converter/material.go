package converter

import (
	"errors"
	"fmt"
	"path"

	"github.com/binzume/gpumodel/gltfutil"
	"github.com/binzume/gpumodel/model"
	"github.com/binzume/gpumodel/texture"
	"github.com/qmuntal/gltf"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type textureSlot struct {
	typ   model.TextureType
	index uint32
}

// textureSlots lists the textures referenced by m. Occlusion sharing the
// metallic-roughness image is loaded once as a packed ORM texture.
func textureSlots(m *gltf.Material) []textureSlot {
	var slots []textureSlot
	add := func(t model.TextureType, index *uint32) {
		if index != nil {
			slots = append(slots, textureSlot{t, *index})
		}
	}
	var occlusion *uint32
	if m.OcclusionTexture != nil {
		occlusion = m.OcclusionTexture.Index
	}
	if pbr := m.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorTexture != nil {
			add(model.TextureBaseColor, &pbr.BaseColorTexture.Index)
		}
		if mr := pbr.MetallicRoughnessTexture; mr != nil {
			if occlusion != nil && *occlusion == mr.Index {
				add(model.TextureOcclusionRoughnessMetallic, &mr.Index)
				occlusion = nil
			} else {
				add(model.TextureRoughnessMetallic, &mr.Index)
			}
		}
	}
	add(model.TextureOcclusionMap, occlusion)
	if m.NormalTexture != nil {
		add(model.TextureNormalMap, m.NormalTexture.Index)
	}
	if m.EmissiveTexture != nil {
		add(model.TextureEmissiveColor, &m.EmissiveTexture.Index)
	}
	if sg := gltfutil.MaterialSpecularGlossiness(m); sg != nil {
		hasBase := m.PBRMetallicRoughness != nil && m.PBRMetallicRoughness.BaseColorTexture != nil
		if sg.DiffuseTexture != nil && !hasBase {
			add(model.TextureBaseColor, &sg.DiffuseTexture.Index)
		}
		if sg.SpecularGlossinessTexture != nil {
			add(model.TextureSpecularGlossiness, &sg.SpecularGlossinessTexture.Index)
		}
	}
	return slots
}

func materialConstants(m *gltf.Material) model.MaterialConstants {
	c := model.DefaultMaterialConstants()
	if pbr := m.PBRMetallicRoughness; pbr != nil {
		c.BaseColorFactor = pbr.BaseColorFactorOrDefault()
		c.MetallicFactor = pbr.MetallicFactorOrDefault()
		c.RoughnessFactor = pbr.RoughnessFactorOrDefault()
	}
	if sg := gltfutil.MaterialSpecularGlossiness(m); sg != nil {
		c.BaseColorFactor = sg.DiffuseFactorOrDefault()
		c.RoughnessFactor = 1 - sg.GlossinessFactorOrDefault()
		c.MetallicFactor = 0
	}
	e := m.EmissiveFactor
	c.EmissiveColor = [4]float32{e[0], e[1], e[2], 1}
	c.EmissiveStrength = gltfutil.MaterialEmissiveStrength(m)
	if m.NormalTexture != nil {
		c.NormalMapIntensity = m.NormalTexture.ScaleOrDefault()
	}
	return c
}

// ConvertMaterials converts every material of the document. Texture failures do not drop
// the material; they are returned combined so that callers can decide how strict to be.
func (c *gltfToModel) ConvertMaterials(doc *gltf.Document) ([]*model.MaterialData, error) {
	materials := make([]*model.MaterialData, len(doc.Materials))
	errs := make([]error, len(doc.Materials))
	c.forEach(len(doc.Materials), func(i int) {
		materials[i], errs[i] = c.ConvertMaterial(doc, i)
	})
	return materials, multierr.Combine(errs...)
}

// ConvertMaterial converts one material. Texture slots are decoded concurrently; a slot that
// fails is logged and left out, and its error is part of the returned error.
func (c *gltfToModel) ConvertMaterial(doc *gltf.Document, index int) (*model.MaterialData, error) {
	m := doc.Materials[index]
	mat := &model.MaterialData{
		Name:      m.Name,
		Constants: materialConstants(m),
	}

	slots := textureSlots(m)
	textures := make([]*model.TextureData, len(slots))
	errs := make([]error, len(slots))
	c.forEach(len(slots), func(i int) {
		s := slots[i]
		textures[i], errs[i] = c.loadTexture(doc, s.index, s.typ)
		if errs[i] != nil {
			c.log.Warn("texture slot skipped",
				zap.String("material", m.Name),
				zap.Stringer("slot", s.typ),
				zap.Uint32("texture", s.index),
				zap.Error(errs[i]))
			errs[i] = fmt.Errorf("material %q %s: %w", m.Name, s.typ, errs[i])
		}
	})
	for _, t := range textures {
		if t != nil {
			mat.Textures = append(mat.Textures, *t)
		}
	}
	return mat, multierr.Combine(errs...)
}

func samplerData(doc *gltf.Document, tex *gltf.Texture) model.SamplerData {
	s := model.SamplerData{Mag: model.FilterLinear, Min: model.FilterLinear}
	if tex.Sampler == nil || int(*tex.Sampler) >= len(doc.Samplers) {
		return s
	}
	src := doc.Samplers[*tex.Sampler]
	if src.MagFilter == gltf.MagNearest {
		s.Mag = model.FilterNearest
	}
	switch src.MinFilter {
	case gltf.MinNearest, gltf.MinNearestMipMapNearest, gltf.MinNearestMipMapLinear:
		s.Min = model.FilterNearest
	}
	return s
}

func imageName(img *gltf.Image, index uint32) string {
	switch {
	case img.Name != "":
		return img.Name
	case img.URI != "" && len(img.URI) < 256:
		return path.Base(img.URI)
	}
	return fmt.Sprintf("image%d", index)
}

// loadTexture decodes the first usable source image of a texture.
func (c *gltfToModel) loadTexture(doc *gltf.Document, index uint32, typ model.TextureType) (*model.TextureData, error) {
	if int(index) >= len(doc.Textures) {
		return nil, fmt.Errorf("texture %d out of range", index)
	}
	tex := doc.Textures[index]
	sources := gltfutil.TextureSources(tex, c.options.PreferUncompressed)
	if len(sources) == 0 {
		return nil, fmt.Errorf("texture %d has no source", index)
	}

	var errs error
	for _, src := range sources {
		if int(src) >= len(doc.Images) {
			errs = multierr.Append(errs, fmt.Errorf("image %d out of range", src))
			continue
		}
		img := doc.Images[src]
		data, err := gltfutil.ImagePayload(doc, img, c.options.BaseDir)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		hint := texture.ContainerFromMime(gltfutil.ImageMimeType(img))
		if hint == texture.ContainerUnknown {
			hint = texture.DetectContainer(data)
		}
		decoded, err := c.images.Decode(data, hint)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		decoded.Format = texture.Format(decoded, typ)
		return &model.TextureData{
			Name:    imageName(img, src),
			Image:   *decoded,
			Type:    typ,
			Sampler: samplerData(doc, tex),
		}, nil
	}
	return nil, errs
}

// IsUnsupportedImage reports whether err contains a decode cascade exhaustion.
func IsUnsupportedImage(err error) bool {
	return errors.Is(err, texture.ErrUnsupportedImage)
}
