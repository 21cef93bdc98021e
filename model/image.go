package model

import "github.com/gogpu/gputypes"

type MipRange struct {
	Offset int
	Size   int
	Width  int
	Height int
}

// ImageData is a decoded texture with all mip levels packed in Pixels.
type ImageData struct {
	Pixels []byte
	Mips   []MipRange
	Width  int
	Height int
	Depth  int
	// -1 for block-compressed formats.
	BytesPerPixel int
	Channels      int
	Format        gputypes.TextureFormat
}

func (img *ImageData) IsCompressed() bool {
	return img.BytesPerPixel < 0
}

func (img *ImageData) MipCount() int {
	return len(img.Mips)
}

func (img *ImageData) Mip(i int) []byte {
	m := img.Mips[i]
	return img.Pixels[m.Offset : m.Offset+m.Size]
}

type Filter int

const (
	FilterLinear Filter = iota
	FilterNearest
)

type SamplerData struct {
	Mag Filter
	Min Filter
}

type TextureType int

const (
	TextureBaseColor TextureType = iota
	TextureRoughnessMetallic
	TextureOcclusionRoughnessMetallic
	TextureSpecularGlossiness
	TextureEmissiveColor
	TextureOcclusionMap
	TextureNormalMap
)

var textureTypeNames = [...]string{
	"BaseColor",
	"RoughnessMetallic",
	"OcclusionRoughnessMetallic",
	"SpecularGlossiness",
	"EmissiveColor",
	"OcclusionMap",
	"NormalMap",
}

func (t TextureType) String() string {
	if t < 0 || int(t) >= len(textureTypeNames) {
		return "Unknown"
	}
	return textureTypeNames[t]
}

// IsColor reports whether the texture holds sRGB encoded color.
func (t TextureType) IsColor() bool {
	return t == TextureBaseColor || t == TextureEmissiveColor
}

type TextureData struct {
	Name    string
	Image   ImageData
	Type    TextureType
	Sampler SamplerData
}
