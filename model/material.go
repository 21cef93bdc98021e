package model

import (
	"encoding/binary"
	"math"
)

const MaterialConstantsSize = 48

type MaterialConstants struct {
	BaseColorFactor    [4]float32
	EmissiveColor      [4]float32
	EmissiveStrength   float32
	NormalMapIntensity float32
	RoughnessFactor    float32
	MetallicFactor     float32
}

func DefaultMaterialConstants() MaterialConstants {
	return MaterialConstants{
		BaseColorFactor:    [4]float32{1, 1, 1, 1},
		EmissiveStrength:   1,
		NormalMapIntensity: 1,
		RoughnessFactor:    1,
		MetallicFactor:     1,
	}
}

// Bytes returns the little-endian constant block as laid out in the shader.
func (c *MaterialConstants) Bytes() []byte {
	buf := make([]byte, MaterialConstantsSize)
	put := func(i int, v float32) {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	for i, v := range c.BaseColorFactor {
		put(i, v)
	}
	for i, v := range c.EmissiveColor {
		put(4+i, v)
	}
	put(8, c.EmissiveStrength)
	put(9, c.NormalMapIntensity)
	put(10, c.RoughnessFactor)
	put(11, c.MetallicFactor)
	return buf
}

type MaterialData struct {
	Name      string
	Constants MaterialConstants
	Textures  []TextureData
}

func (m *MaterialData) Texture(t TextureType) *TextureData {
	for i := range m.Textures {
		if m.Textures[i].Type == t {
			return &m.Textures[i]
		}
	}
	return nil
}
