package texture

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/binzume/gpumodel/model"
	"github.com/gogpu/gputypes"
)

const (
	ddsHeaderSize      = 128
	ddsDX10HeaderSize  = 20
	ddsFlagMipMapCount = 0x20000
	ddsFlagDepth       = 0x800000
	ddsPixelFourCC     = 0x4
	ddsPixelRGB        = 0x40
	ddsPixelAlpha      = 0x1

	// MaxDimension is the largest width, height or depth accepted from a container header.
	MaxDimension = 16384
)

var errNotDDS = errors.New("dds: bad magic")

// formatInfo describes how a GPU format is laid out in memory.
type formatInfo struct {
	format    gputypes.TextureFormat
	blockSize int // bytes per 4x4 block, 0 for uncompressed
	bpp       int // bytes per pixel of uncompressed formats
	channels  int
}

var (
	bc1 = formatInfo{format: gputypes.TextureFormatBC1RGBAUnorm, blockSize: 8, channels: 4}
	bc2 = formatInfo{format: gputypes.TextureFormatBC2RGBAUnorm, blockSize: 16, channels: 4}
	bc3 = formatInfo{format: gputypes.TextureFormatBC3RGBAUnorm, blockSize: 16, channels: 4}
	bc4 = formatInfo{format: gputypes.TextureFormatBC4RUnorm, blockSize: 8, channels: 1}
	bc5 = formatInfo{format: gputypes.TextureFormatBC5RGUnorm, blockSize: 16, channels: 2}
	bc7 = formatInfo{format: gputypes.TextureFormatBC7RGBAUnorm, blockSize: 16, channels: 4}

	rgba8 = formatInfo{format: gputypes.TextureFormatRGBA8Unorm, bpp: 4, channels: 4}
)

func srgbVariant(f formatInfo, srgb bool) formatInfo {
	if srgb {
		f.format = ToSRGB(f.format)
	}
	return f
}

// levelSize returns the byte size of a mip level.
func (f formatInfo) levelSize(width, height, depth int) int {
	if f.blockSize > 0 {
		return max(1, (width+3)/4) * max(1, (height+3)/4) * f.blockSize * depth
	}
	return width * height * depth * f.bpp
}

func checkDimensions(width, height, depth int) error {
	if width <= 0 || height <= 0 || depth <= 0 || width > MaxDimension || height > MaxDimension || depth > MaxDimension {
		return fmt.Errorf("invalid size %dx%dx%d", width, height, depth)
	}
	return nil
}

func (f formatInfo) bytesPerPixel() int {
	if f.blockSize > 0 {
		return -1
	}
	return f.bpp
}

// ToSRGB returns the sRGB variant of a format, or the format itself when it has none.
func ToSRGB(f gputypes.TextureFormat) gputypes.TextureFormat {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8UnormSrgb
	case gputypes.TextureFormatBC1RGBAUnorm:
		return gputypes.TextureFormatBC1RGBAUnormSrgb
	case gputypes.TextureFormatBC2RGBAUnorm:
		return gputypes.TextureFormatBC2RGBAUnormSrgb
	case gputypes.TextureFormatBC3RGBAUnorm:
		return gputypes.TextureFormatBC3RGBAUnormSrgb
	case gputypes.TextureFormatBC7RGBAUnorm:
		return gputypes.TextureFormatBC7RGBAUnormSrgb
	}
	return f
}

func ddsFourCCFormat(fourCC string) (formatInfo, bool) {
	switch fourCC {
	case "DXT1":
		return bc1, true
	case "DXT2", "DXT3":
		return bc2, true
	case "DXT4", "DXT5":
		return bc3, true
	case "ATI1", "BC4U":
		return bc4, true
	case "ATI2", "BC5U":
		return bc5, true
	}
	return formatInfo{}, false
}

func ddsDXGIFormat(dxgi uint32) (formatInfo, bool) {
	switch dxgi {
	case 28:
		return rgba8, true
	case 29:
		return srgbVariant(rgba8, true), true
	case 71:
		return bc1, true
	case 72:
		return srgbVariant(bc1, true), true
	case 74:
		return bc2, true
	case 75:
		return srgbVariant(bc2, true), true
	case 77:
		return bc3, true
	case 78:
		return srgbVariant(bc3, true), true
	case 80:
		return bc4, true
	case 83:
		return bc5, true
	case 98:
		return bc7, true
	case 99:
		return srgbVariant(bc7, true), true
	}
	return formatInfo{}, false
}

// DecodeDDS reads a DDS container. Block-compressed payloads are kept as-is, 32 bit BGRA
// payloads are swizzled to RGBA. Only the first surface of arrays and cube maps is read.
func DecodeDDS(data []byte) (*model.ImageData, error) {
	if !isDDS(data) {
		return nil, errNotDDS
	}
	le := binary.LittleEndian
	flags := le.Uint32(data[8:])
	height := int(le.Uint32(data[12:]))
	width := int(le.Uint32(data[16:]))
	depth := 1
	if flags&ddsFlagDepth != 0 && le.Uint32(data[24:]) > 1 {
		return nil, fmt.Errorf("dds: volume textures are not supported")
	}
	levels := 1
	if flags&ddsFlagMipMapCount != 0 && le.Uint32(data[28:]) > 0 {
		levels = int(le.Uint32(data[28:]))
	}
	if err := checkDimensions(width, height, depth); err != nil {
		return nil, fmt.Errorf("dds: %w", err)
	}
	levels = min(levels, mipCount(width, height))

	pfFlags := le.Uint32(data[80:])
	fourCC := string(data[84:88])
	offset := ddsHeaderSize
	swizzle := false

	var info formatInfo
	var ok bool
	switch {
	case pfFlags&ddsPixelFourCC != 0 && fourCC == "DX10":
		if len(data) < ddsHeaderSize+ddsDX10HeaderSize {
			return nil, fmt.Errorf("dds: truncated dx10 header")
		}
		dxgi := le.Uint32(data[ddsHeaderSize:])
		info, ok = ddsDXGIFormat(dxgi)
		if !ok {
			return nil, fmt.Errorf("dds: unsupported dxgi format %d", dxgi)
		}
		offset += ddsDX10HeaderSize
	case pfFlags&ddsPixelFourCC != 0:
		info, ok = ddsFourCCFormat(fourCC)
		if !ok {
			return nil, fmt.Errorf("dds: unsupported fourcc %q", fourCC)
		}
	case pfFlags&ddsPixelRGB != 0 && le.Uint32(data[88:]) == 32:
		info = rgba8
		rMask := le.Uint32(data[92:])
		switch rMask {
		case 0x000000ff:
		case 0x00ff0000:
			swizzle = true
		default:
			return nil, fmt.Errorf("dds: unsupported channel masks")
		}
	default:
		return nil, fmt.Errorf("dds: unsupported pixel format")
	}

	img := &model.ImageData{
		Width:         width,
		Height:        height,
		Depth:         depth,
		BytesPerPixel: info.bytesPerPixel(),
		Channels:      info.channels,
		Format:        info.format,
	}
	total := 0
	w, h := width, height
	for i := 0; i < levels; i++ {
		size := info.levelSize(w, h, depth)
		if offset+total+size > len(data) {
			if i == 0 {
				return nil, fmt.Errorf("dds: truncated payload")
			}
			// keep the levels that are present
			break
		}
		img.Mips = append(img.Mips, model.MipRange{Offset: total, Size: size, Width: w, Height: h})
		total += size
		w, h = max(1, w/2), max(1, h/2)
	}
	img.Pixels = make([]byte, total)
	copy(img.Pixels, data[offset:offset+total])
	if swizzle {
		for i := 0; i+3 < len(img.Pixels); i += 4 {
			img.Pixels[i], img.Pixels[i+2] = img.Pixels[i+2], img.Pixels[i]
		}
	}
	if pfFlags&ddsPixelRGB != 0 && pfFlags&ddsPixelAlpha == 0 && info.blockSize == 0 {
		// no alpha channel stored, the fourth byte is padding
		for i := 3; i < len(img.Pixels); i += 4 {
			img.Pixels[i] = 0xff
		}
	}
	return img, nil
}
