package texture

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/binzume/gpumodel/model"
	"github.com/blezek/tga"
	"github.com/gogpu/gputypes"
	_ "github.com/oov/psd"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// decodeImage decodes any registered raster format. TGA has no magic number and is tried last.
func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if !looksLikeTGA(data) {
			return nil, err
		}
		var tgaErr error
		img, tgaErr = tga.Decode(bytes.NewReader(data))
		if tgaErr != nil {
			return nil, err
		}
	}
	return img, nil
}

func looksLikeTGA(data []byte) bool {
	if len(data) < 18 || data[1] > 1 {
		return false
	}
	switch data[2] {
	case 1, 2, 3, 9, 10, 11:
	default:
		return false
	}
	switch data[16] {
	case 8, 15, 16, 24, 32:
		return true
	}
	return false
}

// nativeChannels returns the channel count the source image carries.
func nativeChannels(img image.Image) int {
	switch m := img.(type) {
	case *image.Gray, *image.Gray16:
		return 1
	case *image.YCbCr, *image.CMYK:
		return 3
	case interface{ Opaque() bool }:
		if m.Opaque() {
			return 3
		}
	}
	if img.ColorModel() == color.GrayModel || img.ColorModel() == color.Gray16Model {
		return 1
	}
	return 4
}

// rasterFormat is the GPU format of an 8 bit image with the given channel count.
// There is no three channel format.
func rasterFormat(channels int) gputypes.TextureFormat {
	switch channels {
	case 1:
		return gputypes.TextureFormatR8Unorm
	case 2:
		return gputypes.TextureFormatRG8Unorm
	case 4:
		return gputypes.TextureFormatRGBA8Unorm
	}
	return gputypes.TextureFormatUndefined
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// mipCount returns the length of a full mip chain.
func mipCount(width, height int) int {
	n := 1
	for width > 1 || height > 1 {
		width, height = max(1, width/2), max(1, height/2)
		n++
	}
	return n
}

// packRaster stores img with the given channel count, followed by its mip chain when mips is set.
func packRaster(img image.Image, channels int, mips bool) *model.ImageData {
	level := toNRGBA(img)
	width, height := level.Rect.Dx(), level.Rect.Dy()
	count := 1
	if mips {
		count = mipCount(width, height)
	}

	total := 0
	w, h := width, height
	for i := 0; i < count; i++ {
		total += w * h * channels
		w, h = max(1, w/2), max(1, h/2)
	}

	out := &model.ImageData{
		Pixels:        make([]byte, 0, total),
		Width:         width,
		Height:        height,
		Depth:         1,
		BytesPerPixel: channels,
		Channels:      channels,
		Format:        rasterFormat(channels),
	}
	for i := 0; i < count; i++ {
		if i > 0 {
			w, h := max(1, level.Rect.Dx()/2), max(1, level.Rect.Dy()/2)
			next := image.NewNRGBA(image.Rect(0, 0, w, h))
			draw.ApproxBiLinear.Scale(next, next.Bounds(), level, level.Bounds(), draw.Src, nil)
			level = next
		}
		offset := len(out.Pixels)
		out.Pixels = appendChannels(out.Pixels, level, channels)
		out.Mips = append(out.Mips, model.MipRange{
			Offset: offset,
			Size:   len(out.Pixels) - offset,
			Width:  level.Rect.Dx(),
			Height: level.Rect.Dy(),
		})
	}
	return out
}

func appendChannels(dst []byte, img *image.NRGBA, channels int) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			dst = append(dst, row[x*4:x*4+channels]...)
		}
	}
	return dst
}

// DecodeRaster decodes a PNG/JPEG/GIF/BMP/TIFF/WebP/PSD/TGA payload at its native channel count.
func DecodeRaster(data []byte, mips bool) (*model.ImageData, error) {
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	return packRaster(img, nativeChannels(img), mips), nil
}
