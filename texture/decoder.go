// Package texture decodes glTF image payloads into GPU-ready pixel buffers.
package texture

import (
	"errors"
	"fmt"

	"github.com/binzume/gpumodel/model"
	"github.com/gogpu/gputypes"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrUnsupportedImage is returned when every applicable decoder rejected the payload.
var ErrUnsupportedImage = errors.New("texture: unsupported image")

// ChannelSet is the set of pixel component counts (1..4) accepted without conversion.
type ChannelSet uint8

func Channels(counts ...int) ChannelSet {
	var s ChannelSet
	for _, k := range counts {
		if k >= 1 && k <= 4 {
			s |= 1 << (k - 1)
		}
	}
	return s
}

// Counts returns the allowed channel counts in increasing order.
func (s ChannelSet) Counts() []int {
	var counts []int
	for k := 1; k <= 4; k++ {
		if s.Allows(k) {
			counts = append(counts, k)
		}
	}
	return counts
}

func (s ChannelSet) Allows(k int) bool {
	return k >= 1 && k <= 4 && s&(1<<(k-1)) != 0
}

// DefaultChannels are the counts with a matching 8 bit GPU format.
var DefaultChannels = Channels(1, 2, 4)

// Promote returns the smallest allowed count greater than k.
func (s ChannelSet) Promote(k int) (int, bool) {
	for n := k + 1; n <= 4; n++ {
		if s.Allows(n) {
			return n, true
		}
	}
	return k, false
}

type DecoderOptions struct {
	// Channels allowed for raster images. Zero means DefaultChannels.
	Channels   ChannelSet
	Transcoder Transcoder
	// NoMips disables mip chain generation for raster images.
	NoMips bool
	Logger *zap.Logger
}

type Decoder struct {
	options DecoderOptions
	log     *zap.Logger
}

func NewDecoder(options *DecoderOptions) *Decoder {
	if options == nil {
		options = &DecoderOptions{}
	}
	d := &Decoder{options: *options, log: options.Logger}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if d.options.Channels == 0 {
		d.options.Channels = DefaultChannels
		d.log.Info("no image channel counts configured, using the default set",
			zap.Ints("channels", DefaultChannels.Counts()))
	}
	return d
}

type decodeFunc func(data []byte) (*model.ImageData, error)

func (d *Decoder) decoders(hint Container) []Container {
	switch hint {
	case ContainerDDS, ContainerKTX2, ContainerRaster:
		return []Container{hint}
	}
	return []Container{ContainerRaster, ContainerDDS, ContainerKTX2}
}

func (d *Decoder) decoder(c Container) decodeFunc {
	switch c {
	case ContainerDDS:
		return DecodeDDS
	case ContainerKTX2:
		return func(data []byte) (*model.ImageData, error) {
			return DecodeKTX2(data, d.options.Transcoder)
		}
	}
	return d.decodeRaster
}

// Decode decodes a payload. A DDS, KTX2 or raster hint selects that decoder only.
// Without a hint the raster decoder is tried first, then DDS, then KTX2.
func (d *Decoder) Decode(data []byte, hint Container) (*model.ImageData, error) {
	var errs error
	for _, c := range d.decoders(hint) {
		img, err := d.decoder(c)(data)
		if err == nil {
			return img, nil
		}
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", c, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrUnsupportedImage, errs)
}

func (d *Decoder) decodeRaster(data []byte) (*model.ImageData, error) {
	img, err := DecodeRaster(data, !d.options.NoMips)
	if err != nil {
		return nil, err
	}
	if d.options.Channels.Allows(img.Channels) {
		return img, nil
	}
	k, ok := d.options.Channels.Promote(img.Channels)
	if !ok {
		d.log.Warn("no larger channel count allowed, keeping image as is", zap.Int("channels", img.Channels))
		return img, nil
	}
	return ExpandChannels(img, k), nil
}

// ExpandChannels returns a copy of an 8 bit image with k channels. Existing channels keep
// their order, added color channels are 0 and an added alpha channel is 255.
func ExpandChannels(img *model.ImageData, k int) *model.ImageData {
	src := img.Channels
	if k <= src {
		return img
	}
	out := &model.ImageData{
		Pixels:        make([]byte, 0, len(img.Pixels)/src*k),
		Width:         img.Width,
		Height:        img.Height,
		Depth:         img.Depth,
		BytesPerPixel: k,
		Channels:      k,
		Format:        rasterFormat(k),
	}
	fill := make([]byte, k-src)
	if k == 4 {
		fill[len(fill)-1] = 0xff
	}
	for _, m := range img.Mips {
		offset := len(out.Pixels)
		level := img.Pixels[m.Offset : m.Offset+m.Size]
		for i := 0; i+src <= len(level); i += src {
			out.Pixels = append(out.Pixels, level[i:i+src]...)
			out.Pixels = append(out.Pixels, fill...)
		}
		out.Mips = append(out.Mips, model.MipRange{Offset: offset, Size: len(out.Pixels) - offset, Width: m.Width, Height: m.Height})
	}
	return out
}

// Format returns the GPU format of img for a texture slot, switching to sRGB for color slots.
func Format(img *model.ImageData, t model.TextureType) gputypes.TextureFormat {
	if t.IsColor() {
		return ToSRGB(img.Format)
	}
	return img.Format
}
