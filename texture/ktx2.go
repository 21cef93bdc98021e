package texture

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/binzume/gpumodel/model"
	"github.com/gogpu/gputypes"
	"github.com/klauspost/compress/zstd"
)

const (
	ktx2HeaderSize     = 80
	ktx2LevelIndexSize = 24

	ktx2SupercompressionNone    = 0
	ktx2SupercompressionBasisLZ = 1
	ktx2SupercompressionZstd    = 2
	ktx2SupercompressionZlib    = 3
	ktx2VkFormatUndefined       = 0
)

var (
	errNotKTX2 = errors.New("ktx2: bad magic")

	// ErrTranscoderUnavailable is returned for Basis Universal payloads when no Transcoder is set.
	ErrTranscoderUnavailable = errors.New("ktx2: payload needs transcoding but no transcoder is registered")
)

// TranscodeTarget is the format Basis Universal payloads are transcoded to.
const TranscodeTarget = gputypes.TextureFormatBC7RGBAUnorm

// Transcoder converts a Basis Universal KTX2 payload into the target GPU format.
type Transcoder interface {
	Transcode(ktx2 []byte, target gputypes.TextureFormat) (*model.ImageData, error)
}

var zstdDecoder, _ = zstd.NewReader(nil)

func ktx2VkFormat(vk uint32) (formatInfo, bool) {
	switch vk {
	case 9:
		return formatInfo{format: gputypes.TextureFormatR8Unorm, bpp: 1, channels: 1}, true
	case 16:
		return formatInfo{format: gputypes.TextureFormatRG8Unorm, bpp: 2, channels: 2}, true
	case 37:
		return rgba8, true
	case 43:
		return srgbVariant(rgba8, true), true
	case 97:
		return formatInfo{format: gputypes.TextureFormatRGBA16Float, bpp: 8, channels: 4}, true
	case 109:
		return formatInfo{format: gputypes.TextureFormatRGBA32Float, bpp: 16, channels: 4}, true
	case 133:
		return bc1, true
	case 134:
		return srgbVariant(bc1, true), true
	case 135:
		return bc2, true
	case 136:
		return srgbVariant(bc2, true), true
	case 137:
		return bc3, true
	case 138:
		return srgbVariant(bc3, true), true
	case 139:
		return bc4, true
	case 141:
		return bc5, true
	case 145:
		return bc7, true
	case 146:
		return srgbVariant(bc7, true), true
	}
	return formatInfo{}, false
}

type ktx2Header struct {
	vkFormat         uint32
	width            int
	height           int
	depth            int
	layers           int
	faces            int
	levels           int
	supercompression uint32
}

func parseKTX2Header(data []byte) (*ktx2Header, error) {
	if !isKTX2(data) || len(data) < ktx2HeaderSize {
		return nil, errNotKTX2
	}
	le := binary.LittleEndian
	h := &ktx2Header{
		vkFormat:         le.Uint32(data[12:]),
		width:            int(le.Uint32(data[20:])),
		height:           int(le.Uint32(data[24:])),
		depth:            int(le.Uint32(data[28:])),
		layers:           int(le.Uint32(data[32:])),
		faces:            int(le.Uint32(data[36:])),
		levels:           int(le.Uint32(data[40:])),
		supercompression: le.Uint32(data[44:]),
	}
	h.height = max(1, h.height)
	h.depth = max(1, h.depth)
	h.levels = max(1, h.levels)
	if err := checkDimensions(h.width, h.height, h.depth); err != nil {
		return nil, fmt.Errorf("ktx2: %w", err)
	}
	h.levels = min(h.levels, mipCount(h.width, h.height))
	return h, nil
}

// needsTranscoding reports whether the payload holds Basis Universal data.
func (h *ktx2Header) needsTranscoding() bool {
	return h.vkFormat == ktx2VkFormatUndefined || h.supercompression == ktx2SupercompressionBasisLZ
}

// DecodeKTX2 reads a KTX2 container. Basis Universal payloads go through the transcoder,
// other payloads are read directly after undoing Zstandard or zlib supercompression.
func DecodeKTX2(data []byte, transcoder Transcoder) (*model.ImageData, error) {
	h, err := parseKTX2Header(data)
	if err != nil {
		return nil, err
	}
	if h.needsTranscoding() {
		if transcoder == nil {
			return nil, ErrTranscoderUnavailable
		}
		img, err := transcoder.Transcode(data, TranscodeTarget)
		if err != nil {
			return nil, fmt.Errorf("ktx2: transcode: %w", err)
		}
		return img, nil
	}
	if h.layers > 1 || h.faces > 1 {
		return nil, fmt.Errorf("ktx2: array and cube textures are not supported")
	}
	info, ok := ktx2VkFormat(h.vkFormat)
	if !ok {
		return nil, fmt.Errorf("ktx2: unsupported vkFormat %d", h.vkFormat)
	}
	if len(data) < ktx2HeaderSize+h.levels*ktx2LevelIndexSize {
		return nil, fmt.Errorf("ktx2: truncated level index")
	}

	img := &model.ImageData{
		Width:         h.width,
		Height:        h.height,
		Depth:         h.depth,
		BytesPerPixel: info.bytesPerPixel(),
		Channels:      info.channels,
		Format:        info.format,
	}
	le := binary.LittleEndian
	levels := make([][]byte, h.levels)
	total := 0
	w, ht := h.width, h.height
	for i := 0; i < h.levels; i++ {
		idx := data[ktx2HeaderSize+i*ktx2LevelIndexSize:]
		offset := le.Uint64(idx)
		length := le.Uint64(idx[8:])
		if offset > uint64(len(data)) || length > uint64(len(data))-offset {
			return nil, fmt.Errorf("ktx2: level %d out of range", i)
		}
		level, err := decompressLevel(data[offset:offset+length], h.supercompression)
		if err != nil {
			return nil, fmt.Errorf("ktx2: level %d: %w", i, err)
		}
		if want := info.levelSize(w, ht, h.depth); len(level) < want {
			return nil, fmt.Errorf("ktx2: level %d has %d bytes, want %d", i, len(level), want)
		}
		levels[i] = level
		img.Mips = append(img.Mips, model.MipRange{Offset: total, Size: len(level), Width: w, Height: ht})
		total += len(level)
		w, ht = max(1, w/2), max(1, ht/2)
	}
	img.Pixels = make([]byte, 0, total)
	for _, level := range levels {
		img.Pixels = append(img.Pixels, level...)
	}
	return img, nil
}

func decompressLevel(src []byte, scheme uint32) ([]byte, error) {
	switch scheme {
	case ktx2SupercompressionNone:
		return src, nil
	case ktx2SupercompressionZstd:
		return zstdDecoder.DecodeAll(src, nil)
	case ktx2SupercompressionZlib:
		r, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	}
	return nil, fmt.Errorf("unsupported supercompression scheme %d", scheme)
}
