package texture

import (
	"bytes"
	"strings"

	"github.com/h2non/filetype"
)

// Container is the encoding family of an image payload.
type Container int

const (
	ContainerUnknown Container = iota
	// ContainerDDS holds block-compressed data.
	ContainerDDS
	// ContainerKTX2 holds supercompressed or transcodable data.
	ContainerKTX2
	// ContainerRaster is any format decodable by the image package.
	ContainerRaster
)

func (c Container) String() string {
	switch c {
	case ContainerDDS:
		return "dds"
	case ContainerKTX2:
		return "ktx2"
	case ContainerRaster:
		return "raster"
	}
	return "unknown"
}

var (
	ddsMagic  = []byte("DDS ")
	ktx2Magic = []byte{0xAB, 0x4B, 0x54, 0x58, 0x20, 0x32, 0x30, 0xBB, 0x0D, 0x0A, 0x1A, 0x0A}

	ddsType  = filetype.NewType("dds", "image/vnd-ms.dds")
	ktx2Type = filetype.NewType("ktx2", "image/ktx2")
)

func init() {
	filetype.AddMatcher(ddsType, isDDS)
	filetype.AddMatcher(ktx2Type, isKTX2)
}

func isDDS(buf []byte) bool {
	return len(buf) >= 128 && bytes.Equal(buf[:4], ddsMagic)
}

func isKTX2(buf []byte) bool {
	return len(buf) >= len(ktx2Magic) && bytes.Equal(buf[:len(ktx2Magic)], ktx2Magic)
}

// DetectContainer sniffs the payload's magic bytes.
func DetectContainer(data []byte) Container {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return ContainerUnknown
	}
	switch kind {
	case ddsType:
		return ContainerDDS
	case ktx2Type:
		return ContainerKTX2
	}
	if kind.MIME.Type == "image" {
		return ContainerRaster
	}
	return ContainerUnknown
}

// ContainerFromMime maps a declared mime type to a container hint.
func ContainerFromMime(mime string) Container {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch mime {
	case "":
		return ContainerUnknown
	case "image/vnd-ms.dds", "image/vnd.ms-dds", "image/dds", "image/x-dds":
		return ContainerDDS
	case "image/ktx2":
		return ContainerKTX2
	}
	if strings.HasPrefix(mime, "image/") {
		return ContainerRaster
	}
	return ContainerUnknown
}
