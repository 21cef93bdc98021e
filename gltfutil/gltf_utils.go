package gltfutil

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
)

var ErrNoImageData = errors.New("image has no data")

// Parser turns a file path into a document. Buffers must be loaded.
type Parser func(path string) (*gltf.Document, error)

// Load is the default Parser.
func Load(path string) (*gltf.Document, error) {
	return gltf.Open(path)
}

// BufferViewData returns the bytes of a buffer view.
func BufferViewData(doc *gltf.Document, index uint32) ([]byte, error) {
	if int(index) >= len(doc.BufferViews) {
		return nil, fmt.Errorf("buffer view %d out of range", index)
	}
	bv := doc.BufferViews[index]
	if int(bv.Buffer) >= len(doc.Buffers) {
		return nil, fmt.Errorf("buffer %d out of range", bv.Buffer)
	}
	data := doc.Buffers[bv.Buffer].Data
	end := int(bv.ByteOffset) + int(bv.ByteLength)
	if end > len(data) {
		return nil, fmt.Errorf("buffer view %d exceeds buffer %d", index, bv.Buffer)
	}
	return data[bv.ByteOffset:end], nil
}

// ImagePayload returns the encoded bytes of an image: from its buffer view, a data URI
// or a file relative to srcDir.
func ImagePayload(doc *gltf.Document, img *gltf.Image, srcDir string) ([]byte, error) {
	if img.BufferView != nil {
		return BufferViewData(doc, *img.BufferView)
	}
	if img.URI == "" {
		return nil, ErrNoImageData
	}
	if strings.HasPrefix(img.URI, "data:") {
		comma := strings.IndexByte(img.URI, ',')
		if comma < 0 || !strings.Contains(img.URI[:comma], ";base64") {
			return nil, fmt.Errorf("unsupported data uri in image %q", img.Name)
		}
		return base64.StdEncoding.DecodeString(img.URI[comma+1:])
	}
	path, err := url.PathUnescape(img.URI)
	if err != nil {
		path = img.URI
	}
	return os.ReadFile(filepath.Join(srcDir, filepath.FromSlash(path)))
}

// ImageMimeType returns the declared mime type or guesses it from the uri.
func ImageMimeType(img *gltf.Image) string {
	if img.MimeType != "" {
		return img.MimeType
	}
	uri := img.URI
	if strings.HasPrefix(uri, "data:") {
		if semi := strings.IndexAny(uri, ";,"); semi > 5 {
			return uri[5:semi]
		}
		return ""
	}
	switch strings.ToLower(filepath.Ext(uri)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".ktx2":
		return "image/ktx2"
	case ".dds":
		return "image/vnd-ms.dds"
	case ".webp":
		return "image/webp"
	case ".tga":
		return "image/x-tga"
	case ".bmp":
		return "image/bmp"
	}
	return ""
}
