package importer

import (
	"fmt"
	"strings"

	"github.com/binzume/gpumodel/texture"
)

// Options selects the import stages.
type Options uint32

const (
	OptimizeMeshes Options = 1 << iota
	GenerateDiscreteLODs
	GenerateMeshlets
	LoadMaterials
	PreferUncompressed
	Allow1ComponentImages
	Allow2ComponentImages
	Allow3ComponentImages
	Allow4ComponentImages
	LoadMeshAttributes

	// StrictTextures fails the import when a texture cannot be decoded. Not part of All.
	StrictTextures

	All = OptimizeMeshes | GenerateDiscreteLODs | GenerateMeshlets | LoadMaterials | PreferUncompressed |
		Allow1ComponentImages | Allow2ComponentImages | Allow3ComponentImages | Allow4ComponentImages |
		LoadMeshAttributes
)

var optionNames = []struct {
	name   string
	option Options
}{
	{"OptimizeMeshes", OptimizeMeshes},
	{"GenerateDiscreteLODs", GenerateDiscreteLODs},
	{"GenerateMeshlets", GenerateMeshlets},
	{"LoadMaterials", LoadMaterials},
	{"PreferUncompressed", PreferUncompressed},
	{"Allow1ComponentImages", Allow1ComponentImages},
	{"Allow2ComponentImages", Allow2ComponentImages},
	{"Allow3ComponentImages", Allow3ComponentImages},
	{"Allow4ComponentImages", Allow4ComponentImages},
	{"LoadMeshAttributes", LoadMeshAttributes},
	{"StrictTextures", StrictTextures},
}

func (o Options) Has(flag Options) bool {
	return o&flag == flag
}

func (o Options) String() string {
	if o == 0 {
		return "None"
	}
	var names []string
	if o.Has(All) {
		names = append(names, "All")
		o &^= All
	}
	for _, n := range optionNames {
		if o.Has(n.option) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseOptions combines option names. Names are case insensitive; "All" and "None" are accepted.
func ParseOptions(names []string) (Options, error) {
	var o Options
	for _, name := range names {
		name = strings.TrimSpace(name)
		switch {
		case name == "":
			continue
		case strings.EqualFold(name, "All"):
			o |= All
			continue
		case strings.EqualFold(name, "None"):
			continue
		}
		found := false
		for _, n := range optionNames {
			if strings.EqualFold(n.name, name) {
				o |= n.option
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown import option %q", name)
		}
	}
	return o, nil
}

// Channels returns the image channel counts allowed by the AllowNComponentImages flags.
func (o Options) Channels() texture.ChannelSet {
	var counts []int
	for k, flag := range []Options{Allow1ComponentImages, Allow2ComponentImages, Allow3ComponentImages, Allow4ComponentImages} {
		if o.Has(flag) {
			counts = append(counts, k+1)
		}
	}
	return texture.Channels(counts...)
}
