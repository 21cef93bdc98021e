package converter

import (
	"errors"

	"github.com/binzume/gpumodel/gltfutil"
	"github.com/binzume/gpumodel/internal/logger"
	"github.com/binzume/gpumodel/internal/parallel"
	"github.com/binzume/gpumodel/model"
	"github.com/binzume/gpumodel/texture"
	"github.com/qmuntal/gltf"
	"go.uber.org/zap"
)

var (
	ErrNoIndices         = errors.New("primitive has no indices")
	ErrNoPositions       = errors.New("primitive has no positions")
	ErrAttributeMismatch = model.ErrAttributeMismatch
	ErrUnsupportedMode   = errors.New("primitive is not a triangle list")
	ErrNoDecoder         = errors.New("no geometry decoder registered")
)

type GLTFToModelOption struct {
	// BaseDir resolves relative image URIs.
	BaseDir string

	// LoadMeshAttributes also reads tangents and vertex colors.
	LoadMeshAttributes bool
	PreferUncompressed bool

	GeometryDecoder GeometryDecoder
	TextureDecoder  *texture.Decoder
	Pool            *parallel.WorkerPool
	Logger          *zap.Logger
}

type gltfToModel struct {
	options *GLTFToModelOption
	pool    *parallel.WorkerPool
	images  *texture.Decoder
	log     *zap.Logger
}

// NewGLTFToModelConverter returns a converter. A nil Pool runs every task on the caller.
func NewGLTFToModelConverter(options *GLTFToModelOption) *gltfToModel {
	if options == nil {
		options = &GLTFToModelOption{}
	}
	c := &gltfToModel{
		options: options,
		pool:    options.Pool,
		images:  options.TextureDecoder,
		log:     options.Logger,
	}
	if c.log == nil {
		c.log = logger.Named("converter")
	}
	if c.images == nil {
		c.images = texture.NewDecoder(&texture.DecoderOptions{Logger: c.log})
	}
	return c
}

func (c *gltfToModel) forEach(n int, fn func(i int)) {
	if c.pool == nil {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	c.pool.ForEach(n, fn)
}

func (c *gltfToModel) executeAll(work []func()) {
	if c.pool == nil {
		for _, w := range work {
			w()
		}
		return
	}
	c.pool.ExecuteAll(work)
}

// Convert maps the whole document without any mesh processing.
func (c *gltfToModel) Convert(doc *gltf.Document) (*model.Model, error) {
	m := model.NewModel()
	var err error
	c.executeAll([]func(){
		func() { m.Meshes = c.ConvertMeshes(doc) },
		func() { m.Materials, err = c.ConvertMaterials(doc) },
		func() { m.Lights = c.ConvertLights(doc) },
	})
	return m, err
}

type primitiveRef struct {
	mesh      int
	primitive int
}

// ConvertMeshes extracts every triangle primitive of the document as a separate mesh.
// Failed primitives are logged and omitted.
func (c *gltfToModel) ConvertMeshes(doc *gltf.Document) []*model.Mesh {
	var refs []primitiveRef
	for i, m := range doc.Meshes {
		for j := range m.Primitives {
			refs = append(refs, primitiveRef{i, j})
		}
	}
	instances := gltfutil.MeshInstances(doc)

	results := make([]*model.Mesh, len(refs))
	c.forEach(len(refs), func(i int) {
		ref := refs[i]
		mesh, err := c.ConvertPrimitive(doc, ref.mesh, ref.primitive)
		if err != nil {
			c.log.Warn("primitive skipped",
				zap.String("mesh", doc.Meshes[ref.mesh].Name),
				zap.Int("index", ref.mesh),
				zap.Int("primitive", ref.primitive),
				zap.Error(err))
			return
		}
		mesh.Transforms = instances[uint32(ref.mesh)]
		results[i] = mesh
	})

	meshes := make([]*model.Mesh, 0, len(results))
	for _, m := range results {
		if m != nil {
			meshes = append(meshes, m)
		}
	}
	return meshes
}
