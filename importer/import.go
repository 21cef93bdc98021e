// Package importer converts glTF scenes into GPU-ready models.
package importer

import (
	"context"
	"path/filepath"

	"github.com/binzume/gpumodel/converter"
	"github.com/binzume/gpumodel/gltfutil"
	"github.com/binzume/gpumodel/internal/logger"
	"github.com/binzume/gpumodel/internal/parallel"
	"github.com/binzume/gpumodel/model"
	"github.com/binzume/gpumodel/texture"
	"go.uber.org/zap"
)

type importConfig struct {
	parser          gltfutil.Parser
	geometryDecoder converter.GeometryDecoder
	transcoder      texture.Transcoder
	pool            *parallel.WorkerPool
	logger          *zap.Logger
}

type Option func(*importConfig)

// WithParser replaces the document parser.
func WithParser(p gltfutil.Parser) Option {
	return func(c *importConfig) { c.parser = p }
}

// WithGeometryDecoder registers the decoder for compressed primitives.
func WithGeometryDecoder(d converter.GeometryDecoder) Option {
	return func(c *importConfig) { c.geometryDecoder = d }
}

// WithTranscoder registers the Basis Universal transcoder used for KTX2 textures.
func WithTranscoder(t texture.Transcoder) Option {
	return func(c *importConfig) { c.transcoder = t }
}

// WithPool runs the import on p. The pool is not closed.
func WithPool(p *parallel.WorkerPool) Option {
	return func(c *importConfig) { c.pool = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *importConfig) { c.logger = l }
}

func newImportConfig(opts []Option) *importConfig {
	c := &importConfig{}
	for _, opt := range opts {
		opt(c)
	}
	if c.parser == nil {
		c.parser = gltfutil.Load
	}
	if c.logger == nil {
		c.logger = logger.Named("importer")
	}
	return c
}

func (c *importConfig) newConverter(path string, options Options, pool *parallel.WorkerPool, log *zap.Logger) documentConverter {
	images := texture.NewDecoder(&texture.DecoderOptions{
		Channels:   options.Channels(),
		Transcoder: c.transcoder,
		Logger:     log,
	})
	return converter.NewGLTFToModelConverter(&converter.GLTFToModelOption{
		BaseDir:            filepath.Dir(path),
		LoadMeshAttributes: options.Has(LoadMeshAttributes),
		PreferUncompressed: options.Has(PreferUncompressed),
		GeometryDecoder:    c.geometryDecoder,
		TextureDecoder:     images,
		Pool:               pool,
		Logger:             log,
	})
}

// Import loads the glTF file at path and runs the stages selected by options.
// It blocks until every stage has finished.
func Import(path string, options Options) (*model.Model, error) {
	return ImportContext(context.Background(), path, options)
}

// ImportContext is Import with a context and collaborators. Cancelling ctx stops the
// import between stages.
func ImportContext(ctx context.Context, path string, options Options, opts ...Option) (*model.Model, error) {
	return NewFlowGraph(path, options, opts...).Run(ctx)
}
