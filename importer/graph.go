package importer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/binzume/gpumodel/converter"
	"github.com/binzume/gpumodel/internal/parallel"
	"github.com/binzume/gpumodel/model"
	"github.com/qmuntal/gltf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrParse = errors.New("importer: parse")

// State is the progress of the graph or one of its branches.
type State int32

const (
	StateUnstarted State = iota
	StateParsing
	StateFailed
	StateFannedOut
	StateMeshesLoaded
	StateMeshesOptimized
	StateLODsGenerated
	StateMeshletsGenerated
	StateMaterialsLoaded
	StateLightsLoaded
	StateDone
)

var stateNames = [...]string{
	"unstarted",
	"parsing",
	"failed",
	"fanned-out",
	"meshes-loaded",
	"meshes-optimized",
	"lods-generated",
	"meshlets-generated",
	"materials-loaded",
	"lights-loaded",
	"done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// GraphState is a snapshot of the graph and of its three branches.
type GraphState struct {
	Graph     State
	Meshes    State
	Materials State
	Lights    State
}

// FlowGraph runs one import: a parse node whose document fans out to the meshes,
// materials and lights branches. A FlowGraph runs once.
type FlowGraph struct {
	path    string
	options Options
	config  *importConfig

	graph     atomic.Int32
	meshes    atomic.Int32
	materials atomic.Int32
	lights    atomic.Int32
}

func NewFlowGraph(path string, options Options, opts ...Option) *FlowGraph {
	return &FlowGraph{path: path, options: options, config: newImportConfig(opts)}
}

func (g *FlowGraph) State() GraphState {
	return GraphState{
		Graph:     State(g.graph.Load()),
		Meshes:    State(g.meshes.Load()),
		Materials: State(g.materials.Load()),
		Lights:    State(g.lights.Load()),
	}
}

func (g *FlowGraph) set(s *atomic.Int32, state State) {
	s.Store(int32(state))
}

func (g *FlowGraph) fail(err error) error {
	g.set(&g.graph, StateFailed)
	return err
}

// Run drives the graph to completion and returns the model.
func (g *FlowGraph) Run(ctx context.Context) (*model.Model, error) {
	if !g.graph.CompareAndSwap(int32(StateUnstarted), int32(StateParsing)) {
		return nil, errors.New("importer: graph already started")
	}
	cfg := g.config
	log := cfg.logger.With(zap.String("path", g.path))

	if err := ctx.Err(); err != nil {
		return nil, g.fail(err)
	}
	doc, err := cfg.parser(g.path)
	if err != nil {
		return nil, g.fail(fmt.Errorf("%w %s: %w", ErrParse, g.path, err))
	}

	pool := cfg.pool
	if pool == nil {
		pool = parallel.NewWorkerPool(0)
		defer pool.Close()
	} else if !pool.IsRunning() {
		log.Warn("worker pool is closed, stages run on the calling goroutines")
	}
	conv := cfg.newConverter(g.path, g.options, pool, log)

	result := model.NewModel()
	g.set(&g.graph, StateFannedOut)
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		meshes, err := g.meshBranch(ctx, doc, conv, pool, log)
		result.Meshes = meshes
		return err
	})
	eg.Go(func() error {
		materials, err := g.materialBranch(doc, conv, log)
		result.Materials = materials
		return err
	})
	eg.Go(func() error {
		result.Lights = conv.ConvertLights(doc)
		g.set(&g.lights, StateLightsLoaded)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, g.fail(err)
	}
	g.set(&g.graph, StateDone)
	log.Info("import finished",
		zap.Int("meshes", len(result.Meshes)),
		zap.Int("materials", len(result.Materials)),
		zap.Int("lights", result.Lights.Len()))
	return result, nil
}

type documentConverter interface {
	ConvertMeshes(doc *gltf.Document) []*model.Mesh
	ConvertMaterials(doc *gltf.Document) ([]*model.MaterialData, error)
	ConvertLights(doc *gltf.Document) model.Lights
}

func (g *FlowGraph) meshBranch(ctx context.Context, doc *gltf.Document, conv documentConverter, pool *parallel.WorkerPool, log *zap.Logger) ([]*model.Mesh, error) {
	meshes := conv.ConvertMeshes(doc)
	g.set(&g.meshes, StateMeshesLoaded)
	log.Debug("meshes loaded", zap.Int("meshes", len(meshes)))

	if g.options.Has(OptimizeMeshes) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pool.ForEach(len(meshes), func(i int) {
			OptimizeDataLayout(meshes[i])
		})
	}
	g.set(&g.meshes, StateMeshesOptimized)

	if g.options.Has(GenerateDiscreteLODs) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pool.ForEach(len(meshes), func(i int) {
			GenerateLODs(meshes[i], pool, log)
		})
	}
	g.set(&g.meshes, StateLODsGenerated)

	if g.options.Has(GenerateMeshlets) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var jobs [][2]int
		for i, m := range meshes {
			for lod := range m.LODs {
				jobs = append(jobs, [2]int{i, lod})
			}
		}
		pool.ForEach(len(jobs), func(i int) {
			GenerateLODMeshlets(meshes[jobs[i][0]], jobs[i][1], log)
		})
	}
	g.set(&g.meshes, StateMeshletsGenerated)

	valid := meshes[:0]
	for _, m := range meshes {
		if err := m.Validate(); err != nil {
			log.Warn("mesh dropped", zap.String("mesh", m.Name), zap.Error(err))
			continue
		}
		valid = append(valid, m)
	}
	return valid, nil
}

func (g *FlowGraph) materialBranch(doc *gltf.Document, conv documentConverter, log *zap.Logger) ([]*model.MaterialData, error) {
	if !g.options.Has(LoadMaterials) {
		g.set(&g.materials, StateMaterialsLoaded)
		return nil, nil
	}
	materials, err := conv.ConvertMaterials(doc)
	if err != nil {
		if g.options.Has(StrictTextures) && converter.IsUnsupportedImage(err) {
			return nil, fmt.Errorf("importer: %w", err)
		}
		log.Debug("materials loaded with missing textures", zap.Error(err))
	}
	g.set(&g.materials, StateMaterialsLoaded)
	return materials, nil
}
