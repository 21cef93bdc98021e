package gltfutil

import (
	"github.com/binzume/gpumodel/geom"
	"github.com/qmuntal/gltf"
)

// NodeMatrix returns the local transform of a node. An explicit matrix wins over TRS.
func NodeMatrix(n *gltf.Node) *geom.Matrix4 {
	if n.Matrix != [16]float32{} && n.Matrix != gltf.DefaultMatrix {
		m := geom.Matrix4(n.Matrix)
		return &m
	}
	s := n.Scale
	if s == [3]float32{} {
		s = [3]float32{1, 1, 1}
	}
	r := n.Rotation
	if r == [4]float32{} {
		r = [4]float32{0, 0, 0, 1}
	}
	return geom.NewTRSMatrix4(
		geom.NewVector3FromArray(n.Translation),
		geom.NewQuaternionFromArray(r).Normalize(),
		geom.NewVector3FromArray(s))
}

// SceneRoots returns the root nodes of the default scene. Documents without scenes
// use every node that is nobody's child.
func SceneRoots(doc *gltf.Document) []uint32 {
	if len(doc.Scenes) > 0 {
		scene := 0
		if doc.Scene != nil && int(*doc.Scene) < len(doc.Scenes) {
			scene = int(*doc.Scene)
		}
		return doc.Scenes[scene].Nodes
	}
	child := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if int(c) < len(child) {
				child[c] = true
			}
		}
	}
	var roots []uint32
	for i := range doc.Nodes {
		if !child[i] {
			roots = append(roots, uint32(i))
		}
	}
	return roots
}

// WalkScene calls fn for every node reachable from the default scene with its world matrix.
func WalkScene(doc *gltf.Document, fn func(index uint32, node *gltf.Node, world *geom.Matrix4)) {
	visited := make([]bool, len(doc.Nodes))
	var walk func(index uint32, parent *geom.Matrix4)
	walk = func(index uint32, parent *geom.Matrix4) {
		if int(index) >= len(doc.Nodes) || visited[index] {
			return
		}
		visited[index] = true
		n := doc.Nodes[index]
		world := parent.Mul(NodeMatrix(n))
		fn(index, n, world)
		for _, c := range n.Children {
			walk(c, world)
		}
	}
	for _, root := range SceneRoots(doc) {
		walk(root, geom.NewMatrix4())
	}
}

// MeshInstances maps each mesh index to the world matrices of the nodes instancing it.
func MeshInstances(doc *gltf.Document) map[uint32][]geom.Matrix4 {
	instances := map[uint32][]geom.Matrix4{}
	WalkScene(doc, func(_ uint32, n *gltf.Node, world *geom.Matrix4) {
		if n.Mesh != nil {
			instances[*n.Mesh] = append(instances[*n.Mesh], *world)
		}
	})
	return instances
}

type LightInstance struct {
	Light *Light
	World geom.Matrix4
}

// LightInstances returns every KHR_lights_punctual light placed in the default scene.
func LightInstances(doc *gltf.Document) []LightInstance {
	lights := DocumentLights(doc)
	var instances []LightInstance
	WalkScene(doc, func(_ uint32, n *gltf.Node, world *geom.Matrix4) {
		if l, ok := NodeLight(n); ok && int(l) < len(lights) {
			instances = append(instances, LightInstance{Light: lights[l], World: *world})
		}
	})
	return instances
}
