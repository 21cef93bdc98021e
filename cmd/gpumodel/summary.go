package main

import (
	"fmt"
	"io"

	"github.com/binzume/gpumodel/model"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v2"
)

type lodSummary struct {
	Triangles int     `yaml:"triangles"`
	Error     float32 `yaml:"error"`
	Meshlets  int     `yaml:"meshlets"`
}

type meshSummary struct {
	Name      string       `yaml:"name"`
	Vertices  int          `yaml:"vertices"`
	Instances int          `yaml:"instances"`
	Material  int          `yaml:"material"`
	LODs      []lodSummary `yaml:"lods"`
}

type textureSummary struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Mips   int    `yaml:"mips"`
	Format string `yaml:"format"`
	Bytes  int    `yaml:"bytes"`
}

type materialSummary struct {
	Name     string           `yaml:"name"`
	Textures []textureSummary `yaml:"textures"`
}

type summary struct {
	Input     string            `yaml:"input"`
	Meshes    []meshSummary     `yaml:"meshes"`
	Materials []materialSummary `yaml:"materials"`
	Lights    map[string]int    `yaml:"lights"`
}

func summarize(input string, m *model.Model) *summary {
	s := &summary{
		Input: input,
		Lights: map[string]int{
			"directional": len(m.Lights.Directionals),
			"point":       len(m.Lights.Points),
			"spot":        len(m.Lights.Spots),
		},
	}
	for _, mesh := range m.Meshes {
		ms := meshSummary{
			Name:      mesh.Name,
			Vertices:  len(mesh.Positions),
			Instances: len(mesh.Transforms),
			Material:  mesh.Material,
		}
		for i, lod := range mesh.LODs {
			ms.LODs = append(ms.LODs, lodSummary{
				Triangles: mesh.TriangleCount(i),
				Error:     lod.Error,
				Meshlets:  lod.Meshlets.Len(),
			})
		}
		s.Meshes = append(s.Meshes, ms)
	}
	for _, mat := range m.Materials {
		sm := materialSummary{Name: mat.Name}
		for _, tex := range mat.Textures {
			sm.Textures = append(sm.Textures, textureSummary{
				Name:   tex.Name,
				Type:   tex.Type.String(),
				Width:  tex.Image.Width,
				Height: tex.Image.Height,
				Mips:   tex.Image.MipCount(),
				Format: fmt.Sprint(tex.Image.Format),
				Bytes:  len(tex.Image.Pixels),
			})
		}
		s.Materials = append(s.Materials, sm)
	}
	return s
}

func (s *summary) writeYAML(w io.Writer) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (s *summary) writeText(w io.Writer) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "%s\n", s.Input)
	for _, m := range s.Meshes {
		p.Fprintf(w, "mesh %q: %d vertices, %d instances, material %d\n", m.Name, m.Vertices, m.Instances, m.Material)
		for i, lod := range m.LODs {
			p.Fprintf(w, "  lod %d: %d triangles, %d meshlets, error %.4f\n", i, lod.Triangles, lod.Meshlets, lod.Error)
		}
	}
	for _, m := range s.Materials {
		p.Fprintf(w, "material %q: %d textures\n", m.Name, len(m.Textures))
		for _, t := range m.Textures {
			p.Fprintf(w, "  %s %q: %dx%d, %d mips, format %s, %d bytes\n", t.Type, t.Name, t.Width, t.Height, t.Mips, t.Format, t.Bytes)
		}
	}
	p.Fprintf(w, "lights: %d directional, %d point, %d spot\n", s.Lights["directional"], s.Lights["point"], s.Lights["spot"])
}
