package converter

import (
	"github.com/binzume/gpumodel/geom"
	"github.com/binzume/gpumodel/gltfutil"
	"github.com/binzume/gpumodel/model"
	"github.com/qmuntal/gltf"
	"go.uber.org/zap"
)

// ConvertLights maps the KHR_lights_punctual lights placed in the scene.
// Lights point down their node's -Z axis.
func (c *gltfToModel) ConvertLights(doc *gltf.Document) model.Lights {
	var lights model.Lights
	for _, inst := range gltfutil.LightInstances(doc) {
		l := inst.Light
		base := model.LightBase{
			Name:      l.Name,
			Color:     l.ColorOrDefault(),
			Intensity: l.IntensityOrDefault(),
			Position:  inst.World.Translation().Array(),
			Direction: inst.World.ApplyToDirection(geom.NewVector3(0, 0, -1)).Normalize().Array(),
		}
		switch l.Type {
		case gltfutil.LightDirectional:
			lights.Directionals = append(lights.Directionals, model.DirectionalLight{LightBase: base})
		case gltfutil.LightPoint:
			lights.Points = append(lights.Points, model.PointLight{LightBase: base, Range: l.RangeOrDefault()})
		case gltfutil.LightSpot:
			lights.Spots = append(lights.Spots, model.SpotLight{
				LightBase:      base,
				Range:          l.RangeOrDefault(),
				InnerConeAngle: l.Spot.InnerConeAngleOrDefault(),
				OuterConeAngle: l.Spot.OuterConeAngleOrDefault(),
			})
		default:
			c.log.Warn("unknown light type", zap.String("light", l.Name), zap.String("type", l.Type))
		}
	}
	return lights
}
