package model

type LightBase struct {
	Name      string
	Color     [3]float32
	Intensity float32
	// World space, taken from the node instancing the light.
	Position  [3]float32
	Direction [3]float32
}

type DirectionalLight struct {
	LightBase
}

type PointLight struct {
	LightBase
	Range float32
}

type SpotLight struct {
	LightBase
	Range          float32
	InnerConeAngle float32
	OuterConeAngle float32
}

type Lights struct {
	Directionals []DirectionalLight
	Points       []PointLight
	Spots        []SpotLight
}

func (l *Lights) Len() int {
	return len(l.Directionals) + len(l.Points) + len(l.Spots)
}
