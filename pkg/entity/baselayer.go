package entity

// Fixed stages of a base layer entity, in execution order.
const (
	StageDatalake      = "datalake"
	StagePreamble      = "preamble"
	StageStaging       = "staging"
	StageDataWarehouse = "data_warehouse"
	StageDataMart      = "data_mart"
)

var BaseLayerStages = []string{StageDatalake, StagePreamble, StageStaging, StageDataWarehouse, StageDataMart}

// BaseLayerVersions lists the asset versions per fixed stage. Nil maps
// become empty stages.
type BaseLayerVersions struct {
	Datalake      map[string]string
	Preamble      map[string]string
	Staging       map[string]string
	DataWarehouse map[string]string
	DataMart      map[string]string
}

func (v BaseLayerVersions) forStage(stage string) map[string]string {
	var m map[string]string
	switch stage {
	case StageDatalake:
		m = v.Datalake
	case StagePreamble:
		m = v.Preamble
	case StageStaging:
		m = v.Staging
	case StageDataWarehouse:
		m = v.DataWarehouse
	case StageDataMart:
		m = v.DataMart
	}
	out := make(map[string]string, len(m))
	for k, ver := range m {
		out[k] = ver
	}
	return out
}

// NewBaseLayer builds an entity with the five fixed stages.
func NewBaseLayer(name, version string, versions BaseLayerVersions) *Entity {
	e := &Entity{Name: name, Version: version}
	for _, stage := range BaseLayerStages {
		e.Stages = append(e.Stages, Stage{Name: stage, Versions: versions.forStage(stage)})
	}
	return e
}
