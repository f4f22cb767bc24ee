// Package entity groups the assets of a pipeline into a logical dataset and
// pins, per stage, the version of every asset it uses.
package entity

import (
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/siqueiraa/flycs/pkg/asset"
	"github.com/siqueiraa/flycs/pkg/schema"
)

var (
	// ErrConflictingName is returned when a stage already holds an asset with
	// the same name.
	ErrConflictingName = errors.New("conflicting asset name")
	ErrUnknownStage    = errors.New("unknown stage")
	ErrUnboundAsset    = errors.New("no asset matches stage config")
)

// Stage maps the asset names used in one stage to their version.
type Stage struct {
	Name     string
	Versions map[string]string
}

// StageConfig keeps stages in declaration order. In YAML it is either a
// mapping of stage name to versions or a list of {name, versions}.
type StageConfig []Stage

func (sc *StageConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		out := make(StageConfig, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			s := Stage{Name: node.Content[i].Value, Versions: map[string]string{}}
			if err := node.Content[i+1].Decode(&s.Versions); err != nil {
				return fmt.Errorf("stage %s: %w", s.Name, err)
			}
			if s.Versions == nil {
				s.Versions = map[string]string{}
			}
			out = append(out, s)
		}
		*sc = out
	case yaml.SequenceNode:
		var raw []struct {
			Name     string            `yaml:"name"`
			Versions map[string]string `yaml:"versions"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		out := make(StageConfig, 0, len(raw))
		for _, r := range raw {
			if r.Versions == nil {
				r.Versions = map[string]string{}
			}
			out = append(out, Stage{Name: r.Name, Versions: r.Versions})
		}
		*sc = out
	default:
		return fmt.Errorf("line %d: stage_config must be a mapping or a list", node.Line)
	}
	return nil
}

// Bound is an asset attached to one stage of an entity.
type Bound struct {
	Stage string
	Asset asset.Asset
}

type Entity struct {
	Name    string
	Version string
	// Kind overrides the pipeline kind for this entity when set.
	Kind string
	// Location is the warehouse region of the entity datasets.
	Location string
	Stages   StageConfig
	Assets   []Bound
}

func New(name, version string, stages ...Stage) *Entity {
	e := &Entity{Name: name, Version: version}
	for _, s := range stages {
		if s.Versions == nil {
			s.Versions = map[string]string{}
		}
		e.Stages = append(e.Stages, s)
	}
	return e
}

func (e *Entity) Validate() error {
	if e.Name == "" {
		return schema.Missing("name")
	}
	if err := schema.ValidateVersion("version", e.Version); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(e.Stages))
	for i, s := range e.Stages {
		if s.Name == "" {
			return schema.Missing(fmt.Sprintf("stage_config[%d].name", i))
		}
		if _, ok := seen[s.Name]; ok {
			return schema.Invalid("stage_config."+s.Name, "stage declared twice")
		}
		seen[s.Name] = struct{}{}
		for _, name := range sortedKeys(s.Versions) {
			if err := schema.ValidateVersion("stage_config."+s.Name+"."+name, s.Versions[name]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Entity) stage(name string) *Stage {
	for i := range e.Stages {
		if e.Stages[i].Name == name {
			return &e.Stages[i]
		}
	}
	return nil
}

// StageVersions returns the asset versions used in stage.
func (e *Entity) StageVersions(stage string) (map[string]string, error) {
	s := e.stage(stage)
	if s == nil {
		return nil, fmt.Errorf("%w: %s has no stage %s", ErrUnknownStage, e.Name, stage)
	}
	return s.Versions, nil
}

// SetStageVersion pins assetName to version in stage, appending the stage
// when it does not exist yet.
func (e *Entity) SetStageVersion(stage, assetName, version string) {
	s := e.stage(stage)
	if s == nil {
		e.Stages = append(e.Stages, Stage{Name: stage, Versions: map[string]string{}})
		s = &e.Stages[len(e.Stages)-1]
	}
	if s.Versions == nil {
		s.Versions = map[string]string{}
	}
	s.Versions[assetName] = version
}

// AddAsset attaches a to stage and pins its version.
func (e *Entity) AddAsset(stage string, a asset.Asset) error {
	if err := a.Validate(); err != nil {
		return err
	}
	name := a.Base().Name
	for _, b := range e.Assets {
		if b.Stage == stage && b.Asset.Base().Name == name {
			return fmt.Errorf("%w: %s already defined in stage %s of entity %s", ErrConflictingName, name, stage, e.Name)
		}
	}
	e.Assets = append(e.Assets, Bound{Stage: stage, Asset: a})
	e.SetStageVersion(stage, name, a.Base().Version)
	return nil
}

func (e *Entity) AddTransformation(stage string, t *asset.Transformation) error {
	return e.AddAsset(stage, t)
}

func (e *Entity) AddView(stage string, v *asset.View) error {
	return e.AddAsset(stage, v)
}

// AssetsIn returns the assets bound to stage.
func (e *Entity) AssetsIn(stage string) []asset.Asset {
	var out []asset.Asset
	for _, b := range e.Assets {
		if b.Stage == stage {
			out = append(out, b.Asset)
		}
	}
	return out
}

// Bind attaches loaded asset files to the stage config. Every entry of the
// stage config must match a loaded asset by stage, name and version.
func (e *Entity) Bind(located []asset.Located) error {
	for _, s := range e.Stages {
		for _, name := range sortedKeys(s.Versions) {
			if e.bound(s.Name, name) {
				continue
			}
			version := s.Versions[name]
			l, ok := asset.Find(located, s.Name, name, version)
			if !ok {
				return schema.Wrapf(ErrUnboundAsset, "stage_config."+s.Name+"."+name,
					"no asset %s version %s in stage %s", name, version, s.Name)
			}
			e.Assets = append(e.Assets, Bound{Stage: s.Name, Asset: l.Asset})
		}
	}
	return nil
}

func (e *Entity) bound(stage, name string) bool {
	for _, b := range e.Assets {
		if b.Stage == stage && b.Asset.Base().Name == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the stage config. Bound assets are shared.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Stages = make(StageConfig, len(e.Stages))
	for i, s := range e.Stages {
		versions := make(map[string]string, len(s.Versions))
		for k, v := range s.Versions {
			versions[k] = v
		}
		c.Stages[i] = Stage{Name: s.Name, Versions: versions}
	}
	c.Assets = append([]Bound(nil), e.Assets...)
	return &c
}

func (e *Entity) ToMap() map[string]any {
	stages := make([]any, 0, len(e.Stages))
	for _, s := range e.Stages {
		versions := make(map[string]any, len(s.Versions))
		for k, v := range s.Versions {
			versions[k] = v
		}
		stages = append(stages, map[string]any{"name": s.Name, "versions": versions})
	}
	m := map[string]any{
		"name":         e.Name,
		"version":      e.Version,
		"stage_config": stages,
	}
	if e.Kind != "" {
		m["kind"] = e.Kind
	}
	if e.Location != "" {
		m["location"] = e.Location
	}
	if len(e.Assets) > 0 {
		assets := make([]any, 0, len(e.Assets))
		for _, b := range e.Assets {
			assets = append(assets, map[string]any{"stage": b.Stage, "asset": b.Asset.ToMap()})
		}
		m["assets"] = assets
	}
	return m
}

// FromMap decodes the ToMap form. stage_config may also be a mapping, in
// which case stages are ordered by name.
func FromMap(m schema.Mapping) (*Entity, error) {
	var (
		e   = &Entity{}
		err error
	)
	if e.Name, err = m.String("name"); err != nil {
		return nil, err
	}
	if e.Version, err = m.String("version"); err != nil {
		return nil, err
	}
	if e.Kind, err = m.OptionalString("kind"); err != nil {
		return nil, err
	}
	if e.Location, err = m.OptionalString("location"); err != nil {
		return nil, err
	}
	if e.Stages, err = decodeStages(m); err != nil {
		return nil, err
	}

	bound, err := m.MappingList("assets")
	if err != nil {
		return nil, err
	}
	for i, b := range bound {
		field := fmt.Sprintf("assets[%d]", i)
		stage, err := b.String("stage")
		if err != nil {
			return nil, schema.Prefix(field, err)
		}
		raw, err := b.Mapping("asset")
		if err != nil {
			return nil, schema.Prefix(field, err)
		}
		if raw == nil {
			return nil, schema.Missing(field + ".asset")
		}
		a, err := asset.FromMap(raw, "")
		if err != nil {
			return nil, schema.Prefix(field, err)
		}
		e.Assets = append(e.Assets, Bound{Stage: stage, Asset: a})
	}
	return e, e.Validate()
}

func decodeStages(m schema.Mapping) (StageConfig, error) {
	if sub, err := m.Mapping("stage_config"); err == nil {
		if sub == nil {
			return nil, nil
		}
		var out StageConfig
		for _, name := range sortedKeys(sub) {
			versions, err := sub.StringMap(name)
			if err != nil {
				return nil, schema.Prefix("stage_config", err)
			}
			if versions == nil {
				versions = map[string]string{}
			}
			out = append(out, Stage{Name: name, Versions: versions})
		}
		return out, nil
	}

	list, err := m.MappingList("stage_config")
	if err != nil {
		return nil, err
	}
	var out StageConfig
	for i, raw := range list {
		field := fmt.Sprintf("stage_config[%d]", i)
		name, err := raw.String("name")
		if err != nil {
			return nil, schema.Prefix(field, err)
		}
		versions, err := raw.StringMap("versions")
		if err != nil {
			return nil, schema.Prefix(field, err)
		}
		if versions == nil {
			versions = map[string]string{}
		}
		out = append(out, Stage{Name: name, Versions: versions})
	}
	return out, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
