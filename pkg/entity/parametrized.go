package entity

import (
	"fmt"

	"github.com/siqueiraa/flycs/pkg/param"
)

// Parametrized is an entity template rendered once per parameter
// combination.
type Parametrized struct {
	Template *Entity
	// StageVersionsFunc, when set, replaces the versions of a stage for a
	// combination. Returning nil keeps the template versions.
	StageVersionsFunc func(stage string, c param.Combination) map[string]string
	// Customize runs on every rendered entity before validation.
	Customize func(e *Entity, c param.Combination) error
}

func NewParametrized(template *Entity) *Parametrized {
	return &Parametrized{Template: template}
}

// NewParametrizedBaseLayer is a parametrized entity over the fixed stages.
func NewParametrizedBaseLayer(name, version string, versions BaseLayerVersions) *Parametrized {
	return &Parametrized{Template: NewBaseLayer(name, version, versions)}
}

// Render produces the concrete entity for c, named after the template
// followed by every bound value.
func (p *Parametrized) Render(c param.Combination) (*Entity, error) {
	if p.Template == nil {
		return nil, fmt.Errorf("parametrized entity has no template")
	}
	e := p.Template.Clone()

	name, err := param.Name(p.Template.Name, c)
	if err != nil {
		return nil, fmt.Errorf("entity %s: %w", p.Template.Name, err)
	}
	e.Name = name

	if p.StageVersionsFunc != nil {
		for i, s := range e.Stages {
			if v := p.StageVersionsFunc(s.Name, c); v != nil {
				e.Stages[i].Versions = v
			}
		}
	}
	if p.Customize != nil {
		if err := p.Customize(e, c); err != nil {
			return nil, fmt.Errorf("entity %s: %w", e.Name, err)
		}
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("entity %s: %w", e.Name, err)
	}
	return e, nil
}

// Expand renders one entity per combination of ps.
func (p *Parametrized) Expand(ps param.Parameters) ([]*Entity, error) {
	combos, err := param.Expand(ps)
	if err != nil {
		return nil, err
	}
	out := make([]*Entity, 0, len(combos))
	for _, c := range combos {
		e, err := p.Render(c)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
