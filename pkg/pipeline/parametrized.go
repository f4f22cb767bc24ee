package pipeline

import (
	"fmt"
	"time"

	"github.com/siqueiraa/flycs/pkg/entity"
	"github.com/siqueiraa/flycs/pkg/param"
	"github.com/siqueiraa/flycs/pkg/schedule"
	"github.com/siqueiraa/flycs/pkg/trigger"
)

// Parametrized is a pipeline template expanded over the cartesian product
// of Parameters.
type Parametrized struct {
	Name       string
	Version    string
	Kind       Kind
	Schedule   schedule.Schedule
	Trigger    trigger.Trigger
	StartTime  time.Time
	Entities   []*entity.Parametrized
	Parameters param.Parameters
	// Customize runs on every rendered pipeline before validation, so the
	// schedule or start time can depend on the combination.
	Customize func(p *Pipeline, c param.Combination) error
}

func (pp *Parametrized) AddEntity(e *entity.Parametrized) {
	pp.Entities = append(pp.Entities, e)
}

// Expand renders one validated pipeline per combination, in expansion order.
// Generated names are not checked for collisions here; registering the
// result does.
func (pp *Parametrized) Expand() ([]*Pipeline, error) {
	combos, err := param.Expand(pp.Parameters)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", pp.Name, err)
	}

	start, defaulted := pp.StartTime, pp.StartTime.IsZero()
	if defaulted {
		start = time.Now().UTC().Truncate(time.Second)
	}

	out := make([]*Pipeline, 0, len(combos))
	for _, c := range combos {
		p, err := pp.render(c, start)
		if err != nil {
			return nil, err
		}
		p.startDefaulted = defaulted
		out = append(out, p)
	}
	return out, nil
}

func (pp *Parametrized) render(c param.Combination, start time.Time) (*Pipeline, error) {
	name, err := param.Name(pp.Name, c)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", pp.Name, err)
	}
	p := &Pipeline{
		Name:      name,
		Version:   pp.Version,
		Kind:      pp.Kind,
		Schedule:  pp.Schedule,
		Trigger:   pp.Trigger,
		StartTime: start,
		Params:    append(param.Combination(nil), c...),
	}
	for _, pe := range pp.Entities {
		e, err := pe.Render(c)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", name, err)
		}
		p.Entities = append(p.Entities, e)
	}
	if pp.Customize != nil {
		if err := pp.Customize(p, c); err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", name, err)
		}
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}
	return p, nil
}
