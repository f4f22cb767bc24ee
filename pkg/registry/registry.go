// Package registry is the discoverable collection of pipelines handed to the
// orchestrator.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/siqueiraa/flycs/pkg/pipeline"
	"github.com/siqueiraa/flycs/pkg/schedule"
	"github.com/siqueiraa/flycs/pkg/trigger"
)

var (
	ErrDuplicate = errors.New("pipeline already registered")
	ErrNotFound  = errors.New("pipeline not registered")
	ErrCycle     = errors.New("pipeline dependency cycle")
)

// Manual is the resolved schedule of a pipeline without schedule or trigger.
const Manual = ""

// Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	pipelines []*pipeline.Pipeline
	byName    map[string]*pipeline.Pipeline
}

func New() *Registry {
	return &Registry{byName: make(map[string]*pipeline.Pipeline)}
}

// Register adds pipelines in order. Names must be unique; nothing is added
// when one of them collides.
func (r *Registry) Register(ps ...*pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make(map[string]struct{}, len(ps))
	for _, p := range ps {
		if p == nil {
			return errors.New("cannot register a nil pipeline")
		}
		_, exists := r.byName[p.Name]
		_, inBatch := batch[p.Name]
		if exists || inBatch {
			return fmt.Errorf("%w: %s", ErrDuplicate, p.Name)
		}
		batch[p.Name] = struct{}{}
	}
	for _, p := range ps {
		r.pipelines = append(r.pipelines, p)
		r.byName[p.Name] = p
		log.Debug().Str("component", "registry").Str("pipeline", p.Name).Str("version", p.Version).Msg("Pipeline registered")
	}
	return nil
}

// RegisterParametrized expands pp and registers every instance.
func (r *Registry) RegisterParametrized(pp *pipeline.Parametrized) error {
	ps, err := pp.Expand()
	if err != nil {
		return err
	}
	return r.Register(ps...)
}

// Pipelines returns the registered pipelines in registration order.
func (r *Registry) Pipelines() []*pipeline.Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*pipeline.Pipeline(nil), r.pipelines...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pipelines)
}

// Lookup finds a pipeline by reference. An empty version matches any.
func (r *Registry) Lookup(ref trigger.Reference) (*pipeline.Pipeline, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[ref.Name]
	if !ok || (ref.Version != "" && p.Version != ref.Version) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return p, nil
}

// ResolveSchedule describes when p runs in env: a cron expression, the
// continuous marker for triggered pipelines, or Manual. Chained schedules
// and pipeline dependency triggers resolve to the widest schedule of their
// parents.
func (r *Registry) ResolveSchedule(p *pipeline.Pipeline, env string, from time.Time) (string, error) {
	return r.resolve(p, env, from, map[string]bool{})
}

func (r *Registry) resolve(p *pipeline.Pipeline, env string, from time.Time, visiting map[string]bool) (string, error) {
	if visiting[p.Name] {
		return "", fmt.Errorf("%w: %s", ErrCycle, p.Name)
	}
	visiting[p.Name] = true
	defer delete(visiting, p.Name)

	if dep, ok := p.Trigger.(trigger.PipelineDependency); ok {
		return r.widestParent(dep.Parents, env, from, visiting)
	}
	if p.Trigger != nil {
		return schedule.ContinuousExpression, nil
	}

	switch s := p.Schedule.(type) {
	case nil:
		return Manual, nil
	case schedule.Continuous:
		return schedule.ContinuousExpression, nil
	case schedule.Cron:
		return string(s), nil
	case schedule.PerEnvironment:
		c, ok := s.Get(env)
		if !ok {
			return Manual, nil
		}
		return string(c), nil
	case schedule.Chained:
		return r.widestParent(s.Parents, env, from, visiting)
	default:
		return "", fmt.Errorf("pipeline %s: unsupported schedule %T", p.Name, s)
	}
}

func (r *Registry) widestParent(parents []trigger.Reference, env string, from time.Time, visiting map[string]bool) (string, error) {
	var exprs []string
	for _, ref := range parents {
		parent, err := r.Lookup(ref)
		if err != nil {
			return "", err
		}
		expr, err := r.resolve(parent, env, from, visiting)
		if err != nil {
			return "", err
		}
		switch expr {
		case Manual:
			continue
		case schedule.ContinuousExpression:
			// an always-due parent does not widen the window
			continue
		}
		exprs = append(exprs, expr)
	}
	if len(exprs) == 0 {
		return Manual, nil
	}
	return schedule.Widest(exprs, from)
}

// Schedules resolves every registered pipeline for each environment.
func (r *Registry) Schedules(envs []string, from time.Time) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string, len(envs))
	for _, env := range envs {
		perEnv := make(map[string]string)
		for _, p := range r.Pipelines() {
			expr, err := r.ResolveSchedule(p, env, from)
			if err != nil {
				return nil, err
			}
			perEnv[p.Name] = expr
		}
		out[env] = perEnv
	}
	return out, nil
}
