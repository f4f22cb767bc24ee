// Package pipeline models a versioned pipeline: its entities, its schedule
// or trigger and its start time. Parametrized pipelines expand into one
// pipeline per parameter combination.
package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/siqueiraa/flycs/pkg/asset"
	"github.com/siqueiraa/flycs/pkg/entity"
	"github.com/siqueiraa/flycs/pkg/param"
	"github.com/siqueiraa/flycs/pkg/schedule"
	"github.com/siqueiraa/flycs/pkg/schema"
	"github.com/siqueiraa/flycs/pkg/trigger"
)

type Kind string

const (
	KindVanilla       Kind = "vanilla"
	KindDeltaTracking Kind = "delta_tracking"
	KindDataVault     Kind = "data_vault"
)

func (k Kind) Valid() bool {
	switch k {
	case KindVanilla, KindDeltaTracking, KindDataVault:
		return true
	}
	return false
}

// StartTimeLayout is the wire format of start_time. Offsets are always
// +0000.
const StartTimeLayout = "2006-01-02T15:04:05-0700"

var (
	ErrUnknownKind = errors.New("unknown pipeline kind")
	// ErrContinuousWithoutTrigger is returned for a continuous schedule on a
	// pipeline nothing triggers.
	ErrContinuousWithoutTrigger = errors.New("a continuous schedule needs a trigger")
	ErrDuplicateEntity          = errors.New("duplicate entity name")
)

type Pipeline struct {
	Name    string
	Version string
	Kind    Kind
	// Schedule is nil for a manually started pipeline and Continuous for a
	// triggered one that declares none. A schedule declared next to a
	// trigger is kept, but the trigger decides when the pipeline runs.
	Schedule  schedule.Schedule
	Trigger   trigger.Trigger
	StartTime time.Time
	Entities  []*entity.Entity
	// Params holds the combination a parametrized pipeline was rendered with.
	Params param.Combination

	startDefaulted bool
}

type Option func(*Pipeline)

func WithKind(k Kind) Option { return func(p *Pipeline) { p.Kind = k } }

func WithSchedule(s schedule.Schedule) Option { return func(p *Pipeline) { p.Schedule = s } }

func WithTrigger(t trigger.Trigger) Option { return func(p *Pipeline) { p.Trigger = t } }

// WithStartTime sets the first processing time. It must be expressed in UTC.
func WithStartTime(t time.Time) Option { return func(p *Pipeline) { p.StartTime = t } }

func WithEntities(es ...*entity.Entity) Option {
	return func(p *Pipeline) { p.Entities = append(p.Entities, es...) }
}

func WithParams(c param.Combination) Option { return func(p *Pipeline) { p.Params = c } }

// New builds and validates a pipeline. Kind defaults to vanilla and the
// start time to the current second.
func New(name, version string, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{Name: name, Version: version}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) normalize() error {
	if p.Kind == "" {
		p.Kind = KindVanilla
	}
	if p.StartTime.IsZero() {
		p.StartTime = time.Now().UTC().Truncate(time.Second)
		p.startDefaulted = true
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("pipeline %s: %w", p.Name, err)
	}
	p.StartTime = p.StartTime.UTC()
	if p.Trigger != nil && p.Schedule == nil {
		p.Schedule = schedule.Continuous{}
	}
	return nil
}

func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return schema.Missing("name")
	}
	if err := schema.ValidateVersion("version", p.Version); err != nil {
		return err
	}
	if !p.Kind.Valid() {
		return schema.Wrapf(ErrUnknownKind, "kind", "unknown pipeline kind %q", p.Kind)
	}
	if _, offset := p.StartTime.Zone(); offset != 0 {
		return schema.Invalid("start_time", "%s is not expressed in UTC", p.StartTime.Format(StartTimeLayout))
	}

	if p.Trigger != nil {
		if err := p.Trigger.Validate(); err != nil {
			return schema.Prefix("trigger", err)
		}
	} else if _, continuous := p.Schedule.(schedule.Continuous); continuous {
		return schema.Wrapf(ErrContinuousWithoutTrigger, "schedule", "continuous schedule without a trigger")
	}
	if p.Schedule != nil {
		if err := p.Schedule.Validate(); err != nil {
			return err
		}
	}

	seen := make(map[string]struct{}, len(p.Entities))
	for i, e := range p.Entities {
		if err := validateEntity(e); err != nil {
			return schema.Prefix(fmt.Sprintf("entities[%d]", i), err)
		}
		if _, ok := seen[e.Name]; ok {
			return schema.Wrapf(ErrDuplicateEntity, fmt.Sprintf("entities[%d]", i), "entity %s declared twice", e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	return nil
}

func validateEntity(e *entity.Entity) error {
	if e == nil {
		return schema.Missing("entity")
	}
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Kind != "" && !Kind(e.Kind).Valid() {
		return schema.Wrapf(ErrUnknownKind, "kind", "unknown entity kind %q", e.Kind)
	}
	return nil
}

// AddEntity validates e and appends it.
func (p *Pipeline) AddEntity(e *entity.Entity) error {
	if err := validateEntity(e); err != nil {
		return err
	}
	for _, existing := range p.Entities {
		if existing.Name == e.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateEntity, e.Name)
		}
	}
	p.Entities = append(p.Entities, e)
	return nil
}

// EntityKind is the kind applied to e: its own override or the pipeline's.
func (p *Pipeline) EntityKind(e *entity.Entity) Kind {
	if e.Kind != "" {
		return Kind(e.Kind)
	}
	return p.Kind
}

func (p *Pipeline) Ref() trigger.Reference {
	return trigger.Reference{Name: p.Name, Version: p.Version}
}

// Bind attaches loaded asset files to every entity.
func (p *Pipeline) Bind(located []asset.Located) error {
	for _, e := range p.Entities {
		if err := e.Bind(located); err != nil {
			return fmt.Errorf("pipeline %s entity %s: %w", p.Name, e.Name, err)
		}
	}
	return nil
}

func (p *Pipeline) ToMap() map[string]any {
	var sched, trig any
	if p.Schedule != nil {
		sched = p.Schedule.Value()
	}
	if p.Trigger != nil {
		trig = p.Trigger.ToMap()
	}
	params := make(map[string]any, len(p.Params))
	for _, b := range p.Params {
		params[b.Name] = b.Value
	}
	entities := make([]any, 0, len(p.Entities))
	for _, e := range p.Entities {
		entities = append(entities, e.ToMap())
	}
	return map[string]any{
		"name":       p.Name,
		"version":    p.Version,
		"schedule":   sched,
		"start_time": p.StartTime.UTC().Format(StartTimeLayout),
		"kind":       string(p.Kind),
		"trigger":    trig,
		"params":     params,
		"entities":   entities,
	}
}

// StartTimeDefaulted reports whether the start time was filled in at
// construction rather than declared.
func (p *Pipeline) StartTimeDefaulted() bool { return p.startDefaulted }

// FromMap decodes the ToMap form. Params come back ordered by name.
func FromMap(m schema.Mapping) (*Pipeline, error) {
	var (
		p   = &Pipeline{}
		err error
	)
	if p.Name, err = m.String("name"); err != nil {
		return nil, err
	}
	if p.Version, err = m.String("version"); err != nil {
		return nil, err
	}
	kind, err := m.OptionalString("kind")
	if err != nil {
		return nil, err
	}
	p.Kind = Kind(kind)

	if p.Schedule, err = schedule.FromValue(m["schedule"]); err != nil {
		return nil, err
	}
	trig, err := m.Mapping("trigger")
	if err != nil {
		return nil, err
	}
	if trig != nil {
		if p.Trigger, err = trigger.FromMap(trig); err != nil {
			return nil, schema.Prefix("trigger", err)
		}
	}

	start, err := m.OptionalString("start_time")
	if err != nil {
		return nil, err
	}
	if start != "" {
		if p.StartTime, err = ParseStartTime(start); err != nil {
			return nil, err
		}
	}

	params, err := m.StringMap("params")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		p.Params = append(p.Params, param.Binding{Name: k, Value: params[k]})
	}

	raw, err := m.MappingList("entities")
	if err != nil {
		return nil, err
	}
	for i, r := range raw {
		e, err := entity.FromMap(r)
		if err != nil {
			return nil, schema.Prefix(fmt.Sprintf("entities[%d]", i), err)
		}
		p.Entities = append(p.Entities, e)
	}

	if err := p.normalize(); err != nil {
		return nil, err
	}
	return p, nil
}

// ParseStartTime accepts StartTimeLayout and RFC 3339.
func ParseStartTime(s string) (time.Time, error) {
	t, err := time.Parse(StartTimeLayout, s)
	if err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, schema.Invalid("start_time", "%q does not match %s", s, StartTimeLayout)
}
