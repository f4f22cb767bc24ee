// Package schedule holds the forms a pipeline schedule can take. Schedules
// are descriptive: the orchestrator interprets and runs them.
package schedule

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/siqueiraa/flycs/pkg/schema"
	"github.com/siqueiraa/flycs/pkg/trigger"
)

// Once runs a pipeline a single time after its start time.
const Once = "@once"

// ContinuousExpression names the schedule of event-triggered pipelines.
const ContinuousExpression = "@continuous"

// Environments a per-environment schedule may name.
var Environments = []string{"sbx", "tst", "acc", "prd"}

var (
	ErrInvalidCron        = errors.New("invalid cron expression")
	ErrUnknownEnvironment = errors.New("unknown environment")
)

// Schedule is implemented by Cron, PerEnvironment, Chained and Continuous.
type Schedule interface {
	Validate() error
	// Value is the wire form: a string, a mapping, a list or nil.
	Value() any
	isSchedule()
}

// Cron is a standard five field expression or a descriptor such as @daily,
// @every 1h or @once.
type Cron string

func (Cron) isSchedule() {}

func (c Cron) Validate() error {
	if c == "" {
		return schema.Missing("schedule")
	}
	if _, err := parse(string(c)); err != nil {
		return schema.Wrapf(ErrInvalidCron, "schedule", "%q: %v", string(c), err)
	}
	return nil
}

func (c Cron) Value() any { return string(c) }

// PerEnvironment maps an environment name to a cron expression.
type PerEnvironment map[string]Cron

func (PerEnvironment) isSchedule() {}

func (p PerEnvironment) Validate() error {
	if len(p) == 0 {
		return schema.Missing("schedule")
	}
	for env, c := range p {
		if !isEnvironment(env) {
			return schema.Wrapf(ErrUnknownEnvironment, "schedule."+env, "unknown environment %q, expected one of %v", env, Environments)
		}
		if _, err := parse(string(c)); err != nil {
			return schema.Wrapf(ErrInvalidCron, "schedule."+env, "%q: %v", string(c), err)
		}
	}
	return nil
}

func (p PerEnvironment) Value() any {
	m := make(map[string]any, len(p))
	for env, c := range p {
		m[env] = string(c)
	}
	return m
}

// Get returns the expression for env.
func (p PerEnvironment) Get(env string) (Cron, bool) {
	c, ok := p[env]
	return c, ok
}

// Chained runs after the parent pipelines.
type Chained struct {
	Parents []trigger.Reference
}

func (Chained) isSchedule() {}

func (c Chained) Validate() error {
	if len(c.Parents) == 0 {
		return schema.Missing("schedule")
	}
	for i, p := range c.Parents {
		if err := p.Validate(); err != nil {
			return schema.Prefix(fmt.Sprintf("schedule[%d]", i), err)
		}
	}
	return nil
}

func (c Chained) Value() any { return trigger.ReferencesToList(c.Parents) }

// Continuous is the effective schedule of a pipeline started by a trigger:
// it is always due. It has no wire form.
type Continuous struct{}

func (Continuous) isSchedule()     {}
func (Continuous) Validate() error { return nil }
func (Continuous) Value() any      { return nil }

// FromValue decodes the wire form. A nil value means no schedule.
func FromValue(v any) (Schedule, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		c := Cron(s)
		return c, c.Validate()
	}
	if m, ok := schema.AsMapping(v); ok {
		p := make(PerEnvironment, len(m))
		for env, raw := range m {
			s, ok := raw.(string)
			if !ok {
				return nil, &schema.FieldError{
					Field:  "schedule." + env,
					Reason: "expected string, got " + schema.TypeName(raw),
					Err:    schema.ErrInvalidType,
				}
			}
			p[env] = Cron(s)
		}
		return p, p.Validate()
	}
	if l, ok := v.([]any); ok {
		parents, err := trigger.ReferencesFromList("schedule", l)
		if err != nil {
			return nil, err
		}
		c := Chained{Parents: parents}
		return c, c.Validate()
	}
	return nil, &schema.FieldError{
		Field:  "schedule",
		Reason: "expected string, mapping or list, got " + schema.TypeName(v),
		Err:    schema.ErrInvalidType,
	}
}

func isEnvironment(env string) bool {
	for _, e := range Environments {
		if e == env {
			return true
		}
	}
	return false
}

// once never repeats.
type once struct{}

func (once) Next(time.Time) time.Time { return time.Time{} }

func parse(expr string) (cron.Schedule, error) {
	if expr == Once {
		return once{}, nil
	}
	return cron.ParseStandard(expr)
}

// Period is the interval between the first two activations of expr after
// from. @once has an unbounded period.
func Period(expr string, from time.Time) (time.Duration, error) {
	s, err := parse(expr)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidCron, expr, err)
	}
	first := s.Next(from)
	if first.IsZero() {
		return time.Duration(math.MaxInt64), nil
	}
	second := s.Next(first)
	if second.IsZero() {
		return time.Duration(math.MaxInt64), nil
	}
	return second.Sub(first), nil
}

// Widest returns the expression with the longest period. Ties keep the
// lexically smallest expression so the result does not depend on input
// order.
func Widest(exprs []string, from time.Time) (string, error) {
	if len(exprs) == 0 {
		return "", errors.New("no schedules to compare")
	}
	sorted := append([]string(nil), exprs...)
	sort.Strings(sorted)

	var (
		best       string
		bestPeriod time.Duration = -1
	)
	for _, e := range sorted {
		p, err := Period(e, from)
		if err != nil {
			return "", err
		}
		if p > bestPeriod {
			best, bestPeriod = e, p
		}
	}
	return best, nil
}
