// Package param expands parameter sets into the combinations used to stamp
// out parametrized pipelines and entities.
package param

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxNameLength bounds names generated from a combination.
const MaxNameLength = 1024

var (
	ErrDuplicateParameter = errors.New("duplicate parameter name")
	ErrNameTooLong        = errors.New("generated name too long")
)

// Parameter is one named dimension with its candidate values.
type Parameter struct {
	Name   string
	Values []string
}

// Parameters keeps the declaration order, which decides the expansion order.
type Parameters []Parameter

// Validate rejects empty and duplicate parameter names.
func (ps Parameters) Validate() error {
	seen := make(map[string]struct{}, len(ps))
	for i, p := range ps {
		if p.Name == "" {
			return fmt.Errorf("parameter %d has no name", i)
		}
		if _, ok := seen[p.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateParameter, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// UnmarshalYAML decodes a mapping of name to value list, keeping key order.
func (ps *Parameters) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: parameters must be a mapping of name to values", node.Line)
	}
	out := make(Parameters, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var p Parameter
		if err := node.Content[i].Decode(&p.Name); err != nil {
			return err
		}
		if err := node.Content[i+1].Decode(&p.Values); err != nil {
			return fmt.Errorf("parameter %s: %w", p.Name, err)
		}
		out = append(out, p)
	}
	*ps = out
	return out.Validate()
}

// MarshalYAML writes the parameters back as an ordered mapping.
func (ps Parameters) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range ps {
		var values yaml.Node
		if err := values.Encode(p.Values); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: p.Name},
			&values,
		)
	}
	return node, nil
}

// ToMap is the unordered wire form used in rendered pipelines.
func (ps Parameters) ToMap() map[string]any {
	m := make(map[string]any, len(ps))
	for _, p := range ps {
		values := make([]any, len(p.Values))
		for i, v := range p.Values {
			values[i] = v
		}
		m[p.Name] = values
	}
	return m
}

// Binding is one parameter fixed to a value.
type Binding struct {
	Name  string
	Value string
}

// Combination binds every parameter to one of its values, in parameter
// order.
type Combination []Binding

func (c Combination) Get(name string) (string, bool) {
	for _, b := range c {
		if b.Name == name {
			return b.Value, true
		}
	}
	return "", false
}

// Values returns the bound values in parameter order.
func (c Combination) Values() []string {
	out := make([]string, len(c))
	for i, b := range c {
		out[i] = b.Value
	}
	return out
}

func (c Combination) Map() map[string]string {
	m := make(map[string]string, len(c))
	for _, b := range c {
		m[b.Name] = b.Value
	}
	return m
}

func (c Combination) String() string {
	parts := make([]string, len(c))
	for i, b := range c {
		parts[i] = b.Name + "=" + b.Value
	}
	return strings.Join(parts, ",")
}

// Expand returns the cartesian product of ps. The first parameter varies
// slowest. No parameters yield a single empty combination; a parameter
// without values yields none.
func Expand(ps Parameters) ([]Combination, error) {
	if err := ps.Validate(); err != nil {
		return nil, err
	}

	total := 1
	for _, p := range ps {
		total *= len(p.Values)
	}
	out := make([]Combination, 0, total)

	idx := make([]int, len(ps))
	for n := 0; n < total; n++ {
		c := make(Combination, len(ps))
		for i, p := range ps {
			c[i] = Binding{Name: p.Name, Value: p.Values[idx[i]]}
		}
		out = append(out, c)

		// odometer, innermost parameter first
		for i := len(ps) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(ps[i].Values) {
				break
			}
			idx[i] = 0
		}
	}
	return out, nil
}

// Name derives the name of a generated instance: base followed by every
// bound value, joined with underscores.
func Name(base string, c Combination) (string, error) {
	parts := append([]string{base}, c.Values()...)
	name := strings.Join(parts, "_")
	if len(name) > MaxNameLength {
		return "", fmt.Errorf("%w: %d characters exceeds %d", ErrNameTooLong, len(name), MaxNameLength)
	}
	return name, nil
}
