package schema

import (
	"fmt"
	"math"
)

// Mapping is a raw record decoded from YAML or JSON, keyed by field name.
type Mapping map[string]any

// AsMapping accepts the map shapes produced by yaml.v3 and encoding/json.
func AsMapping(v any) (Mapping, bool) {
	switch m := v.(type) {
	case Mapping:
		return m, true
	case map[string]any:
		return Mapping(m), true
	case map[any]any:
		out := make(Mapping, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// Has reports whether key is present with a non-null value.
func (m Mapping) Has(key string) bool {
	v, ok := m[key]
	return ok && v != nil
}

func typeError(key, want string, got any) error {
	return &FieldError{
		Field:  key,
		Reason: fmt.Sprintf("expected %s, got %s", want, TypeName(got)),
		Err:    ErrInvalidType,
	}
}

// String returns a required, non-empty string field.
func (m Mapping) String(key string) (string, error) {
	s, err := m.OptionalString(key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", Missing(key)
	}
	return s, nil
}

// OptionalString returns "" when the field is absent or null.
func (m Mapping) OptionalString(key string) (string, error) {
	if !m.Has(key) {
		return "", nil
	}
	s, ok := m[key].(string)
	if !ok {
		return "", typeError(key, stringTypeName, m[key])
	}
	return s, nil
}

// Bool returns def when the field is absent or null.
func (m Mapping) Bool(key string, def bool) (bool, error) {
	b, err := m.OptionalBool(key)
	if err != nil || b == nil {
		return def, err
	}
	return *b, nil
}

// OptionalBool keeps the difference between an unset flag and false.
func (m Mapping) OptionalBool(key string) (*bool, error) {
	if !m.Has(key) {
		return nil, nil
	}
	b, ok := m[key].(bool)
	if !ok {
		return nil, typeError(key, boolTypeName, m[key])
	}
	return &b, nil
}

// OptionalInt accepts YAML integers and integral JSON numbers.
func (m Mapping) OptionalInt(key string) (*int, error) {
	if !m.Has(key) {
		return nil, nil
	}
	n, ok := toInt(m[key])
	if !ok {
		return nil, typeError(key, intTypeName, m[key])
	}
	return &n, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// List returns the raw elements of a list field, nil when absent.
func (m Mapping) List(key string) ([]any, error) {
	if !m.Has(key) {
		return nil, nil
	}
	switch l := m[key].(type) {
	case []any:
		return l, nil
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, nil
	case []Mapping:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, nil
	case []map[string]any:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, nil
	default:
		return nil, typeError(key, listTypeName, m[key])
	}
}

// StringList returns nil for an absent or empty list.
func (m Mapping) StringList(key string) ([]string, error) {
	raw, err := m.List(key)
	if err != nil || len(raw) == 0 {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, typeError(fmt.Sprintf("%s[%d]", key, i), stringTypeName, v)
		}
		out = append(out, s)
	}
	return out, nil
}

// MappingList returns nil for an absent or empty list.
func (m Mapping) MappingList(key string) ([]Mapping, error) {
	raw, err := m.List(key)
	if err != nil || len(raw) == 0 {
		return nil, err
	}
	out := make([]Mapping, 0, len(raw))
	for i, v := range raw {
		sub, ok := AsMapping(v)
		if !ok {
			return nil, typeError(fmt.Sprintf("%s[%d]", key, i), mappingTypeName, v)
		}
		out = append(out, sub)
	}
	return out, nil
}

// Mapping returns a nested mapping, nil when absent.
func (m Mapping) Mapping(key string) (Mapping, error) {
	if !m.Has(key) {
		return nil, nil
	}
	sub, ok := AsMapping(m[key])
	if !ok {
		return nil, typeError(key, mappingTypeName, m[key])
	}
	return sub, nil
}

// StringMap returns a nested mapping of strings, nil when absent.
func (m Mapping) StringMap(key string) (map[string]string, error) {
	sub, err := m.Mapping(key)
	if err != nil || sub == nil {
		return nil, err
	}
	out := make(map[string]string, len(sub))
	for k, v := range sub {
		s, ok := v.(string)
		if !ok {
			return nil, typeError(key+"."+k, stringTypeName, v)
		}
		out[k] = s
	}
	return out, nil
}
