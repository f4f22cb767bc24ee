package avro

import (
	"fmt"
)

// Equivalent reports whether two Avro schema documents encode rows the same
// way. Key order and doc strings are ignored; field and union branch order
// are not.
func Equivalent(a, b string) (bool, error) {
	na, err := normalizeSchemaJSON(a)
	if err != nil {
		return false, err
	}
	nb, err := normalizeSchemaJSON(b)
	if err != nil {
		return false, err
	}
	return na == nb, nil
}

// normalizeSchemaJSON parses and re-marshals a schema document into a
// canonical form for comparison.
func normalizeSchemaJSON(schemaJSON string) (string, error) {
	var schema any
	if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
		return "", fmt.Errorf("failed to parse schema JSON: %w", err)
	}

	normalizedJSON, err := json.Marshal(normalizeSchemaStructure(schema))
	if err != nil {
		return "", fmt.Errorf("failed to marshal normalized schema: %w", err)
	}
	return string(normalizedJSON), nil
}

func normalizeSchemaStructure(schema any) any {
	switch s := schema.(type) {
	case map[string]any:
		return normalizeSchemaMap(s)
	case []any:
		return normalizeSchemaArray(s)
	default:
		return s
	}
}

func normalizeSchemaMap(s map[string]any) any {
	normalized := make(map[string]any, len(s))
	for k, v := range s {
		if k == "doc" {
			continue
		}
		normalized[k] = normalizeSchemaStructure(v)
	}
	return normalized
}

func normalizeSchemaArray(s []any) any {
	normalized := make([]any, len(s))
	for i, item := range s {
		normalized[i] = normalizeSchemaStructure(item)
	}
	return normalized
}
