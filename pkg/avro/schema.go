// Package avro converts transformation schemas to and from Avro record
// schemas.
package avro

import (
	"errors"
	"fmt"
	"regexp"

	havro "github.com/hamba/avro/v2"
	jsoniter "github.com/json-iterator/go"

	"github.com/siqueiraa/flycs/pkg/asset"
)

const (
	nullTypeName    = "null"
	stringTypeName  = "string"
	bytesTypeName   = "bytes"
	decimalTypeName = "decimal"

	numericPrecision    = 38
	numericScale        = 9
	bigNumericPrecision = 76
	bigNumericScale     = 38
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrUnsupported = errors.New("unsupported avro type")

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// primitive maps scalar warehouse types to their Avro form.
var primitive = map[string]any{
	"STRING":     stringTypeName,
	"GEOGRAPHY":  stringTypeName,
	"INTERVAL":   stringTypeName,
	"BYTES":      bytesTypeName,
	"BOOLEAN":    "boolean",
	"BOOL":       "boolean",
	"FLOAT":      "double",
	"FLOAT64":    "double",
	"INT":        "long",
	"INT64":      "long",
	"INTEGER":    "long",
	"BIGINT":     "long",
	"SMALLINT":   "long",
	"TINYINT":    "long",
	"BYTEINT":    "long",
	"DATE":       map[string]any{"type": "int", "logicalType": "date"},
	"TIME":       map[string]any{"type": "long", "logicalType": "time-micros"},
	"TIMESTAMP":  map[string]any{"type": "long", "logicalType": "timestamp-micros"},
	"DATETIME":   map[string]any{"type": "long", "logicalType": "local-timestamp-micros"},
	"NUMERIC":    decimal(numericPrecision, numericScale),
	"DECIMAL":    decimal(numericPrecision, numericScale),
	"BIGNUMERIC": decimal(bigNumericPrecision, bigNumericScale),
	"BIGDECIMAL": decimal(bigNumericPrecision, bigNumericScale),
}

func decimal(precision, scale int) map[string]any {
	return map[string]any{
		"type":        bytesTypeName,
		"logicalType": decimalTypeName,
		"precision":   precision,
		"scale":       scale,
	}
}

// FromFields builds the Avro record schema named name for a transformation's
// field list. NULLABLE fields become unions with null defaulting to null,
// REPEATED fields become arrays and RECORD/STRUCT fields nested records.
func FromFields(name string, fields []asset.FieldConfig) (havro.Schema, error) {
	doc, err := SchemaJSON(name, fields)
	if err != nil {
		return nil, err
	}
	s, err := havro.ParseWithCache(doc, "", &havro.SchemaCache{})
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}
	return s, nil
}

// SchemaJSON returns the Avro schema document FromFields parses.
func SchemaJSON(name string, fields []asset.FieldConfig) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("schema %s has no fields", name)
	}
	rec, err := recordSchema(sanitizeName(name), fields)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func recordSchema(name string, fields []asset.FieldConfig) (map[string]any, error) {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		field, err := fieldSchema(name, f)
		if err != nil {
			return nil, err
		}
		out = append(out, field)
	}
	return map[string]any{"type": "record", "name": name, "fields": out}, nil
}

func fieldSchema(parent string, f asset.FieldConfig) (map[string]any, error) {
	var typ any
	if f.IsRecord() {
		rec, err := recordSchema(parent+"_"+sanitizeName(f.Name), f.Fields)
		if err != nil {
			return nil, err
		}
		typ = rec
	} else {
		p, ok := primitive[f.Type]
		if !ok {
			return nil, fmt.Errorf("%w: %s for field %s", ErrUnsupported, f.Type, f.Name)
		}
		typ = p
	}

	field := map[string]any{"name": f.Name}
	switch f.Mode {
	case "REPEATED":
		field["type"] = map[string]any{"type": "array", "items": typ}
		field["default"] = []any{}
	case "REQUIRED":
		field["type"] = typ
	default:
		field["type"] = []any{nullTypeName, typ}
		field["default"] = nil
	}
	return field, nil
}

func sanitizeName(name string) string {
	s := invalidNameChars.ReplaceAllString(name, "_")
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "_" + s
	}
	return s
}
