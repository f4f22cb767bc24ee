package asset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/siqueiraa/flycs/pkg/schema"
)

var (
	ErrUnsupportedType = errors.New("unsupported field type")
	ErrUnsupportedMode = errors.New("unsupported field mode")
)

var bigQueryTypes = map[string]bool{
	"STRING": true, "BYTES": true, "FLOAT": true, "FLOAT64": true,
	"BOOLEAN": true, "BOOL": true, "TIMESTAMP": true, "DATE": true,
	"TIME": true, "DATETIME": true, "GEOGRAPHY": true, "INTERVAL": true,
	"INT": true, "INT64": true, "INTEGER": true, "BIGINT": true,
	"NUMERIC": true, "DECIMAL": true, "BIGNUMERIC": true, "BIGDECIMAL": true,
	"SMALLINT": true, "TINYINT": true, "BYTEINT": true,
	"RECORD": true, "STRUCT": true,
}

var bigQueryModes = map[string]bool{"NULLABLE": true, "REPEATED": true, "REQUIRED": true}

// FieldConfig describes one column of a transformation's output table.
type FieldConfig struct {
	Name    string
	Type    string
	Mode    string
	Decrypt bool
	Fields  []FieldConfig
}

// IsRecord reports whether the field nests sub fields.
func (f FieldConfig) IsRecord() bool {
	return f.Type == "RECORD" || f.Type == "STRUCT"
}

func (f FieldConfig) Validate() error {
	if f.Name == "" {
		return schema.Missing("NAME")
	}
	if !bigQueryTypes[f.Type] {
		return schema.Wrapf(ErrUnsupportedType, "TYPE", "unsupported type %q for field %s", f.Type, f.Name)
	}
	if !bigQueryModes[f.Mode] {
		return schema.Wrapf(ErrUnsupportedMode, "MODE", "unsupported mode %q for field %s", f.Mode, f.Name)
	}
	if f.IsRecord() && len(f.Fields) == 0 {
		return schema.Invalid("FIELDS", "%s field %s needs sub fields", f.Type, f.Name)
	}
	if !f.IsRecord() && len(f.Fields) > 0 {
		return schema.Invalid("FIELDS", "sub fields are only allowed on RECORD or STRUCT, %s is %s", f.Name, f.Type)
	}
	for i, sub := range f.Fields {
		if err := sub.Validate(); err != nil {
			return schema.Prefix(fmt.Sprintf("FIELDS[%d]", i), err)
		}
	}
	return nil
}

func (f FieldConfig) ToMap() map[string]any {
	m := map[string]any{
		"NAME":    f.Name,
		"TYPE":    f.Type,
		"MODE":    f.Mode,
		"DECRYPT": f.Decrypt,
	}
	if len(f.Fields) > 0 {
		m["FIELDS"] = fieldsToList(f.Fields)
	}
	return m
}

// FieldConfigFromMap accepts upper or lower case keys, since schema blocks
// are often pasted from the warehouse's JSON schema export.
func FieldConfigFromMap(m schema.Mapping) (FieldConfig, error) {
	norm := make(schema.Mapping, len(m))
	for k, v := range m {
		norm[strings.ToUpper(k)] = v
	}

	var (
		f   FieldConfig
		err error
	)
	if f.Name, err = norm.String("NAME"); err != nil {
		return f, err
	}
	if f.Type, err = norm.String("TYPE"); err != nil {
		return f, err
	}
	f.Type = strings.ToUpper(f.Type)
	if f.Mode, err = norm.String("MODE"); err != nil {
		return f, err
	}
	f.Mode = strings.ToUpper(f.Mode)
	if f.Decrypt, err = norm.Bool("DECRYPT", false); err != nil {
		return f, err
	}
	if f.Fields, err = decodeFields(norm, "FIELDS"); err != nil {
		return f, err
	}
	return f, f.Validate()
}

func decodeFields(m schema.Mapping, key string) ([]FieldConfig, error) {
	raw, err := m.MappingList(key)
	if err != nil || raw == nil {
		return nil, err
	}
	out := make([]FieldConfig, 0, len(raw))
	for i, r := range raw {
		f, err := FieldConfigFromMap(r)
		if err != nil {
			return nil, schema.Prefix(fmt.Sprintf("%s[%d]", key, i), err)
		}
		out = append(out, f)
	}
	return out, nil
}

func fieldsToList(fields []FieldConfig) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.ToMap())
	}
	return out
}
