package avro

import (
	"fmt"
	"strconv"

	havro "github.com/hamba/avro/v2"

	"github.com/siqueiraa/flycs/pkg/asset"
)

// ParseFields parses an Avro record schema document and returns its field
// list, see ToFields.
func ParseFields(schemaJSON string) ([]asset.FieldConfig, error) {
	s, err := havro.ParseWithCache(schemaJSON, "", &havro.SchemaCache{})
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return ToFields(s)
}

// ToFields derives a transformation field list from an Avro record schema.
// It understands the standard logical types plus the Kafka Connect and
// Debezium hints commonly found in registry schemas.
func ToFields(s havro.Schema) ([]asset.FieldConfig, error) {
	rec, ok := s.(*havro.RecordSchema)
	if !ok {
		return nil, fmt.Errorf("%w: expected record schema, got %s", ErrUnsupported, s.Type())
	}

	fields := make([]asset.FieldConfig, 0, len(rec.Fields()))
	for _, f := range rec.Fields() {
		fc, err := toField(f.Name(), f.Type())
		if err != nil {
			return nil, err
		}
		fields = append(fields, fc)
	}
	return fields, nil
}

func toField(name string, s havro.Schema) (asset.FieldConfig, error) {
	fc := asset.FieldConfig{Name: name, Mode: "REQUIRED"}

	if u, ok := s.(*havro.UnionSchema); ok {
		branch, err := nonNullBranch(name, u)
		if err != nil {
			return fc, err
		}
		fc.Mode = "NULLABLE"
		s = branch
	}
	if a, ok := s.(*havro.ArraySchema); ok {
		if _, nested := a.Items().(*havro.ArraySchema); nested {
			return fc, fmt.Errorf("%w: nested array for field %s", ErrUnsupported, name)
		}
		fc.Mode = "REPEATED"
		s = a.Items()
		if u, ok := s.(*havro.UnionSchema); ok {
			branch, err := nonNullBranch(name, u)
			if err != nil {
				return fc, err
			}
			s = branch
		}
	}

	if rec, ok := s.(*havro.RecordSchema); ok {
		sub, err := ToFields(rec)
		if err != nil {
			return fc, fmt.Errorf("field %s: %w", name, err)
		}
		fc.Type = "RECORD"
		fc.Fields = sub
		return fc, nil
	}

	typ, err := columnType(s)
	if err != nil {
		return fc, fmt.Errorf("field %s: %w", name, err)
	}
	fc.Type = typ
	return fc, nil
}

// nonNullBranch unwraps ["null", T]. Unions with several non-null branches
// have no column equivalent.
func nonNullBranch(name string, u *havro.UnionSchema) (havro.Schema, error) {
	var branch havro.Schema
	for _, t := range u.Types() {
		if t.Type() == nullTypeName {
			continue
		}
		if branch != nil {
			return nil, fmt.Errorf("%w: union with several branches for field %s", ErrUnsupported, name)
		}
		branch = t
	}
	if branch == nil {
		return nil, fmt.Errorf("%w: null-only union for field %s", ErrUnsupported, name)
	}
	return branch, nil
}

func columnType(s havro.Schema) (string, error) {
	switch s.(type) {
	case *havro.MapSchema:
		return "", fmt.Errorf("%w: map", ErrUnsupported)
	case *havro.EnumSchema:
		return "STRING", nil
	}

	if ls, ok := s.(havro.LogicalTypeSchema); ok {
		if l := ls.Logical(); l != nil {
			return logicalColumnType(string(l.Type()), s), nil
		}
	}
	if ps, ok := s.(havro.PropertySchema); ok {
		if t, ok := connectColumnType(ps); ok {
			return t, nil
		}
	}

	switch s.Type() {
	case havro.String:
		return "STRING", nil
	case havro.Bytes, havro.Fixed:
		return "BYTES", nil
	case havro.Int, havro.Long:
		return "INTEGER", nil
	case havro.Float, havro.Double:
		return "FLOAT", nil
	case havro.Boolean:
		return "BOOLEAN", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, s.Type())
}

func logicalColumnType(logical string, s havro.Schema) string {
	switch logical {
	case decimalTypeName:
		if ds, ok := s.(havro.LogicalTypeSchema); ok {
			if d, ok := ds.Logical().(*havro.DecimalLogicalSchema); ok && d.Precision() > numericPrecision {
				return "BIGNUMERIC"
			}
		}
		return "NUMERIC"
	case "uuid":
		return "STRING"
	case "date":
		return "DATE"
	case "time-millis", "time-micros":
		return "TIME"
	case "timestamp-millis", "timestamp-micros", "timestamp-nanos":
		return "TIMESTAMP"
	case "local-timestamp-millis", "local-timestamp-micros", "local-timestamp-nanos":
		return "DATETIME"
	case "duration":
		return "INTERVAL"
	default:
		return "STRING"
	}
}

// connectColumnType reads the connect.name hint set by Kafka Connect
// converters and Debezium.
func connectColumnType(ps havro.PropertySchema) (string, bool) {
	name, ok := ps.Prop("connect.name").(string)
	if !ok {
		return "", false
	}
	switch name {
	case "org.apache.kafka.connect.data.Decimal":
		if p, ok := connectPrecision(ps); ok && p > numericPrecision {
			return "BIGNUMERIC", true
		}
		return "NUMERIC", true
	case "io.debezium.time.ZonedTimestamp", "io.debezium.time.Timestamp",
		"io.debezium.time.MicroTimestamp", "org.apache.kafka.connect.data.Timestamp":
		return "TIMESTAMP", true
	case "io.debezium.time.Date", "org.apache.kafka.connect.data.Date":
		return "DATE", true
	case "io.debezium.time.Time", "io.debezium.time.MicroTime", "org.apache.kafka.connect.data.Time":
		return "TIME", true
	case "io.debezium.data.UUID", "io.debezium.data.Json":
		return "STRING", true
	}
	return "", false
}

func connectPrecision(ps havro.PropertySchema) (int, bool) {
	if p, ok := propAsInt(ps, "precision"); ok {
		return p, true
	}
	params, ok := ps.Prop("connect.parameters").(map[string]any)
	if !ok {
		return 0, false
	}
	v, ok := params["connect.decimal.precision"].(string)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	return i, err == nil
}

// propAsInt fetches a schema property and converts it to int if possible.
func propAsInt(ps havro.PropertySchema, key string) (int, bool) {
	switch val := ps.Prop(key).(type) {
	case int:
		return val, true
	case float64:
		return int(val), true
	case string:
		if i, err := strconv.Atoi(val); err == nil {
			return i, true
		}
	}
	return 0, false
}
