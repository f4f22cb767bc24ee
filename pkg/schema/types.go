package schema

import (
	"reflect"
	"time"
)

const (
	timestampTypeName = "timestamp"
	nullTypeName      = "null"
	intTypeName       = "int"
	stringTypeName    = "string"
	boolTypeName      = "bool"
	floatTypeName     = "float"
	listTypeName      = "list"
	mappingTypeName   = "mapping"
)

// TypeName describes the type of a raw decoded value the way users write it in
// asset files. It is used in error messages only.
func TypeName(value any) string {
	if value == nil {
		return nullTypeName
	}
	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		v := reflect.ValueOf(value)
		if v.IsNil() {
			return nullTypeName
		}
		return TypeName(v.Elem().Interface())
	}
	if t == reflect.TypeOf(time.Time{}) {
		return timestampTypeName
	}

	switch t.Kind() {
	case reflect.String:
		return stringTypeName
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return intTypeName
	case reflect.Float32, reflect.Float64:
		return handleFloatType(value)
	case reflect.Bool:
		return boolTypeName
	case reflect.Slice, reflect.Array:
		return listTypeName
	case reflect.Map, reflect.Struct:
		return mappingTypeName
	default:
		return t.Kind().String()
	}
}

// handleFloatType reports integral floats (as produced by JSON decoding) as int.
func handleFloatType(value any) string {
	if f, ok := value.(float64); ok {
		if f == float64(int64(f)) {
			return intTypeName
		}
	}
	return floatTypeName
}
