// Package schema holds the validation primitives shared by every record of the
// SDK: field-naming errors, typed access to raw mappings decoded from YAML or
// JSON, and version checks.
package schema

import (
	"errors"
	"fmt"
)

var (
	ErrMissingField = errors.New("missing required field")
	ErrInvalidType  = errors.New("invalid type")
	ErrInvalidValue = errors.New("invalid value")
)

// FieldError reports a validation failure on a single field. Err is one of the
// package sentinels or a more specific sentinel from the calling package.
type FieldError struct {
	Field  string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Missing builds the error returned when a required field is absent or empty.
func Missing(field string) error {
	return &FieldError{Field: field, Reason: "is required", Err: ErrMissingField}
}

// Invalid builds a value error for field.
func Invalid(field, format string, args ...any) error {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...), Err: ErrInvalidValue}
}

// Wrapf builds a field error around a caller sentinel.
func Wrapf(err error, field, format string, args ...any) error {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...), Err: err}
}

// Prefix qualifies the field of a nested FieldError, so an error raised while
// decoding an argument reads "ARGUMENT_LIST[1].MODE". Other errors are wrapped
// with the prefix as context.
func Prefix(prefix string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		return &FieldError{Field: prefix + "." + fe.Field, Reason: fe.Reason, Err: fe.Err}
	}
	return fmt.Errorf("%s: %w", prefix, err)
}
