package model

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField is returned when a required record field is absent.
	ErrMissingField = errors.New("missing field")
	// ErrFieldType is returned when a field value cannot be converted.
	ErrFieldType = errors.New("invalid field type")
	// ErrFieldCount is returned when a positional row does not match its columns.
	ErrFieldCount = errors.New("field count mismatch")
	// ErrInvalidField is returned when a field value violates a record invariant.
	ErrInvalidField = errors.New("invalid field value")
	// ErrInvalidState is returned when a frame dimension is read before selection.
	ErrInvalidState = errors.New("invalid state")
)

// FieldError identifies the component and field a construction failure
// refers to. It unwraps to one of the sentinels above.
type FieldError struct {
	Component string
	Field     string
	Err       error
	Detail    string
}

func (e *FieldError) Error() string {
	msg := fmt.Sprintf("%s: %s.%s", e.Err, e.Component, e.Field)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *FieldError) Unwrap() error { return e.Err }

func missingField(component, field string) error {
	return &FieldError{Component: component, Field: field, Err: ErrMissingField}
}

func invalidField(component, field, format string, args ...any) error {
	return &FieldError{Component: component, Field: field, Err: ErrInvalidField, Detail: fmt.Sprintf(format, args...)}
}
