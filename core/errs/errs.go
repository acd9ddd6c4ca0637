// Package errs defines the error taxonomy shared by the schema engine.
// Every failure surfaced to callers carries a Kind so transports can map it
// to a status without string matching.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindValidation           Kind = "validation"
	KindConflict             Kind = "conflict"
	KindReferentialIntegrity Kind = "referential_integrity"
	KindInternal             Kind = "internal"
)

// FieldError describes a problem with a single field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Error is the concrete error type returned by the engine.
type Error struct {
	Kind    Kind
	Message string

	// Field names the offending field, when there is exactly one.
	Field string

	// Fields lists every field problem for aggregated validation failures.
	Fields []FieldError

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		msgs := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			msgs[i] = f.Error()
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(msgs, "; "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a KindConflict error.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a KindValidation error.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// InvalidField builds a KindValidation error naming one field.
func InvalidField(field, rule string, value any, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: "validation failed",
		Field:   field,
		Fields:  []FieldError{{Field: field, Rule: rule, Value: value, Message: message}},
	}
}

// Invalid aggregates field problems into one KindValidation error.
// Returns nil when fields is empty.
func Invalid(message string, fields []FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	e := &Error{Kind: KindValidation, Message: message, Fields: fields}
	if len(fields) == 1 {
		e.Field = fields[0].Field
	}
	return e
}

// MissingReference builds a KindReferentialIntegrity error for an id that
// does not exist in the target schema.
func MissingReference(field, target, id string) *Error {
	return &Error{
		Kind:    KindReferentialIntegrity,
		Message: fmt.Sprintf("%s with id %q does not exist", target, id),
		Field:   field,
		Fields: []FieldError{{
			Field:   field,
			Rule:    "reference",
			Value:   id,
			Message: fmt.Sprintf("referenced %s %q does not exist", target, id),
		}},
	}
}

// Internal wraps an unexpected failure.
func Internal(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// IsValidation reports whether err is a validation failure at the boundary.
// Referential integrity failures are validation failures to callers.
func IsValidation(err error) bool {
	k := KindOf(err)
	return err != nil && (k == KindValidation || k == KindReferentialIntegrity)
}

// FieldsOf returns the field problems carried by err, if any.
func FieldsOf(err error) []FieldError {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
