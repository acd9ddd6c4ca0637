// Package validation converts raw input values into typed values according
// to schema field definitions. It is pure and never consults storage;
// existence of referenced records is checked by package reference.
package validation

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/artpar/masterdata/core/errs"
	"github.com/artpar/masterdata/core/schema"
)

// DateLayouts are the textual formats accepted for date fields, tried in order.
var DateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// Coerce converts raw into the representation for f's kind.
// The caller handles absent values; raw is never nil here except for
// master and string fields, which pass through.
//
// Representations: number -> float64, boolean -> bool, date -> time.Time
// (UTC), array -> the sequence as given, object -> the map as given.
func Coerce(f schema.Field, raw any) (any, error) {
	switch f.Type {
	case schema.FieldTypeNumber:
		n, ok := toNumber(raw)
		if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, errs.InvalidField(f.Name, "type", raw, "must be a finite number")
		}
		return n, nil

	case schema.FieldTypeBoolean:
		if s, ok := raw.(string); ok {
			return strings.EqualFold(strings.TrimSpace(s), "true"), nil
		}
		return truthy(raw), nil

	case schema.FieldTypeDate:
		t, ok := toTime(raw)
		if !ok {
			return nil, errs.InvalidField(f.Name, "type", raw, "must be a valid date")
		}
		return t, nil

	case schema.FieldTypeArray:
		if !isSequence(raw) {
			return nil, errs.InvalidField(f.Name, "type", raw, "must be an array")
		}
		return raw, nil

	case schema.FieldTypeObject:
		if !isKeyed(raw) {
			return nil, errs.InvalidField(f.Name, "type", raw, "must be an object")
		}
		return raw, nil

	case schema.FieldTypeMaster:
		// Cardinality and existence are the reference validator's job.
		return raw, nil

	default:
		return raw, nil
	}
}

// Mode selects how absent fields are treated.
type Mode int

const (
	// Create enforces required fields.
	Create Mode = iota
	// Partial only coerces fields present in the payload.
	Partial
)

// CoercePayload coerces every schema field found in payload and returns a new
// map holding only known fields. Absent (missing or nil) fields are omitted;
// in Create mode an absent required field is an error. All problems are
// reported together.
func CoercePayload(fields []schema.Field, payload map[string]any, mode Mode) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	var problems []errs.FieldError

	for _, f := range fields {
		raw, present := payload[f.Name]
		if !present || raw == nil {
			if f.Required && mode == Create {
				problems = append(problems, errs.FieldError{
					Field:   f.Name,
					Rule:    "required",
					Message: "field is required",
				})
			}
			continue
		}

		v, err := Coerce(f, raw)
		if err != nil {
			if fe := errs.FieldsOf(err); len(fe) > 0 {
				problems = append(problems, fe...)
			} else {
				problems = append(problems, errs.FieldError{Field: f.Name, Rule: "type", Value: raw, Message: err.Error()})
			}
			continue
		}
		out[f.Name] = v
	}

	if err := errs.Invalid("validation failed", problems); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateDefault checks that a field's default value can be coerced.
func ValidateDefault(f schema.Field) error {
	if f.DefaultValue == nil {
		return nil
	}
	if f.IsMaster() {
		return errs.InvalidField(f.Name, "default", f.DefaultValue, "master fields cannot have a default value")
	}
	if _, err := Coerce(f, f.DefaultValue); err != nil {
		return errs.InvalidField(f.Name, "default", f.DefaultValue,
			fmt.Sprintf("default value is not a valid %s", f.Type))
	}
	return nil
}

// toNumber performs a numeric parse of raw.
func toNumber(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		n, err := v.Float64()
		return n, err == nil
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// truthy mirrors loose truthiness for non-textual booleans.
func truthy(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	}
	if n, ok := toNumber(raw); ok {
		return n != 0 && !math.IsNaN(n)
	}
	return true
}

// toTime parses raw into a UTC timestamp.
func toTime(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range DateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	case bool:
		return time.Time{}, false
	}

	// Numbers are milliseconds since the Unix epoch.
	if ms, ok := toNumber(raw); ok && !math.IsNaN(ms) && !math.IsInf(ms, 0) {
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	return time.Time{}, false
}

func isSequence(raw any) bool {
	if raw == nil {
		return false
	}
	switch raw.(type) {
	case []any:
		return true
	case []byte:
		return false
	}
	k := reflect.TypeOf(raw).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func isKeyed(raw any) bool {
	if raw == nil {
		return false
	}
	if _, ok := raw.(map[string]any); ok {
		return true
	}
	return reflect.TypeOf(raw).Kind() == reflect.Map
}
