package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/artpar/masterdata/core/errs"
	"gopkg.in/yaml.v3"
)

// ParseFile parses schema definitions from a YAML file.
func ParseFile(path string) ([]Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses one or more YAML documents, each holding a single schema.
// Definitions are returned in document order so masters can precede dependents.
func Parse(data []byte) ([]Schema, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var out []Schema
	for {
		var s Schema
		err := dec.Decode(&s)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		if s.Name == "" && len(s.Fields) == 0 {
			continue
		}

		s = NormalizeMasterFields(s)
		if err := Validate(s); err != nil {
			return nil, fmt.Errorf("validate schema %q: %w", s.Name, err)
		}
		out = append(out, s)
	}

	return out, nil
}

// Validate checks the structure of a schema definition. It does not consult
// other schemas; cross-schema checks belong to the registry.
// Master fields are expected to be normalized already.
func Validate(s Schema) error {
	var problems []errs.FieldError
	add := func(field, rule string, value any, msg string) {
		problems = append(problems, errs.FieldError{Field: field, Rule: rule, Value: value, Message: msg})
	}

	if s.Name == "" {
		add("name", "required", nil, "schema name is required")
	} else if !isValidIdentifier(s.Name) {
		add("name", "identifier", s.Name, fmt.Sprintf("schema name %q is not a valid identifier", s.Name))
	}

	reserved := make(map[string]bool)
	for _, n := range SystemFieldNames(s.Name) {
		reserved[n] = true
	}

	seen := make(map[string]bool)
	for i, f := range s.Fields {
		label := f.Name
		if label == "" {
			label = fmt.Sprintf("fields[%d]", i)
		}

		if f.Name == "" {
			add(label, "required", nil, "field name is required")
		} else if !isValidIdentifier(f.Name) {
			add(label, "identifier", f.Name, fmt.Sprintf("field name %q is not a valid identifier", f.Name))
		}

		if f.Name != "" {
			if seen[f.Name] {
				add(label, "duplicate", f.Name, fmt.Sprintf("duplicate field name %q", f.Name))
			}
			seen[f.Name] = true

			if reserved[f.Name] {
				add(label, "reserved", f.Name, fmt.Sprintf("field name %q is reserved for system fields", f.Name))
			}
		}

		if err := validateField(f); err != "" {
			add(label, "type", f.Type, err)
		}
	}

	return errs.Invalid("invalid schema definition", problems)
}

// validateField returns a message describing what is wrong with f, or "".
func validateField(f Field) string {
	if !f.Type.IsValid() {
		return fmt.Sprintf("unknown type %q", f.Type)
	}

	if f.IsMaster() {
		if f.MasterType == "" {
			return "master field requires masterType"
		}
		if f.RelationshipType == "" {
			return "master field requires relationshipType"
		}
		if !f.RelationshipType.IsValid() {
			return fmt.Sprintf("unknown relationshipType %q", f.RelationshipType)
		}
		return ""
	}

	if f.MasterType != "" || f.RelationshipType != "" {
		return "masterType and relationshipType are only allowed on master fields"
	}

	return ""
}

// isValidIdentifier checks if a string is a valid identifier.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if i == 0 {
			if !isLetter(c) && c != '_' {
				return false
			}
		} else {
			if !isLetter(c) && !isDigit(c) && c != '_' {
				return false
			}
		}
	}

	return true
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}
