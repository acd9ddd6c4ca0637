package schema

import "strings"

// Schema is the definition of one record shape.
type Schema struct {
	// Name is the identity of the schema. Lookups are case-insensitive;
	// the original casing is preserved for collection naming.
	Name string `yaml:"name" json:"name" bson:"name"`

	// DisplayName is a human-readable label.
	DisplayName string `yaml:"displayName,omitempty" json:"displayName,omitempty" bson:"displayName,omitempty"`

	// GroupID optionally tags the schema with an externally owned group.
	GroupID string `yaml:"groupId,omitempty" json:"groupId,omitempty" bson:"groupId,omitempty"`

	// Fields are the author-defined attributes. System fields are not listed.
	Fields []Field `yaml:"fields" json:"fields" bson:"fields"`
}

// Key returns the case-insensitive identity of a schema name.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Key returns the case-insensitive identity of s.
func (s Schema) Key() string {
	return Key(s.Name)
}

// IDField returns the name of the generated identifier field.
func (s Schema) IDField() string {
	return IDFieldName(s.Name)
}

// IDFieldName returns the identifier field name for a schema name.
func IDFieldName(name string) string {
	return name + "Id"
}

// Field returns the field with the given name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// MasterFields returns the fields that reference other schemas.
func (s Schema) MasterFields() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.IsMaster() {
			out = append(out, f)
		}
	}
	return out
}

// References reports whether s has a master field targeting the named schema.
func (s Schema) References(target string) bool {
	key := Key(target)
	for _, f := range s.Fields {
		if f.IsMaster() && Key(f.MasterType) == key {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the field list so callers can mutate safely.
func (s Schema) Clone() Schema {
	out := s
	out.Fields = make([]Field, len(s.Fields))
	copy(out.Fields, s.Fields)
	return out
}

// NormalizeMasterFields returns a copy of s with every master field renamed
// to "<masterType>Id". The rename is applied once at create/update time and
// persisted; it is never recomputed on read.
func NormalizeMasterFields(s Schema) Schema {
	out := s.Clone()
	for i, f := range out.Fields {
		if f.IsMaster() && f.MasterType != "" {
			out.Fields[i].Name = MasterFieldName(f.MasterType)
		}
	}
	return out
}

// SystemFieldNames returns the names injected into every record of s.
func SystemFieldNames(name string) []string {
	return []string{IDFieldName(name), "createdAt", "updatedAt", "isActive", "isDeleted"}
}
