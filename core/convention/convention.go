// Package convention derives the storage layout of a schema.
// It applies naming conventions, injects system fields, and resolves master
// fields into reference slots.
package convention

import (
	"github.com/artpar/masterdata/core/errs"
	"github.com/artpar/masterdata/core/schema"
)

// System field names shared by every record.
const (
	CreatedAt = "createdAt"
	UpdatedAt = "updatedAt"
	IsActive  = "isActive"
	IsDeleted = "isDeleted"
)

// Slot describes how a field value is held in a record.
type Slot string

const (
	// SlotScalar holds a single typed value.
	SlotScalar Slot = "scalar"
	// SlotReference holds one identifier of a record in another schema.
	SlotReference Slot = "reference"
	// SlotReferences holds a collection of identifiers.
	SlotReferences Slot = "references"
)

// Derived is the fully-expanded storage layout of a schema.
type Derived struct {
	// Source is the schema the layout was derived from.
	Source schema.Schema

	// Collection is the case-preserving collection name.
	Collection string

	// IDField is the generated identifier field, e.g. "cityId".
	IDField string

	// Fields holds the identifier, the system fields, then author fields.
	Fields []DerivedField
}

// DerivedField is one slot of the layout with defaults applied.
type DerivedField struct {
	Name string
	Type schema.FieldType
	Slot Slot

	Required bool
	Unique   bool

	// Default is the raw default; it is coerced when applied.
	Default any

	// Ref is the target schema name for reference slots.
	Ref          string
	Relationship schema.RelationshipType

	// Source is the author definition; zero for implicit fields.
	Source schema.Field

	// Implicit marks system-managed fields.
	Implicit bool
}

// Derive expands a schema into its storage layout. An unknown relationship
// type on a master field fails with a validation error.
func Derive(s schema.Schema) (Derived, error) {
	d := Derived{
		Source:     s,
		Collection: s.Name,
		IDField:    s.IDField(),
	}

	d.Fields = make([]DerivedField, 0, len(s.Fields)+5)
	d.Fields = append(d.Fields, systemFields(d.IDField)...)

	for _, f := range s.Fields {
		df := DerivedField{
			Name:     f.Name,
			Type:     f.Type,
			Slot:     SlotScalar,
			Required: f.Required,
			Unique:   f.Unique,
			Default:  f.DefaultValue,
			Source:   f,
		}

		if f.IsMaster() {
			switch f.RelationshipType {
			case schema.OneToOne, schema.ManyToOne:
				df.Slot = SlotReference
			case schema.OneToMany, schema.ManyToMany:
				df.Slot = SlotReferences
			default:
				return Derived{}, errs.InvalidField(f.Name, "relationshipType", string(f.RelationshipType),
					"unknown relationship type "+string(f.RelationshipType))
			}
			df.Ref = f.MasterType
			df.Relationship = f.RelationshipType
		}

		d.Fields = append(d.Fields, df)
	}

	return d, nil
}

func systemFields(idField string) []DerivedField {
	return []DerivedField{
		{Name: idField, Type: schema.FieldTypeString, Slot: SlotScalar, Unique: true, Implicit: true},
		{Name: CreatedAt, Type: schema.FieldTypeDate, Slot: SlotScalar, Implicit: true},
		{Name: UpdatedAt, Type: schema.FieldTypeDate, Slot: SlotScalar, Implicit: true},
		{Name: IsActive, Type: schema.FieldTypeBoolean, Slot: SlotScalar, Default: true, Implicit: true},
		{Name: IsDeleted, Type: schema.FieldTypeBoolean, Slot: SlotScalar, Default: false, Implicit: true},
	}
}

// Field returns the layout slot with the given name.
func (d Derived) Field(name string) (DerivedField, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return DerivedField{}, false
}

// AuthorFields returns the author-defined fields in declaration order.
func (d Derived) AuthorFields() []schema.Field {
	out := make([]schema.Field, 0, len(d.Fields))
	for _, f := range d.Fields {
		if !f.Implicit {
			out = append(out, f.Source)
		}
	}
	return out
}

// StringFields returns the names of string-typed author fields, used for
// free-text search.
func (d Derived) StringFields() []string {
	var out []string
	for _, f := range d.Fields {
		if !f.Implicit && f.Type == schema.FieldTypeString {
			out = append(out, f.Name)
		}
	}
	return out
}

// UniqueFields returns the author fields that must hold distinct values.
func (d Derived) UniqueFields() []DerivedField {
	var out []DerivedField
	for _, f := range d.Fields {
		if f.Unique && !f.Implicit {
			out = append(out, f)
		}
	}
	return out
}

// ReferenceFields returns the reference and reference-collection slots.
func (d Derived) ReferenceFields() []DerivedField {
	var out []DerivedField
	for _, f := range d.Fields {
		if f.Slot == SlotReference || f.Slot == SlotReferences {
			out = append(out, f)
		}
	}
	return out
}
