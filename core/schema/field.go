package schema

// Field defines one attribute of a schema.
type Field struct {
	// Name is the field name. For master fields it is rewritten to
	// "<masterType>Id" when the schema is created or updated.
	Name string `yaml:"name" json:"name" bson:"name"`

	// Type is the field kind. See FieldType constants.
	Type FieldType `yaml:"type" json:"type" bson:"type"`

	// Required indicates the field must be present on create.
	Required bool `yaml:"required,omitempty" json:"required,omitempty" bson:"required,omitempty"`

	// Unique indicates no two records may share a value for this field.
	Unique bool `yaml:"unique,omitempty" json:"unique,omitempty" bson:"unique,omitempty"`

	// DefaultValue is applied by the accessor at write time when the field is absent.
	DefaultValue any `yaml:"defaultValue,omitempty" json:"defaultValue,omitempty" bson:"defaultValue,omitempty"`

	// MasterType names the referenced schema. Only for master fields.
	MasterType string `yaml:"masterType,omitempty" json:"masterType,omitempty" bson:"masterType,omitempty"`

	// RelationshipType is the cardinality of a master field.
	RelationshipType RelationshipType `yaml:"relationshipType,omitempty" json:"relationshipType,omitempty" bson:"relationshipType,omitempty"`
}

// FieldType represents the kind of a schema field.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeDate    FieldType = "date"
	FieldTypeObject  FieldType = "object"
	FieldTypeArray   FieldType = "array"

	// FieldTypeMaster is a typed reference to records of another schema.
	// It is not a storage primitive: the accessor resolves it into a single
	// reference slot or a reference collection based on RelationshipType.
	FieldTypeMaster FieldType = "master"
)

// FieldTypes lists every valid field kind.
var FieldTypes = []FieldType{
	FieldTypeString,
	FieldTypeNumber,
	FieldTypeBoolean,
	FieldTypeDate,
	FieldTypeObject,
	FieldTypeArray,
	FieldTypeMaster,
}

// IsValid reports whether t is a known field kind.
func (t FieldType) IsValid() bool {
	for _, ft := range FieldTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// RelationshipType is the cardinality of a master field.
type RelationshipType string

const (
	OneToOne   RelationshipType = "one-to-one"
	ManyToOne  RelationshipType = "many-to-one"
	OneToMany  RelationshipType = "one-to-many"
	ManyToMany RelationshipType = "many-to-many"
)

// IsValid reports whether r is a known relationship type.
func (r RelationshipType) IsValid() bool {
	switch r {
	case OneToOne, ManyToOne, OneToMany, ManyToMany:
		return true
	default:
		return false
	}
}

// IsCollection reports whether the relationship stores a collection of ids.
// one-to-one and many-to-one store a single id.
func (r RelationshipType) IsCollection() bool {
	return r == OneToMany || r == ManyToMany
}

// IsMaster reports whether f references another schema.
func (f Field) IsMaster() bool {
	return f.Type == FieldTypeMaster
}

// MasterFieldName returns the stored field name for a reference to target.
func MasterFieldName(target string) string {
	return target + "Id"
}
