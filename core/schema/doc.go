/*
Package schema defines the runtime record shapes managed by the engine.

A schema is stored configuration: operators create, replace and delete
schemas at runtime, and the engine serves generic CRUD over their records
without code per shape.

# Schema Definition

A schema in YAML (the format accepted by "masterdata schema apply"):

	name: store
	displayName: Store
	groupId: retail
	fields:
	  - { name: name,    type: string, required: true, unique: true }
	  - { name: rating,  type: number, defaultValue: 0 }
	  - { name: cityRef, type: master, masterType: city, relationshipType: one-to-one, required: true }

Several schemas may share one file as separate YAML documents. Masters must
come before the schemas that reference them.

# Field Types

  - string:  text, passed through unchanged
  - number:  finite floating-point number
  - boolean: true/false; the text "true" (any case) is true, other text false
  - date:    timestamp
  - object:  keyed structure
  - array:   sequence
  - master:  reference to records of another schema

# Master Fields

A master field names its target (masterType) and cardinality
(relationshipType). Its stored name is always "<masterType>Id", whatever
name the author supplied:

  - one-to-one, many-to-one:   a single id
  - one-to-many, many-to-many: a list of ids

# System Fields

Every record also carries "<schemaName>Id" (a generated 16-character id),
createdAt, updatedAt, isActive (default true) and isDeleted (default false).
These names are reserved and cannot be declared by authors.
*/
package schema
