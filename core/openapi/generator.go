// Package openapi generates OpenAPI 3.0 documents describing the record
// API of every registered schema.
package openapi

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/artpar/masterdata/core/convention"
	"github.com/artpar/masterdata/core/schema"
)

// Spec represents an OpenAPI 3.0 specification.
type Spec struct {
	OpenAPI    string              `json:"openapi"`
	Info       Info                `json:"info"`
	Servers    []Server            `json:"servers,omitempty"`
	Paths      map[string]PathItem `json:"paths"`
	Components Components          `json:"components"`
	Tags       []Tag               `json:"tags,omitempty"`
}

// Info provides API metadata.
type Info struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
}

// Server represents a server URL.
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// PathItem contains operations for a path.
type PathItem struct {
	Get    *Operation `json:"get,omitempty"`
	Post   *Operation `json:"post,omitempty"`
	Put    *Operation `json:"put,omitempty"`
	Patch  *Operation `json:"patch,omitempty"`
	Delete *Operation `json:"delete,omitempty"`
}

// Operation represents an API operation.
type Operation struct {
	Tags        []string            `json:"tags,omitempty"`
	Summary     string              `json:"summary,omitempty"`
	Description string              `json:"description,omitempty"`
	OperationID string              `json:"operationId,omitempty"`
	Parameters  []Parameter         `json:"parameters,omitempty"`
	RequestBody *RequestBody        `json:"requestBody,omitempty"`
	Responses   map[string]Response `json:"responses"`
}

// Parameter represents an API parameter.
type Parameter struct {
	Name        string  `json:"name"`
	In          string  `json:"in"` // path, query
	Description string  `json:"description,omitempty"`
	Required    bool    `json:"required,omitempty"`
	Schema      *Schema `json:"schema,omitempty"`
}

// RequestBody represents a request body.
type RequestBody struct {
	Description string               `json:"description,omitempty"`
	Required    bool                 `json:"required,omitempty"`
	Content     map[string]MediaType `json:"content"`
}

// Response represents an API response.
type Response struct {
	Description string               `json:"description"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

// MediaType represents a media type.
type MediaType struct {
	Schema *Schema `json:"schema,omitempty"`
}

// Schema represents a JSON Schema.
type Schema struct {
	Type        string             `json:"type,omitempty"`
	Format      string             `json:"format,omitempty"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Ref         string             `json:"$ref,omitempty"`
	Default     any                `json:"default,omitempty"`
	Example     any                `json:"example,omitempty"`
	ReadOnly    bool               `json:"readOnly,omitempty"`
}

// Components contains reusable schemas.
type Components struct {
	Schemas map[string]*Schema `json:"schemas,omitempty"`
}

// Tag provides metadata for a group of operations.
type Tag struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Generator builds a spec from schema layouts.
type Generator struct {
	layouts []convention.Derived
	info    Info
	servers []Server
}

// NewGenerator creates a generator for the given layouts. Paths are emitted
// in the order given.
func NewGenerator(layouts []convention.Derived) *Generator {
	return &Generator{
		layouts: layouts,
		info: Info{
			Title:       "masterdata API",
			Version:     "1.0.0",
			Description: "Record API generated from the registered schemas",
		},
	}
}

// SetInfo sets the API info.
func (g *Generator) SetInfo(info Info) {
	g.info = info
}

// AddServer adds a server URL.
func (g *Generator) AddServer(url, description string) {
	g.servers = append(g.servers, Server{URL: url, Description: description})
}

// Generate creates the OpenAPI specification.
func (g *Generator) Generate() *Spec {
	spec := &Spec{
		OpenAPI: "3.0.3",
		Info:    g.info,
		Servers: g.servers,
		Paths:   make(map[string]PathItem),
		Components: Components{
			Schemas: map[string]*Schema{"Error": errorSchema()},
		},
		Tags: make([]Tag, 0, len(g.layouts)),
	}

	for _, layout := range g.layouts {
		g.generateSchema(spec, layout)
	}

	return spec
}

func (g *Generator) generateSchema(spec *Spec, d convention.Derived) {
	name := d.Source.Name
	title := titleCase(name)

	desc := d.Source.DisplayName
	if d.Source.GroupID != "" {
		desc = strings.TrimSpace(desc + " (group " + d.Source.GroupID + ")")
	}
	spec.Tags = append(spec.Tags, Tag{Name: name, Description: desc})

	spec.Components.Schemas[title+"Create"] = g.buildWriteSchema(d, true)
	spec.Components.Schemas[title+"Update"] = g.buildWriteSchema(d, false)
	spec.Components.Schemas[title] = g.buildRecordSchema(d)
	spec.Components.Schemas[title+"Page"] = &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"data":       {Type: "array", Items: ref(title)},
			"total":      {Type: "integer", Description: "Records matching the query"},
			"page":       {Type: "integer"},
			"limit":      {Type: "integer"},
			"totalPages": {Type: "integer"},
		},
	}

	basePath := "/records/" + name
	g.addListPath(spec, d, basePath, title)
	g.addCreatePath(spec, d, basePath, title)
	g.addItemPaths(spec, d, basePath+"/{id}", title)
}

// buildWriteSchema describes a create (all required fields enforced) or
// update (partial) payload. System fields are never accepted.
func (g *Generator) buildWriteSchema(d convention.Derived, create bool) *Schema {
	s := &Schema{Type: "object", Properties: make(map[string]*Schema)}
	for _, f := range d.Fields {
		if f.Implicit {
			continue
		}
		s.Properties[f.Name] = g.fieldToSchema(f)
		if create && f.Required {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

func (g *Generator) buildRecordSchema(d convention.Derived) *Schema {
	s := &Schema{Type: "object", Properties: make(map[string]*Schema)}
	for _, f := range d.Fields {
		fs := g.fieldToSchema(f)
		fs.ReadOnly = f.Implicit
		s.Properties[f.Name] = fs
	}
	s.Required = []string{d.IDField}
	return s
}

// fieldToSchema converts a layout slot to a JSON Schema.
func (g *Generator) fieldToSchema(f convention.DerivedField) *Schema {
	s := &Schema{}

	switch f.Slot {
	case convention.SlotReference:
		s.Type = "string"
		s.Description = fmt.Sprintf("Identifier of a %s record (%s)", f.Ref, f.Relationship)
		return s
	case convention.SlotReferences:
		s.Type = "array"
		s.Items = &Schema{Type: "string"}
		s.Description = fmt.Sprintf("Identifiers of %s records (%s)", f.Ref, f.Relationship)
		return s
	}

	switch f.Type {
	case schema.FieldTypeString:
		s.Type = "string"
	case schema.FieldTypeNumber:
		s.Type = "number"
	case schema.FieldTypeBoolean:
		s.Type = "boolean"
	case schema.FieldTypeDate:
		s.Type = "string"
		s.Format = "date-time"
		s.Example = "2024-01-15T10:30:00.000Z"
	case schema.FieldTypeObject:
		s.Type = "object"
	case schema.FieldTypeArray:
		s.Type = "array"
		s.Items = &Schema{}
	default:
		s.Type = "string"
	}

	if f.Default != nil {
		s.Default = f.Default
	}
	if f.Unique && !f.Implicit {
		s.Description = "Unique across records"
	}
	return s
}

func (g *Generator) addListPath(spec *Spec, d convention.Derived, basePath, title string) {
	path := spec.Paths[basePath]

	var sortable []string
	for _, f := range d.Fields {
		switch f.Type {
		case schema.FieldTypeString, schema.FieldTypeNumber, schema.FieldTypeBoolean, schema.FieldTypeDate:
			sortable = append(sortable, f.Name)
		}
	}

	description := fmt.Sprintf("List %s records, newest first by default.", d.Source.Name)
	if fields := d.StringFields(); len(fields) > 0 {
		description += fmt.Sprintf("\n\n**Searchable fields:** %s", strings.Join(fields, ", "))
	}

	path.Get = &Operation{
		Tags:        []string{d.Source.Name},
		Summary:     "List " + d.Source.Name,
		Description: description,
		OperationID: "list" + title,
		Parameters: []Parameter{
			{Name: "page", In: "query", Description: "1-based page number", Schema: &Schema{Type: "integer", Default: 1}},
			{Name: "limit", In: "query", Description: "Page size", Schema: &Schema{Type: "integer"}},
			{Name: "sort", In: "query", Description: "Field to sort by", Schema: &Schema{Type: "string", Enum: sortable, Default: convention.CreatedAt}},
			{Name: "order", In: "query", Schema: &Schema{Type: "string", Enum: []string{"asc", "desc"}, Default: "desc"}},
			{Name: "search", In: "query", Description: "Case-insensitive substring of any string field", Schema: &Schema{Type: "string"}},
			{
				Name:        "filters",
				In:          "query",
				Description: `JSON object of field to value, or to an operator map using $eq, $ne, $gt, $gte, $lt, $lte, $in, $nin`,
				Schema:      &Schema{Type: "string", Example: `{"` + d.IDField + `":{"$in":["a","b"]}}`},
			},
		},
		Responses: map[string]Response{
			"200": jsonResponse("Successful response", ref(title+"Page")),
			"404": errorResponse("Schema not found"),
			"422": errorResponse("Invalid query parameters"),
		},
	}

	spec.Paths[basePath] = path
}

func (g *Generator) addCreatePath(spec *Spec, d convention.Derived, basePath, title string) {
	path := spec.Paths[basePath]

	path.Post = &Operation{
		Tags:        []string{d.Source.Name},
		Summary:     "Create " + d.Source.Name,
		Description: fmt.Sprintf("Create a %s record. The %s is generated; unknown fields are ignored.", d.Source.Name, d.IDField),
		OperationID: "create" + title,
		RequestBody: &RequestBody{
			Required: true,
			Content:  map[string]MediaType{"application/json": {Schema: ref(title + "Create")}},
		},
		Responses: map[string]Response{
			"201": jsonResponse("Record created", ref(title)),
			"400": errorResponse("Malformed JSON"),
			"404": errorResponse("Schema not found"),
			"409": errorResponse("Duplicate unique field"),
			"422": errorResponse("Validation or reference failure"),
		},
	}

	spec.Paths[basePath] = path
}

func (g *Generator) addItemPaths(spec *Spec, d convention.Derived, itemPath, title string) {
	path := spec.Paths[itemPath]
	idParam := []Parameter{
		{Name: "id", In: "path", Required: true, Description: "Value of " + d.IDField, Schema: &Schema{Type: "string"}},
	}

	path.Get = &Operation{
		Tags:        []string{d.Source.Name},
		Summary:     "Get " + d.Source.Name,
		OperationID: "get" + title,
		Parameters:  idParam,
		Responses: map[string]Response{
			"200": jsonResponse("Successful response", ref(title)),
			"404": errorResponse("Record not found"),
		},
	}

	update := &Operation{
		Tags:        []string{d.Source.Name},
		Summary:     "Update " + d.Source.Name,
		Description: "Only supplied fields change. The identifier cannot be changed.",
		OperationID: "update" + title,
		Parameters:  idParam,
		RequestBody: &RequestBody{
			Required: true,
			Content:  map[string]MediaType{"application/json": {Schema: ref(title + "Update")}},
		},
		Responses: map[string]Response{
			"200": jsonResponse("Record updated", ref(title)),
			"400": errorResponse("Malformed JSON"),
			"404": errorResponse("Record not found"),
			"409": errorResponse("Duplicate unique field"),
			"422": errorResponse("Validation or reference failure"),
		},
	}
	path.Put = update
	path.Patch = update

	path.Delete = &Operation{
		Tags:        []string{d.Source.Name},
		Summary:     "Delete " + d.Source.Name,
		OperationID: "delete" + title,
		Parameters:  idParam,
		Responses: map[string]Response{
			"200": jsonResponse("Record deleted", &Schema{
				Type:       "object",
				Properties: map[string]*Schema{"message": {Type: "string"}},
			}),
			"404": errorResponse("Record not found"),
		},
	}

	spec.Paths[itemPath] = path
}

func errorSchema() *Schema {
	return &Schema{
		Type: "object",
		Properties: map[string]*Schema{
			"error": {Type: "string"},
			"kind": {Type: "string", Enum: []string{
				"not_found", "validation", "conflict", "referential_integrity", "internal",
			}},
			"field": {Type: "string"},
			"fields": {Type: "array", Items: &Schema{
				Type: "object",
				Properties: map[string]*Schema{
					"field":   {Type: "string"},
					"rule":    {Type: "string"},
					"message": {Type: "string"},
				},
			}},
		},
		Required: []string{"error", "kind"},
	}
}

func ref(name string) *Schema {
	return &Schema{Ref: "#/components/schemas/" + name}
}

func jsonResponse(desc string, s *Schema) Response {
	return Response{Description: desc, Content: map[string]MediaType{"application/json": {Schema: s}}}
}

func errorResponse(desc string) Response {
	return jsonResponse(desc, ref("Error"))
}

// titleCase upper-cases the first letter of name for component and
// operation names.
func titleCase(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// ToJSON converts the spec to indented JSON.
func (spec *Spec) ToJSON() ([]byte, error) {
	return json.MarshalIndent(spec, "", "  ")
}
