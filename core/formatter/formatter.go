// Package formatter renders records and schema listings for the CLI in
// table, json or yaml form.
package formatter

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/artpar/masterdata/core/convention"
)

// Formatter converts rows to a specific output format.
type Formatter interface {
	// Name returns the formatter name (e.g., "table", "json", "yaml").
	Name() string

	// FormatList formats a list of rows.
	FormatList(w io.Writer, l Listing, rows []map[string]any, opts FormatOptions) error

	// FormatRecord formats a single row. A nil row means nothing was found.
	FormatRecord(w io.Writer, l Listing, row map[string]any, opts FormatOptions) error

	// FormatError formats an error.
	FormatError(w io.Writer, err error) error
}

// Listing names what is printed and its default column order.
type Listing struct {
	Kind    string
	Columns []string
}

// ForLayout returns the listing for records of a schema: the identifier,
// then author fields, then the audit timestamps and active flag.
func ForLayout(d convention.Derived) Listing {
	cols := []string{d.IDField}
	for _, f := range d.AuthorFields() {
		cols = append(cols, f.Name)
	}
	cols = append(cols, convention.IsActive, convention.CreatedAt, convention.UpdatedAt)
	return Listing{Kind: d.Source.Name, Columns: cols}
}

// FormatOptions configures formatting behavior.
type FormatOptions struct {
	// Columns overrides the listing's columns. For json and yaml it also
	// limits which keys are emitted.
	Columns []string

	// NoHeader disables the header row for tables.
	NoHeader bool

	// Compact minimizes whitespace in json.
	Compact bool

	// MaxWidth truncates long table cells (0 = no limit).
	MaxWidth int
}

func (o FormatOptions) columns(l Listing) []string {
	if len(o.Columns) > 0 {
		return o.Columns
	}
	return l.Columns
}

// project keeps only the requested keys; with none requested the row is
// returned as is.
func project(row map[string]any, columns []string) map[string]any {
	if len(columns) == 0 || row == nil {
		return row
	}
	out := make(map[string]any, len(columns))
	for _, c := range columns {
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}

func projectAll(rows []map[string]any, columns []string) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = project(row, columns)
	}
	return out
}

// Registry manages registered formatters.
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]Formatter
	defaultFmt string
}

// NewRegistry creates a registry holding the table, json and yaml
// formatters with table as the default.
func NewRegistry() *Registry {
	r := &Registry{
		formatters: make(map[string]Formatter),
		defaultFmt: "table",
	}
	for _, f := range []Formatter{&TableFormatter{}, &JSONFormatter{}, &YAMLFormatter{}} {
		r.formatters[f.Name()] = f
	}
	return r
}

// Register adds a formatter.
func (r *Registry) Register(f Formatter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[f.Name()]; exists {
		return fmt.Errorf("formatter %q already registered", f.Name())
	}
	r.formatters[f.Name()] = f
	return nil
}

// Get returns a formatter by name. An empty name selects the default.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaultFmt
	}
	f, ok := r.formatters[name]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (available: %v)", name, r.names())
	}
	return f, nil
}

// List returns the registered formatter names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.formatters))
	for name := range r.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Get returns a formatter from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}
