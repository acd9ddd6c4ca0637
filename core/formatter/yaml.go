package formatter

import (
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats output as YAML.
type YAMLFormatter struct{}

// Name returns the formatter name.
func (f *YAMLFormatter) Name() string {
	return "yaml"
}

// FormatList formats rows as YAML with kind and count.
func (f *YAMLFormatter) FormatList(w io.Writer, l Listing, rows []map[string]any, opts FormatOptions) error {
	data := projectAll(rows, opts.Columns)
	return f.encode(w, map[string]any{
		"kind":  l.Kind,
		"count": len(data),
		"data":  data,
	})
}

// FormatRecord formats a single row as YAML.
func (f *YAMLFormatter) FormatRecord(w io.Writer, l Listing, row map[string]any, opts FormatOptions) error {
	var data any
	if row != nil {
		data = project(row, opts.Columns)
	}
	return f.encode(w, map[string]any{
		"kind": l.Kind,
		"data": data,
	})
}

// FormatError formats an error as YAML.
func (f *YAMLFormatter) FormatError(w io.Writer, err error) error {
	return f.encode(w, map[string]any{"error": err.Error()})
}

func (f *YAMLFormatter) encode(w io.Writer, data any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(data)
}
