package formatter

import (
	"io"

	"github.com/goccy/go-json"
)

// JSONFormatter formats output as JSON.
type JSONFormatter struct{}

// Name returns the formatter name.
func (f *JSONFormatter) Name() string {
	return "json"
}

// FormatList formats rows as {"kind", "count", "data"}.
func (f *JSONFormatter) FormatList(w io.Writer, l Listing, rows []map[string]any, opts FormatOptions) error {
	data := projectAll(rows, opts.Columns)
	return f.encode(w, map[string]any{
		"kind":  l.Kind,
		"count": len(data),
		"data":  data,
	}, opts.Compact)
}

// FormatRecord formats a single row as {"kind", "data"}.
func (f *JSONFormatter) FormatRecord(w io.Writer, l Listing, row map[string]any, opts FormatOptions) error {
	var data any
	if row != nil {
		data = project(row, opts.Columns)
	}
	return f.encode(w, map[string]any{
		"kind": l.Kind,
		"data": data,
	}, opts.Compact)
}

// FormatError formats an error as JSON.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	return f.encode(w, map[string]any{"error": err.Error()}, false)
}

func (f *JSONFormatter) encode(w io.Writer, data any, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(data)
}
