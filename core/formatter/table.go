package formatter

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
)

// TableFormatter formats output as aligned text tables.
type TableFormatter struct{}

// Name returns the formatter name.
func (f *TableFormatter) Name() string {
	return "table"
}

// FormatList formats rows as a table.
func (f *TableFormatter) FormatList(w io.Writer, l Listing, rows []map[string]any, opts FormatOptions) error {
	if len(rows) == 0 {
		fmt.Fprintf(w, "No %s found.\n", plural(l.Kind))
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	columns := opts.columns(l)

	if !opts.NoHeader {
		headers := make([]string, len(columns))
		for i, col := range columns {
			headers[i] = strings.ToUpper(col)
		}
		fmt.Fprintln(tw, strings.Join(headers, "\t"))
	}

	for _, row := range rows {
		values := make([]string, len(columns))
		for i, col := range columns {
			values[i] = formatValue(row[col], opts.MaxWidth)
		}
		fmt.Fprintln(tw, strings.Join(values, "\t"))
	}

	return tw.Flush()
}

// FormatRecord formats a single row as key-value pairs.
func (f *TableFormatter) FormatRecord(w io.Writer, l Listing, row map[string]any, opts FormatOptions) error {
	if row == nil {
		fmt.Fprintln(w, "Record not found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, col := range opts.columns(l) {
		fmt.Fprintf(tw, "%s:\t%s\n", col, formatValue(row[col], 0))
	}
	return tw.Flush()
}

// FormatError formats an error message.
func (f *TableFormatter) FormatError(w io.Writer, err error) error {
	_, werr := fmt.Fprintf(w, "Error: %s\n", err.Error())
	return werr
}

func formatValue(val any, maxWidth int) string {
	if val == nil {
		return "-"
	}

	var str string
	switch v := val.(type) {
	case string:
		str = v
	case bool:
		if v {
			str = "yes"
		} else {
			str = "no"
		}
	case float64:
		str = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		str = strconv.Itoa(v)
	case int64:
		str = strconv.FormatInt(v, 10)
	case time.Time:
		str = v.UTC().Format(time.RFC3339)
	case []string:
		str = strings.Join(v, ",")
	default:
		b, _ := json.Marshal(v)
		str = string(b)
	}

	if maxWidth > 3 && len(str) > maxWidth {
		str = str[:maxWidth-3] + "..."
	}
	return str
}

func plural(kind string) string {
	switch {
	case kind == "":
		return "records"
	case strings.HasSuffix(kind, "s"):
		return kind
	default:
		return kind + " records"
	}
}
