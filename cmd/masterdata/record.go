package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/artpar/masterdata/app"
	"github.com/artpar/masterdata/bootstrap"
	"github.com/artpar/masterdata/core/formatter"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Manage records of a schema",
	Long: `Create, list, inspect and delete records.

Payloads are JSON objects. Values are coerced to each field's type, and
master fields must name existing records of the referenced schema.

Examples:
  masterdata record create city -d '{"cityName":"Pune"}'
  masterdata record list store --filter cityId=6f1c2d3e4a5b6c7d
  masterdata record list city --filters '{"population":{"$gte":1000000}}' -o json`,
}

var recordCreateCmd = &cobra.Command{
	Use:   "create SCHEMA",
	Short: "Create a record",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecordCreate,
}

var recordUpdateCmd = &cobra.Command{
	Use:   "update SCHEMA ID",
	Short: "Update fields of a record",
	Args:  cobra.ExactArgs(2),
	RunE:  runRecordUpdate,
}

var recordListCmd = &cobra.Command{
	Use:   "list SCHEMA",
	Short: "List records",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecordList,
}

var recordGetCmd = &cobra.Command{
	Use:   "get SCHEMA ID",
	Short: "Show a record",
	Args:  cobra.ExactArgs(2),
	RunE:  runRecordGet,
}

var recordDeleteCmd = &cobra.Command{
	Use:   "delete SCHEMA ID",
	Short: "Delete a record",
	Args:  cobra.ExactArgs(2),
	RunE:  runRecordDelete,
}

var (
	recordData     string
	recordDataFile string
	recordColumns  []string

	listPage    int
	listLimit   int
	listSort    string
	listOrder   string
	listSearch  string
	listFilter  []string
	listFilters string
)

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.AddCommand(recordCreateCmd, recordUpdateCmd, recordListCmd, recordGetCmd, recordDeleteCmd)

	for _, c := range []*cobra.Command{recordCreateCmd, recordUpdateCmd} {
		c.Flags().StringVarP(&recordData, "data", "d", "", "JSON payload")
		c.Flags().StringVarP(&recordDataFile, "file", "f", "", "read the JSON payload from a file")
	}
	for _, c := range []*cobra.Command{recordListCmd, recordGetCmd} {
		c.Flags().StringSliceVar(&recordColumns, "columns", nil, "columns to show")
	}

	f := recordListCmd.Flags()
	f.IntVar(&listPage, "page", 1, "page number")
	f.IntVar(&listLimit, "limit", 0, "page size (default from config)")
	f.StringVar(&listSort, "sort", "", "sort field (default createdAt)")
	f.StringVar(&listOrder, "order", "", "asc or desc (default desc)")
	f.StringVar(&listSearch, "search", "", "substring to match in any string field")
	f.StringArrayVar(&listFilter, "filter", nil, "exact match as field=value (repeatable)")
	f.StringVar(&listFilters, "filters", "", "filters as a JSON object")
}

func readPayload() (map[string]any, error) {
	data := []byte(recordData)
	if recordDataFile != "" {
		b, err := os.ReadFile(recordDataFile)
		if err != nil {
			return nil, err
		}
		data = b
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("a payload is required (--data or --file)")
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return payload, nil
}

func listing(a *bootstrap.App, schemaName string) (formatter.Listing, error) {
	entry, err := a.Cache.Get(schemaName)
	if err != nil {
		return formatter.Listing{}, err
	}
	return formatter.ForLayout(entry.Accessor.Layout()), nil
}

func printRecord(cmd *cobra.Command, a *bootstrap.App, schemaName string, rec map[string]any) error {
	f, err := output()
	if err != nil {
		return err
	}
	l, err := listing(a, schemaName)
	if err != nil {
		return err
	}
	return f.FormatRecord(cmd.OutOrStdout(), l, rec, formatter.FormatOptions{Columns: recordColumns})
}

func runRecordCreate(cmd *cobra.Command, args []string) error {
	payload, err := readPayload()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	rec, err := a.Records.Create(ctx, args[0], payload)
	if err != nil {
		return err
	}
	return printRecord(cmd, a, args[0], rec)
}

func runRecordUpdate(cmd *cobra.Command, args []string) error {
	payload, err := readPayload()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	rec, err := a.Records.Update(ctx, args[0], args[1], payload)
	if err != nil {
		return err
	}
	return printRecord(cmd, a, args[0], rec)
}

func runRecordGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	rec, err := a.Records.Get(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	return printRecord(cmd, a, args[0], rec)
}

func runRecordList(cmd *cobra.Command, args []string) error {
	params, err := listParams()
	if err != nil {
		return err
	}
	f, err := output()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	page, err := a.Records.List(ctx, args[0], params)
	if err != nil {
		return err
	}
	l, err := listing(a, args[0])
	if err != nil {
		return err
	}

	rows := make([]map[string]any, len(page.Data))
	for i, rec := range page.Data {
		rows[i] = rec
	}
	out := cmd.OutOrStdout()
	if err := f.FormatList(out, l, rows, formatter.FormatOptions{Columns: recordColumns}); err != nil {
		return err
	}
	if f.Name() == "table" && page.Total > 0 {
		fmt.Fprintf(out, "\npage %d of %d (%d records)\n", page.Page, page.TotalPages, page.Total)
	}
	return nil
}

func listParams() (app.ListParams, error) {
	params := app.ListParams{
		Page:   listPage,
		Limit:  listLimit,
		Sort:   listSort,
		Order:  listOrder,
		Search: listSearch,
	}

	if listFilters != "" {
		if err := json.Unmarshal([]byte(listFilters), &params.Filters); err != nil {
			return params, fmt.Errorf("--filters must be a JSON object: %w", err)
		}
	}
	for _, kv := range listFilter {
		field, value, ok := strings.Cut(kv, "=")
		if !ok || field == "" {
			return params, fmt.Errorf("--filter %q: expected field=value", kv)
		}
		if params.Filters == nil {
			params.Filters = make(map[string]any)
		}
		params.Filters[field] = value
	}
	return params, nil
}

func runRecordDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	if err := a.Records.Delete(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s deleted\n", checkMark, args[0], args[1])
	return nil
}
