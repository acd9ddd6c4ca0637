package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/artpar/masterdata/core/errs"
	"github.com/artpar/masterdata/core/formatter"
	"github.com/artpar/masterdata/core/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage schemas",
	Long: `Create, inspect and delete schemas.

Schema files are YAML, one schema per document. Documents are applied in
order, so masters must come before the schemas that reference them.

Example file:
  name: city
  fields:
    - name: cityName
      type: string
      required: true
  ---
  name: store
  groupId: retail
  fields:
    - name: storeName
      type: string
    - name: city
      type: master
      masterType: city
      relationshipType: many-to-one`,
}

var schemaApplyCmd = &cobra.Command{
	Use:   "apply -f FILE",
	Short: "Create or update schemas from a YAML file",
	RunE:  runSchemaApply,
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schemas",
	Args:  cobra.NoArgs,
	RunE:  runSchemaList,
}

var schemaGetCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Print a schema definition as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaGet,
}

var schemaDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a schema",
	Long: `Delete a schema.

Deletion is refused while other schemas reference it. With --force the
schema's records are removed as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runSchemaDelete,
}

var (
	schemaFile  string
	schemaGroup string
	schemaForce bool
)

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.AddCommand(schemaApplyCmd, schemaListCmd, schemaGetCmd, schemaDeleteCmd)

	schemaApplyCmd.Flags().StringVarP(&schemaFile, "file", "f", "", "schema YAML file (required)")
	schemaApplyCmd.MarkFlagRequired("file")
	schemaListCmd.Flags().StringVar(&schemaGroup, "group", "", "only schemas in this group")
	schemaDeleteCmd.Flags().BoolVar(&schemaForce, "force", false, "also delete the schema's records")
}

func runSchemaApply(cmd *cobra.Command, args []string) error {
	defs, err := schema.ParseFile(schemaFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	out := cmd.OutOrStdout()
	for _, def := range defs {
		_, err := a.Schemas.Get(ctx, def.Name)
		switch {
		case errs.Is(err, errs.KindNotFound):
			if _, err := a.Schemas.Create(ctx, def); err != nil {
				return fmt.Errorf("create %s: %w", def.Name, err)
			}
			fmt.Fprintf(out, "%s schema %s created\n", checkMark, def.Name)
		case err != nil:
			return err
		default:
			if _, err := a.Schemas.Update(ctx, def.Name, def); err != nil {
				return fmt.Errorf("update %s: %w", def.Name, err)
			}
			fmt.Fprintf(out, "%s schema %s updated\n", checkMark, def.Name)
		}
	}
	return nil
}

func runSchemaList(cmd *cobra.Command, args []string) error {
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

	var defs []schema.Schema
	if schemaGroup != "" {
		defs, err = a.Schemas.ListByGroup(ctx, schemaGroup)
	} else {
		defs, err = a.Schemas.List(ctx)
	}
	if err != nil {
		return err
	}

	rows := make([]map[string]any, len(defs))
	for i, def := range defs {
		masters := make([]string, 0)
		for _, mf := range def.MasterFields() {
			masters = append(masters, mf.MasterType)
		}
		rows[i] = map[string]any{
			"name":    def.Name,
			"groupId": def.GroupID,
			"idField": def.IDField(),
			"fields":  len(def.Fields),
			"masters": masters,
		}
	}

	l := formatter.Listing{Kind: "schemas", Columns: []string{"name", "groupId", "idField", "fields", "masters"}}
	return f.FormatList(cmd.OutOrStdout(), l, rows, formatter.FormatOptions{})
}

func runSchemaGet(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	def, err := a.Schemas.Get(ctx, args[0])
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(def)
}

func runSchemaDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	if err := a.Schemas.Delete(ctx, args[0], schemaForce); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s schema %s deleted\n", checkMark, args[0])
	return nil
}
