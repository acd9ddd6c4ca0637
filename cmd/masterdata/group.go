package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/masterdata/core/formatter"
	"github.com/artpar/masterdata/domain/group"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage schema groups",
	Long: `Groups categorize schemas. A schema may only name a groupId that exists.`,
}

var groupAddCmd = &cobra.Command{
	Use:   "add ID NAME",
	Short: "Add a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		if err := a.Groups.Create(ctx, group.Group{GroupID: args[0], GroupName: args[1]}); err != nil {
			return fmt.Errorf("add group %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s group %s added\n", checkMark, args[0])
		return nil
	},
}

var groupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List groups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		groups, err := a.Groups.List(ctx)
		if err != nil {
			return err
		}
		rows := make([]map[string]any, len(groups))
		for i, g := range groups {
			rows[i] = map[string]any{"groupId": g.GroupID, "groupName": g.GroupName}
		}
		l := formatter.Listing{Kind: "groups", Columns: []string{"groupId", "groupName"}}
		return f.FormatList(cmd.OutOrStdout(), l, rows, formatter.FormatOptions{})
	},
}

func init() {
	rootCmd.AddCommand(groupCmd)
	groupCmd.AddCommand(groupAddCmd, groupListCmd)
}
