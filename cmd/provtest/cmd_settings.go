package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/provtest/pkg/cli"
	"github.com/newtron-network/provtest/pkg/settings"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage persistent settings",
		Long: `Manage persistent settings stored in ~/.provtest/settings.json
(or $PROVTEST_SETTINGS).

Settings provide defaults for flags:
  - default_inventory: Used when --inventory is not specified
  - suites_dir:        Used when --suites is not specified
  - reports_dir:       Directory for bare --report and --junit file names
  - puppet_bin:        Puppet binary when the inventory does not name one
  - audit_log:         Audit log file (default <reports_dir>/audit.jsonl)

Examples:
  provtest settings show
  provtest settings set default_inventory ~/labs/n9k.yaml
  provtest settings clear`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show current settings",
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Printf("Settings file: %s\n\n", settings.DefaultSettingsPath())

				t := cli.NewTable("SETTING", "VALUE")
				row := func(name, value string) {
					if value == "" {
						value = "(not set)"
					}
					t.Row(name, value)
				}
				row("default_inventory", userSettings.DefaultInventory)
				row("suites_dir", userSettings.SuitesDir)
				row("reports_dir", userSettings.ReportsDir)
				row("puppet_bin", userSettings.PuppetBin)
				row("audit_log", userSettings.AuditLog)
				t.Flush()
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <setting> <value>",
			Short: "Set a setting value",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if !userSettings.Set(args[0], args[1]) {
					return fmt.Errorf("unknown setting %q (%s)", args[0], strings.Join(settings.Keys(), ", "))
				}
				if err := userSettings.Save(); err != nil {
					return fmt.Errorf("saving settings: %w", err)
				}
				fmt.Printf("%s = %s\n", args[0], args[1])
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Reset all settings",
			RunE: func(cmd *cobra.Command, args []string) error {
				userSettings.Clear()
				if err := userSettings.Save(); err != nil {
					return fmt.Errorf("saving settings: %w", err)
				}
				fmt.Println("Settings cleared")
				return nil
			},
		},
	)
	return cmd
}
