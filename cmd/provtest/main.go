// provtest runs provider acceptance suites against a Nexus switch.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/newtron-network/provtest/pkg/settings"
	"github.com/newtron-network/provtest/pkg/util"
	"github.com/newtron-network/provtest/pkg/version"
)

var (
	inventoryFlag string
	suitesFlag    string
	verboseFlag   bool
	logJSONFlag   bool

	userSettings *settings.Settings
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "provtest",
		Short: "Acceptance tests for network device providers",
		Long: `Provtest applies generated manifests to a switch, checks the agent's exit
code, verifies the resource state, and re-applies to confirm idempotence.

Suites are YAML files, one resource type per file.

  provtest list                          # show available suites
  provtest run cisco_vlan -i lab.yaml    # run one suite
  provtest run --all --junit out.xml     # run every suite
  provtest facts                         # show what the harness sees
  provtest probe ethernet1/4             # show interface capabilities`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verboseFlag {
				if err := util.SetLogLevel("debug"); err != nil {
					return err
				}
			}
			if logJSONFlag {
				util.SetJSONFormat()
			}
			var err error
			if userSettings, err = settings.Load(); err != nil {
				util.Warnf("Could not load settings: %v", err)
				userSettings = &settings.Settings{}
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&inventoryFlag, "inventory", "i", "", "inventory file (env PROVTEST_INVENTORY)")
	rootCmd.PersistentFlags().StringVar(&suitesFlag, "suites", "", "suites directory (env PROVTEST_SUITES)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSONFlag, "log-json", false, "JSON log output")

	rootCmd.AddCommand(
		newRunCmd(),
		newListCmd(),
		newFactsCmd(),
		newProbeCmd(),
		newSettingsCmd(),
		newAuditCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				if version.IsDev() {
					fmt.Println("provtest dev build (version is set with -ldflags)")
				} else {
					fmt.Printf("provtest %s\n", version.Info())
				}
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInfra)
	}
}
