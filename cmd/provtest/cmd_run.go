package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/newtron-network/provtest/pkg/facts"
	"github.com/newtron-network/provtest/pkg/harness"
	"github.com/newtron-network/provtest/pkg/util"
)

func newRunCmd() *cobra.Command {
	var opts harness.RunOptions
	var junitPath, reportFile, iface, auditPath string
	var noAudit bool

	cmd := &cobra.Command{
		Use:   "run [suite...]",
		Short: "Run test suites",
		Long: `Run one or more suites against the inventory's target.

A suite name is a file in the suites directory (cisco_vlan.yaml), a file
with a numeric prefix (10-cisco_vlan.yaml), or the name: field of a suite.

Exit status is 0 when nothing failed, 1 when a case failed, and 2 when the
target could not be reached or a case errored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Suites = args
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			// Parse before connecting so suite errors do not cost a login.
			runner := harness.NewRunner(resolveSuitesDir(), nil, nil)
			suites, err := runner.LoadSuites(opts)
			if err != nil {
				return err
			}

			tgt, err := connect(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := tgt.Close(); err != nil {
					util.Warnf("closing target: %v", err)
				}
			}()

			runner.Target = tgt
			runner.Facts = facts.New(tgt)
			runner.Interface = tgt.Inventory().Interface
			if iface != "" {
				runner.Interface = iface
			}
			if !noAudit {
				logger, err := openAuditLog(auditPath)
				if err != nil {
					return err
				}
				defer logger.Close()
				runner.Audit = logger
				runner.User = currentUser()
			}
			progress := harness.NewConsoleProgress(verboseFlag)
			progress.Target = tgt.Name()
			runner.Progress = progress

			results := runner.RunSuites(ctx, suites)

			gen := &harness.ReportGenerator{Target: tgt.Name(), Results: results}
			if path := reportPath(reportFile); path != "" {
				if err := gen.WriteMarkdown(path); err != nil {
					util.Warnf("writing report: %v", err)
				}
			}
			if path := reportPath(junitPath); path != "" {
				if err := gen.WriteJUnit(path); err != nil {
					util.Warnf("writing JUnit report: %v", err)
				}
			}

			if code := exitCode(results); code != exitOK {
				return &exitError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "run all suites in the suites directory")
	cmd.Flags().StringVar(&junitPath, "junit", "", "JUnit XML output path")
	cmd.Flags().StringVar(&reportFile, "report", "report.md", "markdown report path (empty to skip)")
	cmd.Flags().StringVar(&iface, "interface", "", "interface substituted for {{interface}} titles")
	cmd.Flags().StringVar(&auditPath, "audit-log", "", "audit log path (default from settings)")
	cmd.Flags().BoolVar(&noAudit, "no-audit", false, "do not record changes in the audit log")

	return cmd
}
