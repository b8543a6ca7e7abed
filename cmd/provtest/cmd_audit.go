package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/provtest/pkg/audit"
	"github.com/newtron-network/provtest/pkg/cli"
	"github.com/newtron-network/provtest/pkg/harness"
)

func newAuditCmd() *cobra.Command {
	var filter audit.Filter
	var path, op, since string
	var showManifest bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show changes provtest pushed to targets",
		Long: `Show the audit log: every preclean, setup, restore, apply and re-apply a run
pushed to a target.

  provtest audit --suite cisco_vlan
  provtest audit --failures --since 24h
  provtest audit --case non_default --manifest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.Operation = audit.Operation(op)
			if since != "" {
				d, err := time.ParseDuration(since)
				if err != nil {
					return fmt.Errorf("--since: %w", err)
				}
				filter.StartTime = time.Now().Add(-d)
			}

			logPath := auditLogPath(path)
			events, err := audit.ReadFile(logPath, filter)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Printf("No audit events in %s\n", logPath)
				return nil
			}

			if showManifest {
				for _, e := range events {
					fmt.Printf("%s %s %s/%s %s exit %d\n", e.Timestamp.Format(harness.DateTimeFormat),
						e.Target, e.Suite, e.Case, e.Operation, e.ExitCode)
					if e.Manifest != "" {
						fmt.Println(e.Manifest)
					}
				}
				return nil
			}

			t := cli.NewTable("TIME", "TARGET", "SUITE", "CASE", "OP", "EXIT", "RESULT")
			for _, e := range events {
				result := cli.Result("ok")
				if !e.Success {
					result = cli.Result("failed")
					if e.Error != "" {
						result += " " + e.Error
					}
				}
				t.Row(e.Timestamp.Format(harness.DateTimeFormat), e.Target, e.Suite, e.Case,
					string(e.Operation), strconv.Itoa(e.ExitCode), result)
			}
			t.Flush()
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "log", "", "audit log path (default from settings)")
	cmd.Flags().StringVar(&filter.Target, "target", "", "filter by target")
	cmd.Flags().StringVar(&filter.Suite, "suite", "", "filter by suite")
	cmd.Flags().StringVar(&filter.Case, "case", "", "filter by case")
	cmd.Flags().StringVar(&op, "op", "", "filter by operation (apply, reapply, setup, preclean, restore)")
	cmd.Flags().StringVar(&since, "since", "", "only events newer than this duration")
	cmd.Flags().BoolVar(&filter.FailureOnly, "failures", false, "only failed changes")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum number of events")
	cmd.Flags().BoolVar(&showManifest, "manifest", false, "print applied manifests")
	return cmd
}
