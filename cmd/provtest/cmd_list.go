package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/provtest/pkg/cli"
	"github.com/newtron-network/provtest/pkg/harness"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [suite]",
		Short: "List available suites, or the cases of one suite",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := resolveSuitesDir()
			if len(args) == 1 {
				path, err := harness.ResolveSuitePath(dir, args[0])
				if err != nil {
					return err
				}
				s, err := harness.ParseSuite(path)
				if err != nil {
					return err
				}
				listCases(s)
				return nil
			}

			suites, err := harness.ParseAllSuites(dir)
			if err != nil {
				return err
			}
			if len(suites) == 0 {
				fmt.Printf("No suites found in %s/\n", dir)
				return nil
			}
			if harness.HasRequires(suites) {
				if suites, err = harness.ValidateDependencyGraph(suites); err != nil {
					return err
				}
			}

			t := cli.NewTable("SUITE", "RESOURCE", "RUNS", "REQUIRES", "DESCRIPTION")
			for _, s := range suites {
				t.Row(s.Name, s.Resource, strconv.Itoa(s.RunCount()), strings.Join(s.Requires, ","), s.Description)
			}
			t.Flush()
			return nil
		},
	}
}

func listCases(s *harness.Suite) {
	fmt.Printf("%s (%s)\n", cli.Bold(s.Name), s.Resource)
	if s.Description != "" {
		fmt.Printf("  %s\n", s.Description)
	}
	fmt.Println()

	t := cli.NewTable("ID", "TITLE", "ENSURE", "CODES", "DESCRIPTION").WithPrefix("  ")
	for i := range s.Cases {
		c := &s.Cases[i]
		ensure := make([]string, len(c.Ensure))
		for j, e := range c.Ensure {
			ensure[j] = string(e)
		}
		codes := make([]string, len(c.Code))
		for j, code := range c.Code {
			codes[j] = strconv.Itoa(code)
		}
		desc := c.Description
		if c.Negative() {
			desc = strings.TrimSpace("(negative) " + desc)
		}
		t.Row(c.ID, c.Title, strings.Join(ensure, ","), strings.Join(codes, ","), desc)
	}
	t.Flush()
}
