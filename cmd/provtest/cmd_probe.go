package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/provtest/pkg/cli"
	"github.com/newtron-network/provtest/pkg/probe"
	"github.com/newtron-network/provtest/pkg/util"
)

func newProbeCmd() *cobra.Command {
	var resource, prop, capability string
	var values []string

	cmd := &cobra.Command{
		Use:   "probe <interface>",
		Short: "Show interface capabilities and which values a provider accepts",
		Long: `Show the capability table of an interface. With --prop, also try each
candidate value through the provider and report which ones it accepts.

  provtest probe ethernet1/4
  provtest probe ethernet1/4 --prop speed --capability Speed --values auto
  provtest probe ethernet1/4 --resource cisco_interface --prop duplex --values auto,full`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			iface := args[0]
			ctx := context.Background()
			tgt, err := connect(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := tgt.Close(); err != nil {
					util.Warnf("closing target: %v", err)
				}
			}()

			out, err := tgt.Show(ctx, "show interface "+iface+" capabilities")
			if err != nil {
				return err
			}
			caps := probe.ParseCapabilities(out)

			names := make([]string, 0, len(caps))
			for name := range caps {
				names = append(names, name)
			}
			sort.Strings(names)
			t := cli.NewTable("CAPABILITY", "VALUES")
			for _, name := range names {
				t.Row(name, strings.Join(caps[name], ","))
			}
			t.Flush()

			if prop == "" {
				return nil
			}
			candidates := caps.Candidates(capability, values...)
			if len(candidates) == 0 {
				return fmt.Errorf("no candidates for %s: pass --capability or --values", prop)
			}
			base := tgt.ResourceCommand(resource, iface, prop+"=")
			accepted, err := probe.Probe(ctx, tgt, base, candidates)
			if err != nil {
				return err
			}
			fmt.Printf("\n%s %s accepts %s: %s\n", resource, iface, prop, strings.Join(accepted, ","))
			return nil
		},
	}

	cmd.Flags().StringVar(&resource, "resource", "network_interface", "resource type to probe through")
	cmd.Flags().StringVar(&prop, "prop", "", "property to probe")
	cmd.Flags().StringVar(&capability, "capability", "", "capability holding the candidate values")
	cmd.Flags().StringSliceVar(&values, "values", nil, "extra candidate values")
	return cmd
}
