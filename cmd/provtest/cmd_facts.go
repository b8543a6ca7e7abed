package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/provtest/pkg/cli"
	"github.com/newtron-network/provtest/pkg/facts"
	"github.com/newtron-network/provtest/pkg/util"
)

func newFactsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Show the target facts the harness filters on",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			fc := facts.New(tgt)
			if _, err := fc.Load(ctx); err != nil {
				return err
			}
			if _, err := fc.VDC(ctx); err != nil {
				util.Warnf("vdc: %v", err)
			}
			snap := fc.Snapshot()

			if asJSON {
				data, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Target: %s (%s mode)\n\n", tgt.Name(), tgt.Mode())
			t := cli.NewTable("FACT", "VALUE")
			row := func(name, value string) {
				if value == "" {
					value = "(unknown)"
				}
				t.Row(name, value)
			}
			row("os", snap.OS)
			row("platform", snap.Platform)
			row("pid", snap.PID)
			row("hardware_type", snap.HardwareType)
			row("version", snap.Version)
			row("image_train", snap.ImageTrain)
			row("system_image", snap.SystemImage)
			if snap.VDC != "" {
				row("vdc", fmt.Sprintf("%s (%d)", snap.VDC, snap.VDCID))
			}
			t.Flush()
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print facts as JSON")
	return cmd
}
