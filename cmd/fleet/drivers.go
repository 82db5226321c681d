package main

import (
	"time"

	"github.com/spf13/cobra"
)

var driversCmd = &cobra.Command{
	Use:     "drivers [id]",
	Short:   "Show the live driver snapshot, or one driver",
	GroupID: "fleet",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			d, err := fleetClient.Driver(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, d)
			}
			printDriver(out, d, time.Now())
			return nil
		}

		live, _ := cmd.Flags().GetBool("live")
		snap, err := fleetClient.Drivers(ctx, live)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(out, snap)
		}
		printDriverTable(out, snap, time.Now())
		return nil
	},
}

func init() {
	driversCmd.Flags().Bool("live", false, "hide drivers marked offline")
}
