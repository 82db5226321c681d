package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show pipeline connectivity, snapshot sequence and driver counts",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := fleetClient.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetching status: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), rep)
		}
		printStatus(cmd.OutOrStdout(), rep)
		return nil
	},
}

var watchersCmd = &cobra.Command{
	Use:     "watchers",
	Short:   "List sessions currently streaming snapshots",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := httpClient()
		if err != nil {
			return err
		}
		entries, err := c.Watchers(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing watchers: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		printWatchers(cmd.OutOrStdout(), entries)
		return nil
	},
}
