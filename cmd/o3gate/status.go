package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the gate's cycle state, driver and transport",
	GroupID: "gate",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := gateClient.Status(context.Background())
		if err != nil {
			return fmt.Errorf("querying status: %w", err)
		}
		if jsonOutput {
			return printJSON(st)
		}
		printStatusTable(os.Stdout, st)
		return nil
	},
}
