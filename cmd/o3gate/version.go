package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Print the o3gate version",
	GroupID: "system",
	// No API client needed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return printJSON(map[string]string{"version": version, "go": runtime.Version()})
		}
		fmt.Printf("o3gate %s (%s)\n", version, runtime.Version())
		return nil
	},
}
