package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alfredjeanlab/o3gate/internal/config"
	"github.com/alfredjeanlab/o3gate/internal/machine"
	"github.com/alfredjeanlab/o3gate/internal/model"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Inspect the machine configuration",
	GroupID: "system",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved machine configuration as TOML",
	Long: `Print the resolved machine configuration as TOML.

By default the record is resolved locally from the same O3GATE_* environment
"o3gate serve" reads. With --remote the running controller at --http-url is
asked for the record it is using. The TOML output is a valid machine file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, _ := cmd.Flags().GetBool("remote")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var (
			mc  *model.MachineConfig
			err error
		)
		if remote {
			mc, err = gateClient.Machine(ctx)
		} else {
			mc, err = resolveLocalMachine(ctx)
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(mc)
		}
		return machine.Encode(os.Stdout, mc)
	},
}

func resolveLocalMachine(ctx context.Context) (*model.MachineConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	mc, err := machine.Resolve(ctx, machineProvider(cfg), cfg.FacilityID)
	if err != nil {
		return nil, fmt.Errorf("resolving machine config: %w", err)
	}
	return mc, nil
}

func init() {
	configShowCmd.Flags().Bool("remote", false, "fetch the record from the running controller")
	configCmd.AddCommand(configShowCmd)
}
