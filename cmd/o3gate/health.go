package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alfredjeanlab/o3gate/internal/client"
	"github.com/alfredjeanlab/o3gate/internal/server"
	"github.com/spf13/cobra"
)

func defaultGRPCAddr() string {
	return envOr("O3GATE_SERVER", "localhost:9090")
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the gate controller",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		switch transport {
		case "http":
			status, err := gateClient.Health(ctx)
			if err != nil {
				return fmt.Errorf("checking health: %w", err)
			}
			if jsonOutput {
				if err := printJSON(map[string]string{"status": status}); err != nil {
					return err
				}
			} else {
				fmt.Printf("Health: %s\n", status)
			}
			if status != "ok" {
				return fmt.Errorf("unhealthy: %s", status)
			}
			return nil

		case "grpc":
			addr, _ := cmd.Flags().GetString("server")
			c, err := client.NewGRPCClient(addr)
			if err != nil {
				return fmt.Errorf("failed to connect to server: %w", err)
			}
			defer c.Close()

			overall, err := c.Health(ctx, "")
			if err != nil {
				return fmt.Errorf("checking health: %w", err)
			}
			transportStatus, err := c.Health(ctx, server.TransportService)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
				transportStatus = "unknown"
			}
			if jsonOutput {
				if err := printJSON(map[string]string{"status": overall, "transport": transportStatus}); err != nil {
					return err
				}
			} else {
				fmt.Printf("Health:    %s\n", overall)
				fmt.Printf("Transport: %s\n", transportStatus)
			}
			if overall != "serving" {
				return fmt.Errorf("unhealthy: %s", overall)
			}
			return nil
		}
		return fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
	},
}

func init() {
	healthCmd.Flags().String("transport", "http", "transport protocol (http or grpc)")
	healthCmd.Flags().String("server", defaultGRPCAddr(), "gRPC server address")
}
