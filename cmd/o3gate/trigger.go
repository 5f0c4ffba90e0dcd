package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/alfredjeanlab/o3gate/internal/client"
	"github.com/alfredjeanlab/o3gate/internal/events"
	"github.com/alfredjeanlab/o3gate/internal/model"
	"github.com/spf13/cobra"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <start|abort|open-back>",
	Short: "Send a trigger to a gate",
	Long: `Send a trigger to a gate.

With --via http (the default) the trigger is posted to the controller at
--http-url and the gate's decision is printed. With --via nats the trigger
is published on the event bus the way the facility push server does it;
NATS gives no reply, so --facility is required and the decision is only
visible in the controller's logs and metrics.`,
	GroupID:   "gate",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"start", "abort", "open-back"},
	RunE: func(cmd *cobra.Command, args []string) error {
		action, err := model.ParseAction(args[0])
		if err != nil {
			return err
		}
		facility, _ := cmd.Flags().GetInt("facility")
		via, _ := cmd.Flags().GetString("via")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		switch via {
		case "http":
			req := &client.TriggerRequest{Action: action}
			if cmd.Flags().Changed("facility") {
				req.FacilityID = &facility
			}
			resp, err := gateClient.Trigger(ctx, req)
			if err != nil {
				return fmt.Errorf("sending trigger: %w", err)
			}
			if jsonOutput {
				return printJSON(resp)
			}
			fmt.Println(formatTriggerResponse(resp))
			return nil

		case "nats":
			if facility <= 0 {
				return fmt.Errorf("--facility is required with --via nats")
			}
			natsURL, _ := cmd.Flags().GetString("nats-url")
			if natsURL == "" {
				return fmt.Errorf("--nats-url or O3GATE_NATS_URL is required with --via nats")
			}
			subject, _ := cmd.Flags().GetString("subject")
			ev := model.TriggerEvent{FacilityID: facility, Action: action}
			if err := publishTrigger(ctx, natsURL, subject, ev); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(ev)
			}
			fmt.Printf("Published %s for facility %d on %s\n", action, facility, subject)
			return nil
		}
		return fmt.Errorf("unknown transport %q (must be http or nats)", via)
	},
}

// publishTrigger publishes a single trigger and waits for the server to
// acknowledge it.
func publishTrigger(ctx context.Context, natsURL, subject string, ev model.TriggerEvent) error {
	pub, err := events.NewNATSPublisher(natsURL)
	if err != nil {
		return err
	}
	defer pub.Close()

	if err := pub.Publish(ctx, subject, ev); err != nil {
		return fmt.Errorf("publishing trigger: %w", err)
	}
	if err := pub.Flush(ctx); err != nil {
		return fmt.Errorf("flushing trigger: %w", err)
	}
	return nil
}

func formatTriggerResponse(resp *client.TriggerResponse) string {
	return fmt.Sprintf("%s: %s", resp.Action, renderDecision(resp.Decision, resp.Accepted))
}

func init() {
	triggerCmd.Flags().Int("facility", 0, "target facility id (default: the controller's own)")
	triggerCmd.Flags().String("via", "http", "transport (http or nats)")
	triggerCmd.Flags().String("nats-url", os.Getenv("O3GATE_NATS_URL"), "NATS server URL for --via nats")
	triggerCmd.Flags().String("subject", envOr("O3GATE_TRIGGER_SUBJECT", events.TopicTrigger), "NATS subject for --via nats")
}
