package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/alfredjeanlab/o3gate/internal/client"
	"github.com/alfredjeanlab/o3gate/internal/events"
	"github.com/alfredjeanlab/o3gate/internal/model"
	"github.com/alfredjeanlab/o3gate/internal/ui"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow cycle progress",
	Long: `Follow cycle progress.

Sources (--via):
  sse   the controller's /v1/events/stream (default without a NATS URL)
  nats  cycle events on o3gate.cycle.> (default with --nats-url)
  poll  GET /v1/status every --interval, printing changes`,
	GroupID: "gate",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats-url")
		interval, _ := cmd.Flags().GetDuration("interval")
		cycleID, _ := cmd.Flags().GetString("cycle")
		via, _ := cmd.Flags().GetString("via")
		if via == "" {
			via = "sse"
			if natsURL != "" {
				via = "nats"
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		switch via {
		case "sse":
			return watchStream(ctx, cycleID)
		case "nats":
			if natsURL == "" {
				return fmt.Errorf("--via nats needs --nats-url or O3GATE_NATS_URL")
			}
			return watchNATS(ctx, natsURL)
		case "poll":
			return watchPoll(ctx, interval)
		}
		return fmt.Errorf("unknown --via %q (want sse, nats or poll)", via)
	},
}

// cycleEvent is the union of the cycle event payloads. Which fields are set
// tells the events apart.
type cycleEvent struct {
	CycleID    string          `json:"cycle_id"`
	Kind       model.CycleKind `json:"kind,omitempty"`
	FacilityID int             `json:"facility_id,omitempty"`
	Phase      model.Phase     `json:"phase,omitempty"`
	Outcome    model.Outcome   `json:"outcome,omitempty"`
	DurationMS int64           `json:"duration_ms,omitempty"`
}

func formatCycleEvent(ev cycleEvent) string {
	id := ui.RenderMuted(ev.CycleID)
	switch {
	case ev.Outcome != "":
		return fmt.Sprintf("%s finished %s in %s", id, ui.RenderOutcome(ev.Outcome), formatMillis(ev.DurationMS))
	case ev.Phase != "":
		return fmt.Sprintf("%s %s", id, ui.RenderPhase(ev.Phase))
	default:
		return fmt.Sprintf("%s started %s for facility %d", id, ev.Kind, ev.FacilityID)
	}
}

// watchNATS prints cycle events from the bus until ctx is done.
func watchNATS(ctx context.Context, natsURL string) error {
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats: disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats: reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe("o3gate.cycle.>")
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			printCycleEvent(raw)
		}
	}
}

// watchStream prints events from the controller's SSE stream until ctx is
// done. The opening status snapshot is printed like a poll result.
func watchStream(ctx context.Context, cycleID string) error {
	return gateClient.StreamEvents(ctx, []string{"o3gate.>"}, cycleID, func(ev client.Event) error {
		if ev.Topic != "o3gate.status" {
			printCycleEvent(ev.Data)
			return nil
		}
		if jsonOutput {
			fmt.Println(string(ev.Data))
			return nil
		}
		var st model.CycleStatus
		if err := json.Unmarshal(ev.Data, &st); err != nil {
			return fmt.Errorf("bad status snapshot: %w", err)
		}
		line, _ := diffStatus(model.CycleStatus{}, st, true)
		fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), line)
		return nil
	})
}

func printCycleEvent(raw []byte) {
	if jsonOutput {
		fmt.Println(string(raw))
		return
	}
	var ev cycleEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: bad event payload: %v\n", err)
		return
	}
	fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), formatCycleEvent(ev))
}

// watchPoll polls the controller status and prints each change.
func watchPoll(ctx context.Context, interval time.Duration) error {
	var prev model.CycleStatus
	first := true
	for {
		st, err := gateClient.Status(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("querying status: %w", err)
		}
		if line, changed := diffStatus(prev, st.Cycle, first); changed {
			if jsonOutput {
				if err := printJSON(st.Cycle); err != nil {
					return err
				}
			} else {
				fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), line)
			}
		}
		prev, first = st.Cycle, false

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// diffStatus describes cur if it differs from prev, or always on the first
// poll.
func diffStatus(prev, cur model.CycleStatus, first bool) (string, bool) {
	if !first && prev == cur {
		return "", false
	}
	line := ui.RenderPhase(cur.Phase)
	if cur.CycleID != "" {
		line = ui.RenderMuted(cur.CycleID) + " " + line
	}
	if cur.AbortRequested {
		line += " " + ui.RenderWarn("(abort requested)")
	}
	return line, true
}

func init() {
	watchCmd.Flags().String("nats-url", os.Getenv("O3GATE_NATS_URL"), "NATS server URL")
	watchCmd.Flags().String("via", "", "event source: sse, nats or poll")
	watchCmd.Flags().String("cycle", "", "only follow this cycle id (sse)")
	watchCmd.Flags().Duration("interval", time.Second, "polling interval")
}
