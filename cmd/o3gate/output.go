package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alfredjeanlab/o3gate/internal/client"
	"github.com/alfredjeanlab/o3gate/internal/ui"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func renderDecision(decision string, accepted bool) string {
	if accepted {
		return ui.RenderOK(decision)
	}
	return ui.RenderWarn(decision)
}

func printStatusTable(w io.Writer, st *client.StatusResponse) {
	driver := st.Driver
	if st.Simulated {
		driver += " " + ui.RenderWarn("(simulated)")
	}
	fmt.Fprintf(w, "Facility:    %d\n", st.FacilityID)
	fmt.Fprintf(w, "Driver:      %s\n", driver)
	fmt.Fprintf(w, "Transport:   %s\n", renderTransport(st.TransportConnected))
	fmt.Fprintf(w, "In Process:  %s\n", ui.RenderBool(st.Cycle.InProcess, true))
	fmt.Fprintf(w, "Phase:       %s\n", ui.RenderPhase(st.Cycle.Phase))
	if st.Cycle.CycleID != "" {
		fmt.Fprintf(w, "Cycle:       %s (%s)\n", st.Cycle.CycleID, st.Cycle.Kind)
	}
	if st.Cycle.AbortRequested {
		fmt.Fprintf(w, "Abort:       %s\n", ui.RenderWarn("requested"))
	}
	if st.Version != "" {
		fmt.Fprintf(w, "Version:     %s\n", ui.RenderMuted(st.Version))
	}
}

func renderTransport(up bool) string {
	if up {
		return ui.RenderOK("connected")
	}
	return ui.RenderFail("disconnected")
}

func formatMillis(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}
