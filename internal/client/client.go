// Package client provides a transport-agnostic interface for the o3gate
// service and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"
	"encoding/json"

	"github.com/alfredjeanlab/o3gate/internal/model"
)

// GateClient is the interface the o3gate CLI commands use to talk to a
// running gate controller.
type GateClient interface {
	Health(ctx context.Context) (string, error)
	Status(ctx context.Context) (*StatusResponse, error)
	Machine(ctx context.Context) (*model.MachineConfig, error)
	Trigger(ctx context.Context, req *TriggerRequest) (*TriggerResponse, error)
	StreamEvents(ctx context.Context, topics []string, cycleID string, fn func(Event) error) error

	Close() error
}

// StatusResponse is the controller's view of itself.
type StatusResponse struct {
	FacilityID         int               `json:"facility_id"`
	Driver             string            `json:"driver"`
	Simulated          bool              `json:"simulated"`
	TransportConnected bool              `json:"transport_connected"`
	Version            string            `json:"version,omitempty"`
	Cycle              model.CycleStatus `json:"cycle"`
}

// TriggerRequest holds parameters for a local trigger. A nil FacilityID
// targets the controller's own facility.
type TriggerRequest struct {
	Action     model.Action `json:"action"`
	FacilityID *int         `json:"facility_id,omitempty"`
}

// TriggerResponse reports what the gate did with a trigger.
type TriggerResponse struct {
	Action   model.Action `json:"action"`
	Decision string       `json:"decision"`
	Accepted bool         `json:"accepted"`
}

// Event is one message from the controller's event stream. ID is zero for
// the status snapshot sent when a stream opens.
type Event struct {
	ID    uint64          `json:"id,omitempty"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}
