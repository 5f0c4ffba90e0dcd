package events

import (
	"context"

	"github.com/alfredjeanlab/o3gate/internal/model"
)

// Event topic constants
const (
	// TopicTrigger carries inbound trigger commands for the gate.
	TopicTrigger = "o3gate.trigger"

	// Cycle progress, published by the engine.
	TopicCycleStarted  = "o3gate.cycle.started"
	TopicCyclePhase    = "o3gate.cycle.phase"
	TopicCycleFinished = "o3gate.cycle.finished"
)

// Event types

type CycleStarted struct {
	CycleID    string          `json:"cycle_id"`
	Kind       model.CycleKind `json:"kind"`
	FacilityID int             `json:"facility_id"`
}

type PhaseChanged struct {
	CycleID string      `json:"cycle_id"`
	Phase   model.Phase `json:"phase"`
}

type CycleFinished struct {
	CycleID    string          `json:"cycle_id"`
	Kind       model.CycleKind `json:"kind"`
	Outcome    model.Outcome   `json:"outcome"`
	DurationMS int64           `json:"duration_ms"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
