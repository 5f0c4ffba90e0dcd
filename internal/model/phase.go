package model

// Phase is a state of the door/O3 cycle state machine.
type Phase string

const (
	PhaseIdle                  Phase = "idle"
	PhaseFrontDoorOpening      Phase = "front_door_opening"
	PhaseFrontDoorOpenWaitPass Phase = "front_door_open_wait_pass"
	PhaseFrontDoorClosing      Phase = "front_door_closing"
	PhaseFlushing              Phase = "flushing"
	PhaseBackDoorOpening       Phase = "back_door_opening"
	PhaseBackDoorOpenWaitPass  Phase = "back_door_open_wait_pass"
	PhaseBackDoorClosing       Phase = "back_door_closing"
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// DoorPhases returns the opening, wait-pass and closing phases of a gate.
func DoorPhases(g GateIndex) (opening, waitPass, closing Phase) {
	if g == GateBack {
		return PhaseBackDoorOpening, PhaseBackDoorOpenWaitPass, PhaseBackDoorClosing
	}
	return PhaseFrontDoorOpening, PhaseFrontDoorOpenWaitPass, PhaseFrontDoorClosing
}

// CycleKind distinguishes the full sterilization cycle from a forced back
// door opening.
type CycleKind string

const (
	CycleO3Process CycleKind = "o3_process"
	CycleBackDoor  CycleKind = "back_door"
)

// Outcome is how a cycle ended. Timeouts and aborts are ordinary outcomes,
// not errors.
type Outcome string

const (
	OutcomeCompleted       Outcome = "completed"
	OutcomeEntranceTimeout Outcome = "entrance_timeout"
	OutcomeAborted         Outcome = "aborted"
	OutcomePanicked        Outcome = "panicked"
)

// CycleStatus is a point-in-time snapshot of the engine.
type CycleStatus struct {
	InProcess      bool      `json:"in_process"`
	AbortRequested bool      `json:"abort_requested"`
	Phase          Phase     `json:"phase"`
	CycleID        string    `json:"cycle_id,omitempty"`
	Kind           CycleKind `json:"kind,omitempty"`
}
