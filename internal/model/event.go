package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Action is the operation a trigger event asks the gate to perform.
type Action string

const (
	ActionStartProcess Action = "start_process"
	ActionAbort        Action = "abort"
	ActionOpenBackDoor Action = "open_back_door"
)

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// IsValid checks whether the action is a known value.
func (a Action) IsValid() bool {
	switch a {
	case ActionStartProcess, ActionAbort, ActionOpenBackDoor:
		return true
	}
	return false
}

// ParseAction resolves a CLI or API spelling of an action. Short aliases
// ("start", "open-back") are accepted alongside the canonical values.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start", "start_process", "start-process":
		return ActionStartProcess, nil
	case "abort":
		return ActionAbort, nil
	case "open-back", "open_back", "open_back_door", "open-back-door":
		return ActionOpenBackDoor, nil
	}
	return "", fmt.Errorf("unknown action %q (must be start, abort or open-back)", s)
}

// Route action types emitted by the facility push server. The O3 gate
// reuses three of them for its own commands.
const (
	RouteAutoLiberation    = "AUTO_LIBERATION"
	RouteAutoEmergencyCall = "AUTO_EMERGENCY_CALL"
	RouteManualLiberation  = "MANUAL_LIBERATION"
)

// ActionForRoute maps a push-server route action type to a gate action.
func ActionForRoute(route string) (Action, bool) {
	switch route {
	case RouteAutoLiberation:
		return ActionStartProcess, true
	case RouteAutoEmergencyCall:
		return ActionAbort, true
	case RouteManualLiberation:
		return ActionOpenBackDoor, true
	}
	return "", false
}

// TriggerEvent is a remote command addressed to one facility.
type TriggerEvent struct {
	FacilityID int    `json:"facility_id"`
	Action     Action `json:"action"`
}

// wireTrigger accepts both the native payload and the push server's
// individual-event shape.
type wireTrigger struct {
	FacilityID      *int   `json:"facility_id"`
	Action          string `json:"action"`
	AssetLocationID *int   `json:"asset_location_id"`
	RouteActionType string `json:"route_action_type"`
}

// DecodeTrigger parses a raw transport payload into a TriggerEvent.
func DecodeTrigger(raw []byte) (TriggerEvent, error) {
	var w wireTrigger
	if err := json.Unmarshal(raw, &w); err != nil {
		return TriggerEvent{}, fmt.Errorf("decoding trigger: %w", err)
	}

	var ev TriggerEvent
	switch {
	case w.FacilityID != nil:
		ev.FacilityID = *w.FacilityID
	case w.AssetLocationID != nil:
		ev.FacilityID = *w.AssetLocationID
	default:
		return TriggerEvent{}, fmt.Errorf("decoding trigger: missing facility_id")
	}

	switch {
	case w.Action != "":
		ev.Action = Action(w.Action)
		if !ev.Action.IsValid() {
			return TriggerEvent{}, fmt.Errorf("decoding trigger: unknown action %q", w.Action)
		}
	case w.RouteActionType != "":
		a, ok := ActionForRoute(w.RouteActionType)
		if !ok {
			return TriggerEvent{}, fmt.Errorf("decoding trigger: unmapped route action %q", w.RouteActionType)
		}
		ev.Action = a
	default:
		return TriggerEvent{}, fmt.Errorf("decoding trigger: missing action")
	}

	return ev, nil
}
