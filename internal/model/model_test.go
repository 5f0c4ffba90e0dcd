package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeTrigger_Native(t *testing.T) {
	ev, err := DecodeTrigger([]byte(`{"facility_id":12,"action":"start_process"}`))
	if err != nil {
		t.Fatalf("DecodeTrigger: %v", err)
	}
	if ev.FacilityID != 12 || ev.Action != ActionStartProcess {
		t.Errorf("got %+v, want facility 12 start_process", ev)
	}
}

func TestDecodeTrigger_RouteActions(t *testing.T) {
	tests := []struct {
		route string
		want  Action
	}{
		{RouteAutoLiberation, ActionStartProcess},
		{RouteAutoEmergencyCall, ActionAbort},
		{RouteManualLiberation, ActionOpenBackDoor},
	}
	for _, tt := range tests {
		raw, _ := json.Marshal(map[string]any{"asset_location_id": 7, "route_action_type": tt.route})
		ev, err := DecodeTrigger(raw)
		if err != nil {
			t.Fatalf("DecodeTrigger(%s): %v", tt.route, err)
		}
		if ev.FacilityID != 7 {
			t.Errorf("%s: facility = %d, want 7", tt.route, ev.FacilityID)
		}
		if ev.Action != tt.want {
			t.Errorf("%s: action = %q, want %q", tt.route, ev.Action, tt.want)
		}
	}
}

func TestDecodeTrigger_Rejects(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"action":"abort"}`,
		`{"facility_id":1}`,
		`{"facility_id":1,"action":"explode"}`,
		`{"asset_location_id":1,"route_action_type":"MANUAL_BLOCK"}`,
	} {
		if _, err := DecodeTrigger([]byte(raw)); err == nil {
			t.Errorf("DecodeTrigger(%s): expected error", raw)
		}
	}
}

func TestParseAction(t *testing.T) {
	for in, want := range map[string]Action{
		"start":          ActionStartProcess,
		" Abort ":        ActionAbort,
		"open-back":      ActionOpenBackDoor,
		"open_back_door": ActionOpenBackDoor,
	} {
		got, err := ParseAction(in)
		if err != nil {
			t.Fatalf("ParseAction(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseAction(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseAction("flush"); err == nil {
		t.Error("expected error for unknown action")
	}
}

func validMachine() MachineConfig {
	return MachineConfig{
		FacilityID: 3,
		Cycle:      CycleConfig{O3Flush: 30 * time.Second, EntranceTimeout: 20 * time.Second},
		Pins:       DefaultPinLayout(),
	}
}

func TestValidateMachineConfig_Valid(t *testing.T) {
	c := validMachine()
	if err := ValidateMachineConfig(&c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateMachineConfig_Errors(t *testing.T) {
	c := validMachine()
	c.FacilityID = 0
	c.Cycle.O3Flush = 0
	c.Cycle.EntranceTimeout = -time.Second
	c.Pins.Back.Open = c.Pins.Front.Open

	err := ValidateMachineConfig(&c)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	fields := map[string]bool{}
	for _, fe := range ve.Errors {
		fields[fe.Field] = true
	}
	for _, f := range []string{"facility_id", "o3_flush", "entrance_timeout", "pins.back.open"} {
		if !fields[f] {
			t.Errorf("expected error on %q, got %v", f, ve)
		}
	}
}

func TestPinLayout_Gate(t *testing.T) {
	l := DefaultPinLayout()
	if l.Gate(GateFront) != l.Front || l.Gate(GateBack) != l.Back {
		t.Error("Gate did not select the matching pins")
	}
	if len(l.Outputs()) != 3 || len(l.Inputs()) != 4 {
		t.Errorf("got %d outputs, %d inputs", len(l.Outputs()), len(l.Inputs()))
	}
}

func TestDuration_Text(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if time.Duration(d) != 90*time.Second {
		t.Errorf("got %v, want 1m30s", time.Duration(d))
	}
	out, _ := d.MarshalText()
	if string(out) != "1m30s" {
		t.Errorf("MarshalText = %q", out)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("expected error for bad duration")
	}
}
