package model

import "time"

// CycleConfig holds the timing of the O3 cycle. It is loaded once at
// startup and never changes afterwards.
type CycleConfig struct {
	O3Flush         time.Duration `json:"o3_flush"`
	EntranceTimeout time.Duration `json:"entrance_timeout"`
}

// MachineConfig is the typed configuration record the facility assigns to
// this gate controller.
type MachineConfig struct {
	FacilityID int         `json:"facility_id"`
	Cycle      CycleConfig `json:"cycle"`
	Pins       PinLayout   `json:"pins"`
}

// Duration is a time.Duration that reads and writes its text form
// ("30s", "1m30s") in TOML and JSON documents.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
