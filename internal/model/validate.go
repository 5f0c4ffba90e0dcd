package model

import (
	"fmt"
	"strings"
)

// maxBCMLine is the highest GPIO line on the Raspberry Pi header.
const maxBCMLine = 27

// ValidationError collects every rule a record breaks, not just the first.
type ValidationError struct {
	Errors []FieldError
}

// FieldError is one broken rule. Field uses the TOML key path.
type FieldError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failed: ")
	for i, fe := range e.Errors {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(fe.Field)
		b.WriteString(": ")
		b.WriteString(fe.Message)
	}
	return b.String()
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ValidationError) addf(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// orNil returns e as an error only when it holds something.
func (e *ValidationError) orNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// ValidateMachineConfig returns a *ValidationError listing every problem
// with c, or nil.
func ValidateMachineConfig(c *MachineConfig) error {
	ve := new(ValidationError)

	if c.FacilityID <= 0 {
		ve.addf("facility_id", "must be positive, got %d", c.FacilityID)
	}
	if c.Cycle.O3Flush <= 0 {
		ve.addf("o3_flush", "must be a positive duration, got %s", c.Cycle.O3Flush)
	}
	if c.Cycle.EntranceTimeout <= 0 {
		ve.addf("entrance_timeout", "must be a positive duration, got %s", c.Cycle.EntranceTimeout)
	}

	// Outputs first, so a clash names the output line as the owner.
	owner := make(map[Pin]string)
	for _, p := range []struct {
		field string
		pin   Pin
	}{
		{"pins.front.open", c.Pins.Front.Open},
		{"pins.back.open", c.Pins.Back.Open},
		{"pins.o3_valve", c.Pins.O3Valve},
		{"pins.front.ir_beam", c.Pins.Front.IRBeam},
		{"pins.front.closed_switch", c.Pins.Front.ClosedSwitch},
		{"pins.back.ir_beam", c.Pins.Back.IRBeam},
		{"pins.back.closed_switch", c.Pins.Back.ClosedSwitch},
	} {
		if p.pin > maxBCMLine {
			ve.addf(p.field, "BCM line %d out of range", p.pin)
		}
		if prev, taken := owner[p.pin]; taken {
			ve.addf(p.field, "line %d already assigned to %s", p.pin, prev)
			continue
		}
		owner[p.pin] = p.field
	}
	return ve.orNil()
}
