package model

import "fmt"

// Pin is a BCM GPIO line number.
type Pin uint8

// GateIndex selects one of the two doors of the passage.
type GateIndex int

const (
	GateFront GateIndex = 0
	GateBack  GateIndex = 1
)

// String returns the lowercase name of the gate.
func (g GateIndex) String() string {
	switch g {
	case GateFront:
		return "front"
	case GateBack:
		return "back"
	}
	return fmt.Sprintf("gate(%d)", int(g))
}

// GatePins are the three logical lines wired to one door.
type GatePins struct {
	Open         Pin `json:"open" toml:"open"`                   // output, solenoid release
	IRBeam       Pin `json:"ir_beam" toml:"ir_beam"`             // input, asserted until a crossing registers
	ClosedSwitch Pin `json:"closed_switch" toml:"closed_switch"` // input, true once mechanically closed
}

// PinLayout maps both gates and the O3 valve onto physical lines.
type PinLayout struct {
	Front   GatePins `json:"front" toml:"front"`
	Back    GatePins `json:"back" toml:"back"`
	O3Valve Pin      `json:"o3_valve" toml:"o3_valve"`
}

// DefaultPinLayout is the wiring of the production relay/sensor board
// (header pins 11/13/15 out, 16/18/22/37 in).
func DefaultPinLayout() PinLayout {
	return PinLayout{
		Front:   GatePins{Open: 17, IRBeam: 23, ClosedSwitch: 24},
		Back:    GatePins{Open: 27, IRBeam: 25, ClosedSwitch: 26},
		O3Valve: 22,
	}
}

// Gate returns the pins for the given gate index.
func (l PinLayout) Gate(g GateIndex) GatePins {
	if g == GateBack {
		return l.Back
	}
	return l.Front
}

// Outputs lists every output line in a stable order.
func (l PinLayout) Outputs() []Pin {
	return []Pin{l.Front.Open, l.Back.Open, l.O3Valve}
}

// Inputs lists every input line in a stable order.
func (l PinLayout) Inputs() []Pin {
	return []Pin{l.Front.IRBeam, l.Front.ClosedSwitch, l.Back.IRBeam, l.Back.ClosedSwitch}
}
