package gpio

import (
	"sync"

	"github.com/alfredjeanlab/o3gate/internal/model"
)

// SimDriver accepts every pin operation without touching hardware. Inputs
// read a fixed default level unless overridden with SetInput, which the
// tests and the bench rig use to play sensor sequences.
type SimDriver struct {
	defaultLevel bool

	mu      sync.Mutex
	outputs map[model.Pin]bool
	inputs  map[model.Pin]bool
}

// NewSimDriver returns a simulation driver whose unset inputs read level.
func NewSimDriver(level bool) *SimDriver {
	return &SimDriver{
		defaultLevel: level,
		outputs:      make(map[model.Pin]bool),
		inputs:       make(map[model.Pin]bool),
	}
}

func (d *SimDriver) ConfigureOutputs(pins []model.Pin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range pins {
		d.outputs[p] = false
	}
	return nil
}

func (d *SimDriver) ConfigureInputs(pins []model.Pin) error {
	return nil
}

func (d *SimDriver) SetPin(p model.Pin, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outputs[p] = on
}

func (d *SimDriver) ReadPin(p model.Pin) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if v, ok := d.inputs[p]; ok {
		return v
	}
	return d.defaultLevel
}

// SetInput overrides the level an input reads.
func (d *SimDriver) SetInput(p model.Pin, level bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inputs[p] = level
}

// Output returns the last level written to an output.
func (d *SimDriver) Output(p model.Pin) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outputs[p]
}

func (d *SimDriver) Name() string { return "simulation" }

func (d *SimDriver) Simulated() bool { return true }

func (d *SimDriver) Close() error { return nil }
