// Package gpio abstracts the digital lines wired to the gate: door solenoid
// and O3 valve outputs, IR beam and reed switch inputs.
//
// Open probes the Raspberry Pi GPIO block at runtime and falls back to a
// simulation driver when the hardware is unavailable, so the service runs
// unchanged on a developer machine.
package gpio

import (
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/o3gate/internal/model"
)

// Driver is the pin interface the cycle engine drives.
type Driver interface {
	// ConfigureOutputs puts the pins in output mode, initially off.
	ConfigureOutputs(pins []model.Pin) error
	// ConfigureInputs puts the pins in input mode.
	ConfigureInputs(pins []model.Pin) error
	// SetPin drives an output to its logical on/off level.
	SetPin(pin model.Pin, on bool)
	// ReadPin returns the logical level of an input.
	ReadPin(pin model.Pin) bool
	// Name identifies the driver in logs and status output.
	Name() string
	// Simulated reports whether no real hardware is behind the driver.
	Simulated() bool
	Close() error
}

// Options configures driver selection.
type Options struct {
	// ActiveLow makes the hardware driver emit "on" as an electrically low
	// signal. The relay board in production is active low.
	ActiveLow bool

	// ForceSimulation skips the hardware probe.
	ForceSimulation bool

	// SimulatedReadLevel is the level the simulation driver reports for
	// inputs that were never set.
	SimulatedReadLevel bool
}

// openHardware is swapped out in tests.
var openHardware = func(activeLow bool) (Driver, error) {
	d, err := openRPIO(activeLow)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Open returns a configured driver for the layout. Hardware problems never
// surface as errors: a board that cannot be mapped, or that rejects the
// layout, is logged and replaced by the simulation driver. An error is only
// returned when the simulation driver rejects the layout too.
func Open(layout model.PinLayout, opts Options, logger *slog.Logger) (Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if !opts.ForceSimulation {
		hw, err := openHardware(opts.ActiveLow)
		if err == nil {
			err = configure(hw, layout)
			if err == nil {
				logger.Info("gpio: starting in hardware mode", "driver", hw.Name(), "active_low", opts.ActiveLow)
				return hw, nil
			}
			_ = hw.Close()
		}
		logger.Warn("gpio: hardware driver unavailable, starting in simulation mode", "err", err)
	}

	sim := NewSimDriver(opts.SimulatedReadLevel)
	if err := configure(sim, layout); err != nil {
		_ = sim.Close()
		return nil, err
	}
	logger.Info("gpio: starting in simulation mode", "driver", sim.Name())
	return sim, nil
}

func configure(drv Driver, layout model.PinLayout) error {
	if err := drv.ConfigureOutputs(layout.Outputs()); err != nil {
		return fmt.Errorf("gpio: configuring outputs: %w", err)
	}
	if err := drv.ConfigureInputs(layout.Inputs()); err != nil {
		return fmt.Errorf("gpio: configuring inputs: %w", err)
	}
	return nil
}
