package gpio

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/alfredjeanlab/o3gate/internal/model"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPIODriver drives BCM lines through the memory-mapped GPIO block.
type RPIODriver struct {
	activeLow bool

	mu      sync.Mutex
	outputs map[model.Pin]bool
	inputs  map[model.Pin]bool
}

// boardModelPath is where the device tree exposes the board name.
var boardModelPath = "/proc/device-tree/model"

// probeBoard refuses to map GPIO registers on anything but a Raspberry Pi;
// rpio.Open would otherwise happily map /dev/mem on any root shell.
func probeBoard() error {
	raw, err := os.ReadFile(boardModelPath)
	if err != nil {
		return fmt.Errorf("reading board model: %w", err)
	}
	if !bytes.HasPrefix(raw, []byte("Raspberry Pi")) {
		return fmt.Errorf("unsupported board %q", string(bytes.TrimRight(raw, "\x00\n")))
	}
	return nil
}

// openRPIO maps the GPIO registers. It fails off-Pi, without permission to
// /dev/gpiomem, or when the device node is missing.
func openRPIO(activeLow bool) (*RPIODriver, error) {
	if err := probeBoard(); err != nil {
		return nil, err
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("opening rpio: %w", err)
	}
	return &RPIODriver{
		activeLow: activeLow,
		outputs:   make(map[model.Pin]bool),
		inputs:    make(map[model.Pin]bool),
	}, nil
}

func (d *RPIODriver) ConfigureOutputs(pins []model.Pin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range pins {
		if _, ok := d.inputs[p]; ok {
			return fmt.Errorf("line %d already configured as input", p)
		}
		pin := rpio.Pin(p)
		pin.Output()
		d.write(pin, false)
		d.outputs[p] = true
	}
	return nil
}

func (d *RPIODriver) ConfigureInputs(pins []model.Pin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range pins {
		if _, ok := d.outputs[p]; ok {
			return fmt.Errorf("line %d already configured as output", p)
		}
		pin := rpio.Pin(p)
		pin.Input()
		pin.PullUp()
		d.inputs[p] = true
	}
	return nil
}

func (d *RPIODriver) SetPin(p model.Pin, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.write(rpio.Pin(p), on)
}

// physicalLevel maps a logical output level to the electrical one. An
// active-low line is driven low for "on".
func physicalLevel(on, activeLow bool) rpio.State {
	if on != activeLow {
		return rpio.High
	}
	return rpio.Low
}

// write drives the logical level. Callers hold d.mu.
func (d *RPIODriver) write(pin rpio.Pin, on bool) {
	pin.Write(physicalLevel(on, d.activeLow))
}

func (d *RPIODriver) ReadPin(p model.Pin) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return rpio.Pin(p).Read() == rpio.High
}

func (d *RPIODriver) Name() string { return "rpio" }

func (d *RPIODriver) Simulated() bool { return false }

// Close drives every output off before unmapping the registers.
func (d *RPIODriver) Close() error {
	d.mu.Lock()
	for p := range d.outputs {
		d.write(rpio.Pin(p), false)
	}
	d.mu.Unlock()
	return rpio.Close()
}
