// Package machine loads the typed machine record that configures a gate
// controller: its facility, cycle timing and pin wiring.
//
// The record is read once at startup, either from a local TOML file or from
// the remote configuration service, and is immutable afterwards.
package machine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/o3gate/internal/model"
)

// Provider fetches the machine record.
type Provider interface {
	Load(ctx context.Context) (*model.MachineConfig, error)
	// Source describes where the record comes from, for logs.
	Source() string
}

// document is the on-disk and on-wire shape of a machine record. Durations
// are text ("30s"); any pin left out keeps its default line.
type document struct {
	FacilityID      int             `json:"facility_id" toml:"facility_id"`
	O3Flush         model.Duration  `json:"o3_flush" toml:"o3_flush"`
	EntranceTimeout model.Duration  `json:"entrance_timeout" toml:"entrance_timeout"`
	Pins            model.PinLayout `json:"pins" toml:"pins"`
}

func newDocument() document {
	return document{Pins: model.DefaultPinLayout()}
}

func (d document) config() *model.MachineConfig {
	return &model.MachineConfig{
		FacilityID: d.FacilityID,
		Cycle: model.CycleConfig{
			O3Flush:         time.Duration(d.O3Flush),
			EntranceTimeout: time.Duration(d.EntranceTimeout),
		},
		Pins: d.Pins,
	}
}

func documentFor(c *model.MachineConfig) document {
	return document{
		FacilityID:      c.FacilityID,
		O3Flush:         model.Duration(c.Cycle.O3Flush),
		EntranceTimeout: model.Duration(c.Cycle.EntranceTimeout),
		Pins:            c.Pins,
	}
}

// Resolve loads the record from p, applies a non-zero facility override and
// validates the result.
func Resolve(ctx context.Context, p Provider, facilityOverride int) (*model.MachineConfig, error) {
	cfg, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading machine config from %s: %w", p.Source(), err)
	}
	if facilityOverride > 0 {
		cfg.FacilityID = facilityOverride
	}
	if err := model.ValidateMachineConfig(cfg); err != nil {
		return nil, fmt.Errorf("machine config from %s: %w", p.Source(), err)
	}
	return cfg, nil
}

// Encode writes cfg as a TOML machine file that FileProvider can read back.
func Encode(w io.Writer, cfg *model.MachineConfig) error {
	if err := toml.NewEncoder(w).Encode(documentFor(cfg)); err != nil {
		return fmt.Errorf("encoding machine config: %w", err)
	}
	return nil
}
