package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	NATSURL        string // O3GATE_NATS_URL (optional, empty = no event transport)
	TriggerSubject string // O3GATE_TRIGGER_SUBJECT (default "o3gate.trigger")
	HTTPAddr       string // O3GATE_HTTP_ADDR (default ":8080")
	GRPCAddr       string // O3GATE_GRPC_ADDR (default ":9090")
	AuthToken      string // O3GATE_AUTH_TOKEN (optional, empty = auth disabled)

	// Machine configuration source. Exactly one of MachineConfigPath or
	// MachineURL must be set; MachineURL also needs MachineID.
	MachineConfigPath string // O3GATE_MACHINE_CONFIG
	MachineURL        string // O3GATE_MACHINE_URL
	MachineID         string // O3GATE_MACHINE_ID
	MachineToken      string // O3GATE_MACHINE_TOKEN (optional)

	FacilityID int // O3GATE_FACILITY_ID (optional override, 0 = use the machine record)

	ActiveLow          bool          // O3GATE_ACTIVE_LOW (default true)
	ForceSimulation    bool          // O3GATE_SIMULATE (default false)
	SimulatedReadLevel bool          // O3GATE_SIM_READ_LEVEL (default true)
	PollInterval       time.Duration // O3GATE_POLL_INTERVAL (default 5ms)
	ShutdownTimeout    time.Duration // O3GATE_SHUTDOWN_TIMEOUT (default 30s)

	LogLevel slog.Level // O3GATE_LOG_LEVEL (default "info")
}

func Load() (*Config, error) {
	c := &Config{
		NATSURL:           os.Getenv("O3GATE_NATS_URL"),
		TriggerSubject:    envOrDefault("O3GATE_TRIGGER_SUBJECT", "o3gate.trigger"),
		HTTPAddr:          envOrDefault("O3GATE_HTTP_ADDR", ":8080"),
		GRPCAddr:          envOrDefault("O3GATE_GRPC_ADDR", ":9090"),
		AuthToken:         os.Getenv("O3GATE_AUTH_TOKEN"),
		MachineConfigPath: os.Getenv("O3GATE_MACHINE_CONFIG"),
		MachineURL:        os.Getenv("O3GATE_MACHINE_URL"),
		MachineID:         os.Getenv("O3GATE_MACHINE_ID"),
		MachineToken:      os.Getenv("O3GATE_MACHINE_TOKEN"),
	}

	switch {
	case c.MachineConfigPath == "" && c.MachineURL == "":
		return nil, fmt.Errorf("O3GATE_MACHINE_CONFIG or O3GATE_MACHINE_URL is required")
	case c.MachineConfigPath != "" && c.MachineURL != "":
		return nil, fmt.Errorf("O3GATE_MACHINE_CONFIG and O3GATE_MACHINE_URL are mutually exclusive")
	case c.MachineURL != "" && c.MachineID == "":
		return nil, fmt.Errorf("O3GATE_MACHINE_ID is required with O3GATE_MACHINE_URL")
	}

	if v := os.Getenv("O3GATE_FACILITY_ID"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("O3GATE_FACILITY_ID: must be a positive integer, got %q", v)
		}
		c.FacilityID = id
	}

	var err error
	if c.ActiveLow, err = envBool("O3GATE_ACTIVE_LOW", true); err != nil {
		return nil, err
	}
	if c.ForceSimulation, err = envBool("O3GATE_SIMULATE", false); err != nil {
		return nil, err
	}
	if c.SimulatedReadLevel, err = envBool("O3GATE_SIM_READ_LEVEL", true); err != nil {
		return nil, err
	}
	if c.PollInterval, err = envDuration("O3GATE_POLL_INTERVAL", "5ms"); err != nil {
		return nil, err
	}
	if c.ShutdownTimeout, err = envDuration("O3GATE_SHUTDOWN_TIMEOUT", "30s"); err != nil {
		return nil, err
	}

	level, err := ParseLogLevel(envOrDefault("O3GATE_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("O3GATE_LOG_LEVEL: %w", err)
	}
	c.LogLevel = level

	return c, nil
}

// ParseLogLevel maps debug, info, warn or error to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, err
	}
	return l, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, d)
	}
	return d, nil
}
