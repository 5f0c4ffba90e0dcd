package config

import (
	"log/slog"
	"testing"
	"time"
)

var allEnvVars = []string{
	"O3GATE_NATS_URL", "O3GATE_TRIGGER_SUBJECT", "O3GATE_HTTP_ADDR", "O3GATE_GRPC_ADDR",
	"O3GATE_AUTH_TOKEN", "O3GATE_MACHINE_CONFIG", "O3GATE_MACHINE_URL", "O3GATE_MACHINE_ID",
	"O3GATE_MACHINE_TOKEN", "O3GATE_FACILITY_ID", "O3GATE_ACTIVE_LOW", "O3GATE_SIMULATE",
	"O3GATE_SIM_READ_LEVEL", "O3GATE_POLL_INTERVAL", "O3GATE_SHUTDOWN_TIMEOUT", "O3GATE_LOG_LEVEL",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	for _, tc := range []struct {
		name         string
		env          map[string]string
		wantErr      bool
		wantGRPCAddr string
		wantHTTPAddr string
		wantNATSURL  string
	}{
		{
			name:    "MissingMachineSource",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name: "BothMachineSources",
			env: map[string]string{
				"O3GATE_MACHINE_CONFIG": "/etc/o3gate/machine.toml",
				"O3GATE_MACHINE_URL":    "http://config:8080",
				"O3GATE_MACHINE_ID":     "m-1",
			},
			wantErr: true,
		},
		{
			name:    "MachineURLWithoutID",
			env:     map[string]string{"O3GATE_MACHINE_URL": "http://config:8080"},
			wantErr: true,
		},
		{
			name:         "DefaultAddresses",
			env:          map[string]string{"O3GATE_MACHINE_CONFIG": "/etc/o3gate/machine.toml"},
			wantGRPCAddr: ":9090",
			wantHTTPAddr: ":8080",
		},
		{
			name: "CustomAddresses",
			env: map[string]string{
				"O3GATE_MACHINE_URL": "http://config:8080",
				"O3GATE_MACHINE_ID":  "m-1",
				"O3GATE_GRPC_ADDR":   ":5050",
				"O3GATE_HTTP_ADDR":   ":3000",
				"O3GATE_NATS_URL":    "nats://localhost:4222",
			},
			wantGRPCAddr: ":5050",
			wantHTTPAddr: ":3000",
			wantNATSURL:  "nats://localhost:4222",
		},
		{
			name: "BadFacilityID",
			env: map[string]string{
				"O3GATE_MACHINE_CONFIG": "/etc/o3gate/machine.toml",
				"O3GATE_FACILITY_ID":    "-3",
			},
			wantErr: true,
		},
		{
			name: "BadActiveLow",
			env: map[string]string{
				"O3GATE_MACHINE_CONFIG": "/etc/o3gate/machine.toml",
				"O3GATE_ACTIVE_LOW":     "sometimes",
			},
			wantErr: true,
		},
		{
			name: "BadPollInterval",
			env: map[string]string{
				"O3GATE_MACHINE_CONFIG": "/etc/o3gate/machine.toml",
				"O3GATE_POLL_INTERVAL":  "fast",
			},
			wantErr: true,
		},
		{
			name: "ZeroPollInterval",
			env: map[string]string{
				"O3GATE_MACHINE_CONFIG": "/etc/o3gate/machine.toml",
				"O3GATE_POLL_INTERVAL":  "0s",
			},
			wantErr: true,
		},
		{
			name: "BadLogLevel",
			env: map[string]string{
				"O3GATE_MACHINE_CONFIG": "/etc/o3gate/machine.toml",
				"O3GATE_LOG_LEVEL":      "chatty",
			},
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.GRPCAddr != tc.wantGRPCAddr {
				t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, tc.wantGRPCAddr)
			}
			if cfg.HTTPAddr != tc.wantHTTPAddr {
				t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, tc.wantHTTPAddr)
			}
			if cfg.NATSURL != tc.wantNATSURL {
				t.Errorf("NATSURL = %q, want %q", cfg.NATSURL, tc.wantNATSURL)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("O3GATE_MACHINE_CONFIG", "/etc/o3gate/machine.toml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TriggerSubject != "o3gate.trigger" {
		t.Errorf("TriggerSubject = %q, want %q", cfg.TriggerSubject, "o3gate.trigger")
	}
	if !cfg.ActiveLow {
		t.Error("ActiveLow = false, want true")
	}
	if cfg.ForceSimulation {
		t.Error("ForceSimulation = true, want false")
	}
	if !cfg.SimulatedReadLevel {
		t.Error("SimulatedReadLevel = false, want true")
	}
	if cfg.PollInterval != 5*time.Millisecond {
		t.Errorf("PollInterval = %v, want 5ms", cfg.PollInterval)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s", cfg.ShutdownTimeout)
	}
	if cfg.FacilityID != 0 {
		t.Errorf("FacilityID = %d, want 0", cfg.FacilityID)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
}

func TestLoadCustom(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("O3GATE_MACHINE_URL", "http://config:8080")
	t.Setenv("O3GATE_MACHINE_ID", "gate-12")
	t.Setenv("O3GATE_MACHINE_TOKEN", "secret")
	t.Setenv("O3GATE_TRIGGER_SUBJECT", "site.a.trigger")
	t.Setenv("O3GATE_FACILITY_ID", "12")
	t.Setenv("O3GATE_ACTIVE_LOW", "false")
	t.Setenv("O3GATE_SIMULATE", "1")
	t.Setenv("O3GATE_SIM_READ_LEVEL", "false")
	t.Setenv("O3GATE_POLL_INTERVAL", "20ms")
	t.Setenv("O3GATE_SHUTDOWN_TIMEOUT", "1m")
	t.Setenv("O3GATE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MachineID != "gate-12" || cfg.MachineToken != "secret" {
		t.Errorf("machine = %q/%q", cfg.MachineID, cfg.MachineToken)
	}
	if cfg.TriggerSubject != "site.a.trigger" {
		t.Errorf("TriggerSubject = %q", cfg.TriggerSubject)
	}
	if cfg.FacilityID != 12 {
		t.Errorf("FacilityID = %d, want 12", cfg.FacilityID)
	}
	if cfg.ActiveLow {
		t.Error("ActiveLow = true, want false")
	}
	if !cfg.ForceSimulation {
		t.Error("ForceSimulation = false, want true")
	}
	if cfg.SimulatedReadLevel {
		t.Error("SimulatedReadLevel = true, want false")
	}
	if cfg.PollInterval != 20*time.Millisecond {
		t.Errorf("PollInterval = %v, want 20ms", cfg.PollInterval)
	}
	if cfg.ShutdownTimeout != time.Minute {
		t.Errorf("ShutdownTimeout = %v, want 1m", cfg.ShutdownTimeout)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{" error ", slog.LevelError},
	} {
		got, err := ParseLogLevel(tc.in)
		if err != nil {
			t.Errorf("ParseLogLevel(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestEnvOrDefault(t *testing.T) {
	for _, tc := range []struct {
		name     string
		key      string
		envVal   string
		fallback string
		want     string
	}{
		{"EmptyUsesDefault", "TEST_ENVDEFAULT_EMPTY", "", "default-val", "default-val"},
		{"SetUsesEnv", "TEST_ENVDEFAULT_SET", "custom", "default-val", "custom"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envVal)
			got := envOrDefault(tc.key, tc.fallback)
			if got != tc.want {
				t.Errorf("envOrDefault(%q, %q) = %q, want %q", tc.key, tc.fallback, got, tc.want)
			}
		})
	}
}
