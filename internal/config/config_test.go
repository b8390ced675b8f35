package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Hostname != "clonepiext" {
		t.Errorf("hostname = %s, want clonepiext", cfg.Hostname)
	}
	if cfg.Transport != "mqtt" {
		t.Errorf("transport = %s, want mqtt", cfg.Transport)
	}
	if cfg.MQTT.Port != 1883 {
		t.Errorf("mqtt port = %d, want 1883", cfg.MQTT.Port)
	}
	if got := cfg.CycleTimeout(); got != 4500*time.Microsecond {
		t.Errorf("cycle timeout = %v, want 4.5ms", got)
	}
	if got := cfg.LoosePeriod(); got != 500*time.Millisecond {
		t.Errorf("loose period = %v, want 500ms", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airlimb.toml")
	raw := `
hostname = "handbench"
transport = "ws"
cycle_timeout_us = 9000

[ws]
url = "ws://handbench:9030/ctl"
`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Hostname != "handbench" {
		t.Errorf("hostname = %s, want handbench", cfg.Hostname)
	}
	if cfg.Transport != "ws" {
		t.Errorf("transport = %s, want ws", cfg.Transport)
	}
	if cfg.WS.URL != "ws://handbench:9030/ctl" {
		t.Errorf("ws url = %s", cfg.WS.URL)
	}
	if cfg.CycleTimeoutUS != 9000 {
		t.Errorf("cycle_timeout_us = %d, want 9000", cfg.CycleTimeoutUS)
	}
	// Unset fields keep their defaults.
	if cfg.LoosePeriodMS != 500 {
		t.Errorf("loose_period_ms = %d, want default 500", cfg.LoosePeriodMS)
	}
}

func TestLoadRejectsBadTransport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airlimb.toml")
	if err := os.WriteFile(path, []byte(`transport = "carrier-pigeon"`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted an unknown transport")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("Load succeeded on a missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airlimb.toml")

	cfg := Default()
	cfg.Hostname = "handbench"
	cfg.LogLevel = "debug"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Hostname != "handbench" || got.LogLevel != "debug" {
		t.Errorf("round trip lost fields: %+v", got)
	}
}

func TestValidateTimings(t *testing.T) {
	cfg := Default()
	cfg.CycleTimeoutUS = 0
	if err := cfg.Validate(); err == nil {
		t.Error("accepted zero cycle timeout")
	}

	cfg = Default()
	cfg.LoosePeriodMS = -1
	if err := cfg.Validate(); err == nil {
		t.Error("accepted negative loose period")
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := Default()
	if got := cfg.SlogLevel(); got != slog.LevelError {
		t.Errorf("default level = %v, want error", got)
	}
	cfg.LogLevel = "debug"
	if got := cfg.SlogLevel(); got != slog.LevelDebug {
		t.Errorf("level = %v, want debug", got)
	}
}
