package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "station.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
instrument:
  addrs: ["192.168.1.20"]
sweep:
  root: /data/ku-trm
  delay: 250ms
  window:
    start: 10.7
    end: 12.75
export:
  spectre:
    server: https://collector:8443
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Identifier == "" {
		t.Fatalf("expected a generated identifier")
	}
	if cfg.Actuator.Keyword != "USB Serial" || cfg.Actuator.BaudRate != 9600 {
		t.Fatalf("unexpected actuator defaults %+v", cfg.Actuator)
	}
	if cfg.Sweep.Delay != 250*time.Millisecond {
		t.Fatalf("expected delay 250ms, got %s", cfg.Sweep.Delay)
	}
	if cfg.Sweep.PollInterval != 100*time.Millisecond {
		t.Fatalf("expected default poll interval 100ms, got %s", cfg.Sweep.PollInterval)
	}
	if cfg.Sweep.Window == nil || cfg.Sweep.Window.Start != 10.7 || cfg.Sweep.Window.End != 12.75 {
		t.Fatalf("unexpected window %+v", cfg.Sweep.Window)
	}
	if got := strings.Join(cfg.Instrument.Vendors, ","); got != "rohde,keysight" {
		t.Fatalf("expected default vendor order rohde,keysight, got %s", got)
	}
	if cfg.Export.Spectre.Rows != 16 {
		t.Fatalf("expected default spectre batch 16, got %d", cfg.Export.Spectre.Rows)
	}
	if cfg.API.Listen != ":8080" {
		t.Fatalf("expected default listen :8080, got %s", cfg.API.Listen)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, data := range map[string]string{
		"unknown profile": "actuator:\n  profile: receiver/lna\n",
		"too many bits":   "actuator:\n  bits: 9\n",
		"unknown vendor":  "instrument:\n  vendors: [anritsu]\n",
		"slow polling":    "sweep:\n  poll_interval: 2s\n",
		"reversed window": "sweep:\n  window: {start: 12, end: 11}\n",
		"sqlite no file":  "export:\n  sqlite: {}\n",
		"mysql no user":   "export:\n  mysql:\n    addr: db:3306\n",
		"spectre no url":  "export:\n  spectre:\n    rows: 4\n",
	} {
		if _, err := Load(writeConfig(t, data)); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestRange(t *testing.T) {
	cfg := Default()
	if r := cfg.Range(); r.Min != 0 || r.Max != 255 {
		t.Errorf("default range = %+v", r)
	}
	cfg.Actuator.Profile = "transmitter/attenuator"
	if r := cfg.Range(); r.Max != 128 {
		t.Errorf("profile range = %+v", r)
	}
	cfg.Actuator.Bits = 6
	if r := cfg.Range(); r.Max != 63 {
		t.Errorf("6 bit range = %+v", r)
	}
}

func TestProfileNames(t *testing.T) {
	names := ProfileNames()
	if len(names) != 4 || names[0] != "receiver/attenuator" {
		t.Errorf("ProfileNames() = %v", names)
	}
}
