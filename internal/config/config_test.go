package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, "device:\n  number: 2\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Device.Number != 2 {
		t.Fatalf("got device number %d, want 2", cfg.Device.Number)
	}
	if !cfg.Discovery.BusScan {
		t.Error("expected BusScan default to be true")
	}
	if cfg.Discovery.NumChannelsToProbe != 8 {
		t.Errorf("got NumChannelsToProbe %d, want default 8", cfg.Discovery.NumChannelsToProbe)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("got port %d, want default 8080", cfg.Server.Port)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
device:
  number: 1
discovery:
  bus_scan: false
  num_channels_to_probe: 2
  rescan_interval: 30s
events:
  path: /tmp/events
  retention_days: 7
server:
  port: 9090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discovery.BusScan {
		t.Error("expected bus_scan override to false")
	}
	if cfg.Discovery.NumChannelsToProbe != 2 {
		t.Errorf("got %d, want 2", cfg.Discovery.NumChannelsToProbe)
	}
	if cfg.Discovery.RescanInterval != 30*time.Second {
		t.Errorf("got rescan interval %v, want 30s", cfg.Discovery.RescanInterval)
	}
	if cfg.Events.Path != "/tmp/events" || cfg.Events.RetentionDays != 7 {
		t.Errorf("got events config %+v", cfg.Events)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("got port %d, want 9090", cfg.Server.Port)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
