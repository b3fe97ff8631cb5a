// Package config loads the ipmimonitor demo harness's YAML configuration,
// following the same load-with-defaults-then-unmarshal shape the teacher
// uses for its console-server config.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration for one ipmimonitor instance: which
// character device to open, how discovery should behave, where to log
// discovered events, and which port to serve the HTTP/SSE topology view on.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Events    EventsConfig    `yaml:"events"`
	Server    ServerConfig    `yaml:"server"`
}

// DeviceConfig names the OpenIPMI character device to open.
type DeviceConfig struct {
	Number int `yaml:"number"` // e.g. 0 for /dev/ipmi0
}

// DiscoveryConfig parameterizes the discovery engine.
type DiscoveryConfig struct {
	BusScan            bool          `yaml:"bus_scan"`
	NumChannelsToProbe int           `yaml:"num_channels_to_probe"`
	RescanInterval     time.Duration `yaml:"rescan_interval"` // 0 disables periodic Rescan
}

// EventsConfig controls where discovery/event activity is logged.
type EventsConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// ServerConfig controls the HTTP/SSE topology server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Load reads and parses a YAML config file at path, applying the same
// defaults-then-overlay pattern as the teacher's config.Load.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Device: DeviceConfig{Number: 0},
		Discovery: DiscoveryConfig{
			BusScan:            true,
			NumChannelsToProbe: 8,
		},
		Events: EventsConfig{
			Path:          "/var/lib/ipmimonitor/events",
			RetentionDays: 30,
		},
		Server: ServerConfig{Port: 8080},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
