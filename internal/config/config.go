// Package config loads skybridge's YAML configuration, overlaid with
// environment variables from .env/.env.local.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Sim     SimConfig     `yaml:"sim"`
	Device  DeviceConfig  `yaml:"device"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SimConfig configures the Simulator Link.
type SimConfig struct {
	Provider  string   `yaml:"provider"` // "simconnect", "mock"
	AppName   string   `yaml:"app_name"`
	DLLPath   string   `yaml:"dll_path"` // override for SimConnect.dll search path
	Reconnect Duration `yaml:"reconnect_interval"`
}

// DeviceConfig configures the UDP device transport and manager.
type DeviceConfig struct {
	ListenAddress    string   `yaml:"listen_address"`
	SlotCount        int      `yaml:"slot_count"`
	HeartbeatPeriod  Duration `yaml:"heartbeat_period"`
	PeerTimeout      Duration `yaml:"peer_timeout"`
	ProtocolVersion  uint16   `yaml:"protocol_version"`
	ProtocolRevision uint16   `yaml:"protocol_revision"`
}

// ServerConfig configures the HTTP/WebSocket UI fan-out.
type ServerConfig struct {
	Address    string `yaml:"address"`
	StaticRoot string `yaml:"static_root"`
}

// LogConfig configures the observability logging.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a single rotated log stream.
type LogSettings struct {
	Path       string `yaml:"path"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// DefaultConfig returns the configuration used when no file exists yet.
func DefaultConfig() *Config {
	return &Config{
		Sim: SimConfig{
			Provider:  "simconnect",
			AppName:   "skybridge",
			Reconnect: Duration(60 * time.Second),
		},
		Device: DeviceConfig{
			ListenAddress:    ":4209",
			SlotCount:        8,
			HeartbeatPeriod:  Duration(1 * time.Second),
			PeerTimeout:      Duration(10 * time.Second),
			ProtocolVersion:  4,
			ProtocolRevision: 14,
		},
		Server: ServerConfig{
			Address:    "localhost:1920",
			StaticRoot: "./html",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:       "./logs/server.log",
				Level:      "INFO",
				MaxSizeMB:  20,
				MaxBackups: 5,
				MaxAgeDays: 28,
			},
			Requests: LogSettings{
				Path:       "./logs/requests.log",
				Level:      "INFO",
				MaxSizeMB:  20,
				MaxBackups: 5,
				MaxAgeDays: 28,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: "localhost:9090",
		},
	}
}

// Load loads the configuration from path, writing defaults on first run.
// If path exists, its values are merged onto the defaults and .env/.env.local
// are applied as an overlay.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		// Ignore error: it's valid to rely solely on system env vars.
		_ = godotenv.Load(".env.local", ".env")
		applyEnvOverrides(cfg)

		return cfg, nil
	}

	if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# skybridge configuration
# ---------------------
# Durations accept: ns, us (or µs), ms, s, m, h, d (day), w (week)

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvOverrides layers environment variables over the loaded config,
// for values that should not live in a checked-in YAML file.
func applyEnvOverrides(cfg *Config) {
	if addr := os.Getenv("SKYBRIDGE_DEVICE_ADDRESS"); addr != "" {
		cfg.Device.ListenAddress = addr
	}
	if addr := os.Getenv("SKYBRIDGE_SERVER_ADDRESS"); addr != "" {
		cfg.Server.Address = addr
	}
	if dll := os.Getenv("SKYBRIDGE_SIM_DLL_PATH"); dll != "" {
		cfg.Sim.DLLPath = dll
	}
}
