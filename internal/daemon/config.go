// Package daemon wires the engine together: config, storage, HTTP server,
// and the periodic reconciliation sweep.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration, loaded from a TOML file.
type Config struct {
	API       APIConfig       `toml:"api"`
	Storage   StorageConfig   `toml:"storage"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Community CommunityConfig `toml:"community"`
	Sweep     SweepConfig     `toml:"sweep"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig controls where the database lives.
type StorageConfig struct {
	Dir string `toml:"dir"` // empty: ~/.layerd
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// CommunityConfig carries community-policy defaults.
type CommunityConfig struct {
	// GiftThreshold is applied to lazily created community configs.
	GiftThreshold int `toml:"gift_threshold"`
}

// SweepConfig controls the periodic reconciliation / bridge-event sweep.
type SweepConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // cron spec, e.g. "@hourly"
}

// DefaultConfig returns the daemon defaults.
func DefaultConfig() Config {
	return Config{
		API:       APIConfig{Host: "127.0.0.1", Port: 8646},
		Storage:   StorageConfig{Dir: ""},
		Metrics:   MetricsConfig{Enabled: true},
		Community: CommunityConfig{GiftThreshold: 60},
		Sweep:     SweepConfig{Enabled: true, Schedule: "@hourly"},
	}
}

// LoadConfig reads the TOML file at path over the defaults. A missing file
// is not an error; the defaults apply.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Community.GiftThreshold < 0 || cfg.Community.GiftThreshold > 100 {
		return cfg, fmt.Errorf("community.gift_threshold must be 0-100, got %d", cfg.Community.GiftThreshold)
	}
	return cfg, nil
}

// DataDir resolves the storage directory, defaulting to ~/.layerd.
func (c Config) DataDir() string {
	if c.Storage.Dir != "" {
		return c.Storage.Dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".layerd"
	}
	return filepath.Join(home, ".layerd")
}

// ListenAddr returns the host:port the API binds to.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}
