// Package config loads burrow's process configuration: defaults set in
// code, then an optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/security"
	"github.com/ilyakaznacheev/cleanenv"
)

// Store kinds
const (
	StoreBolt   = "bolt"
	StoreMemory = "memory"
)

type (
	// Config is the configuration of a burrow process
	Config struct {
		Log        Log        `yaml:"log"`
		Controller Controller `yaml:"controller"`
		Satellite  Satellite  `yaml:"satellite"`
		TLS        TLS        `yaml:"tls"`
	}

	// Log configures the global logger
	Log struct {
		Level string `yaml:"level" env:"BURROW_LOG_LEVEL"`
		JSON  bool   `yaml:"json" env:"BURROW_LOG_JSON"`
	}

	// Controller configures the controller process
	Controller struct {
		DataDir           string            `yaml:"data-dir" env:"BURROW_DATA_DIR"`
		Store             string            `yaml:"store" env:"BURROW_STORE"`
		MetricsAddr       string            `yaml:"metrics-addr" env:"BURROW_METRICS_ADDR"`
		SecurityLevel     string            `yaml:"security-level" env:"BURROW_SECURITY_LEVEL"`
		Manifest          string            `yaml:"manifest" env:"BURROW_MANIFEST"`
		ReconnectInterval time.Duration     `yaml:"reconnect-interval" env:"BURROW_RECONNECT_INTERVAL"`
		ResyncInterval    time.Duration     `yaml:"resync-interval" env:"BURROW_RESYNC_INTERVAL"`
		PurgeInterval     time.Duration     `yaml:"purge-interval" env:"BURROW_PURGE_INTERVAL"`
		ConnectRate       float64           `yaml:"connect-rate" env:"BURROW_CONNECT_RATE"`
		Props             map[string]string `yaml:"props" env:"BURROW_CONTROLLER_PROPS"`
	}

	// Satellite configures the satellite process
	Satellite struct {
		NodeName    string `yaml:"node-name" env:"BURROW_NODE_NAME"`
		ListenAddr  string `yaml:"listen-addr" env:"BURROW_LISTEN_ADDR"`
		MetricsAddr string `yaml:"metrics-addr" env:"BURROW_SATELLITE_METRICS_ADDR"`
		// DeviceDir is where the directory device manager keeps volumes.
		// Empty selects the no-op device manager.
		DeviceDir string `yaml:"device-dir" env:"BURROW_DEVICE_DIR"`
	}
)

// Default returns the built-in configuration
func Default() *Config {
	cfg := &Config{}
	cfg.Log.Level = "info"
	cfg.Controller.DataDir = "/var/lib/burrow"
	cfg.Controller.Store = StoreBolt
	cfg.Controller.MetricsAddr = ":9370"
	cfg.Controller.SecurityLevel = string(security.LevelRBAC)
	cfg.Controller.ReconnectInterval = 10 * time.Second
	cfg.Controller.ResyncInterval = 60 * time.Second
	cfg.Controller.PurgeInterval = 30 * time.Second
	cfg.Controller.ConnectRate = 5
	cfg.Controller.Props = DefaultControllerProps()
	cfg.Satellite.ListenAddr = ":3366"
	cfg.Satellite.MetricsAddr = ":9371"
	cfg.TLS.Verify = VerifyModeSkip
	return cfg
}

// Load reads the configuration file at path (if any) and the environment
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return cfg, nil
}

// ValidateController checks the settings the controller needs
func (c *Config) ValidateController() error {
	switch c.Controller.Store {
	case StoreBolt:
		if c.Controller.DataDir == "" {
			return fmt.Errorf("data dir is required for the bolt store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store kind: %q", c.Controller.Store)
	}
	if _, err := security.ParseLevel(c.Controller.SecurityLevel); err != nil {
		return err
	}
	if c.Controller.ReconnectInterval <= 0 || c.Controller.ResyncInterval <= 0 || c.Controller.PurgeInterval <= 0 {
		return fmt.Errorf("controller intervals must be positive")
	}
	return c.TLS.validate()
}

// ValidateSatellite checks the settings the satellite needs
func (c *Config) ValidateSatellite() error {
	if strings.TrimSpace(c.Satellite.NodeName) == "" {
		return fmt.Errorf("satellite node name is required")
	}
	if c.Satellite.ListenAddr == "" {
		return fmt.Errorf("satellite listen address is required")
	}
	return c.TLS.validate()
}
