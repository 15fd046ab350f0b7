package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the trellis configuration file (~/.config/trellis/config.yaml).
// Numeric fields are pointers so we can distinguish "not set" from zero values.
type Config struct {
	EngineDir   string `yaml:"engine_dir"`
	Backend     string `yaml:"backend"`
	SimDevices  *int64 `yaml:"sim_devices"`
	WorldSize   *int64 `yaml:"world_size"`
	GPUsPerNode *int64 `yaml:"gpus_per_node"`

	// Server
	ServerAddress string `yaml:"server_address"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "trellis", "config.yaml")
}

// applyEngineConfig applies config file defaults to the shared engine and
// topology variables when the corresponding CLI flag was not explicitly set.
func applyEngineConfig(c *cli.Command, cfg Config) {
	if cfg.EngineDir != "" && !c.IsSet("engine-dir") {
		engineDir = cfg.EngineDir
	}
	if cfg.Backend != "" && !c.IsSet("backend") {
		backend = cfg.Backend
	}
	if cfg.SimDevices != nil && !c.IsSet("sim-devices") {
		simDevices = *cfg.SimDevices
	}
	if cfg.WorldSize != nil && !c.IsSet("world-size") {
		worldSize = *cfg.WorldSize
	}
	if cfg.GPUsPerNode != nil && !c.IsSet("gpus-per-node") {
		gpusPerNode = *cfg.GPUsPerNode
	}
}

// applyLoggingConfig applies config file defaults to the logging variables.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	return loadConfigFrom(configPath())
}

func loadConfigFrom(path string) Config {
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
