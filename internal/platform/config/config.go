// Package config holds server configuration, loaded from YAML with
// sensible defaults for every field.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config holds all tunable server parameters.
type Config struct {
	// Simulation
	TickRateHz   int    `yaml:"tick_rate_hz"`
	InitialLevel string `yaml:"initial_level"`
	LevelDir     string `yaml:"level_dir"`

	// Server
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`

	// Channel buffer sizes
	BroadcastChannelBuffer int `yaml:"broadcast_channel_buffer"`
	ClientSendBuffer       int `yaml:"client_send_buffer"`

	// Connection pools
	DBMaxOpenConns int `yaml:"db_max_open_conns"`
	DBMaxIdleConns int `yaml:"db_max_idle_conns"`

	// Rate limiting
	MaxIntentsPerSecond int `yaml:"max_intents_per_second"`
	MaxClients          int `yaml:"max_clients"`
}

// Default returns production defaults.
func Default() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		TickRateHz:   60,
		InitialLevel: "lobby",
		LevelDir:     "levels",

		ListenAddr: ":8080",
		DBPath:     "timelift.db",

		BroadcastChannelBuffer: 256,
		ClientSendBuffer:       64,

		DBMaxOpenConns: numCPU * 4,
		DBMaxIdleConns: numCPU * 2,

		MaxIntentsPerSecond: 120,
		MaxClients:          200,
	}
}

// Load reads a YAML config file over the defaults. Missing fields
// keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges on the loaded values.
func (c *Config) Validate() error {
	if c.TickRateHz <= 0 || c.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz must be in (0, 1000], got %d", c.TickRateHz)
	}
	if c.InitialLevel == "" {
		return fmt.Errorf("initial_level must not be empty")
	}
	if c.ClientSendBuffer <= 0 {
		return fmt.Errorf("client_send_buffer must be positive")
	}
	return nil
}
