// Package config loads natbeacon's TOML configuration file. Absent keys
// keep their defaults, so a partial file (or no file at all) is valid.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the assembled runtime configuration.
type Config struct {
	// STUNAddr is the UDP listen address for the STUN server.
	STUNAddr string

	// Workers is the STUN worker pool size; 0 means GOMAXPROCS.
	Workers int

	// QueueSize is the STUN work queue capacity; 0 means the server
	// default.
	QueueSize int

	// SignalingEnabled controls whether the WebSocket signaling server
	// runs alongside the STUN server.
	SignalingEnabled bool

	// SignalingAddr is the TCP listen address for signaling.
	SignalingAddr string

	// LogLevel is a logrus level name: debug, info, warn, error.
	LogLevel string

	// LogFormat selects "text" or "json" logrus formatting.
	LogFormat string
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		STUNAddr:         "0.0.0.0:3478",
		SignalingEnabled: true,
		SignalingAddr:    "0.0.0.0:3479",
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// fileConfig mirrors the TOML file shape.
type fileConfig struct {
	STUNAddr         string `toml:"stun_addr"`
	Workers          int    `toml:"workers"`
	QueueSize        int    `toml:"queue_size"`
	SignalingEnabled bool   `toml:"signaling_enabled"`
	SignalingAddr    string `toml:"signaling_addr"`
	LogLevel         string `toml:"log_level"`
	LogFormat        string `toml:"log_format"`
}

// Load reads path and overlays its keys onto the defaults. A missing file
// is not an error when path is empty; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config file %s does not exist", path)
		}
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("stun_addr") {
		cfg.STUNAddr = strings.TrimSpace(raw.STUNAddr)
	}
	if meta.IsDefined("workers") {
		cfg.Workers = raw.Workers
	}
	if meta.IsDefined("queue_size") {
		cfg.QueueSize = raw.QueueSize
	}
	if meta.IsDefined("signaling_enabled") {
		cfg.SignalingEnabled = raw.SignalingEnabled
	}
	if meta.IsDefined("signaling_addr") {
		cfg.SignalingAddr = strings.TrimSpace(raw.SignalingAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(raw.LogFormat))
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate rejects values that would only fail later and more confusingly.
func (c Config) validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q", c.LogFormat)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size must not be negative, got %d", c.QueueSize)
	}
	return nil
}
