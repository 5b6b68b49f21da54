// Package config loads bridge configuration from a TOML or YAML file, an
// optional .env file and MAVCOT_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/c360/mavcot/bridge"
	"github.com/c360/mavcot/errors"
)

// Config is the complete process configuration.
type Config struct {
	Session SessionConfig `toml:"session" yaml:"session"`
	Logging LoggingConfig `toml:"logging" yaml:"logging"`
	Metrics MetricsConfig `toml:"metrics" yaml:"metrics"`
	NATS    NATSConfig    `toml:"nats" yaml:"nats"`
	Redis   RedisConfig   `toml:"redis" yaml:"redis"`
}

// SessionConfig holds the default session and whether to start it at boot.
type SessionConfig struct {
	InboundPort        int    `toml:"inbound_port" yaml:"inbound_port"`
	AircraftIdentifier string `toml:"aircraft_identifier" yaml:"aircraft_identifier"`
	DestinationIP      string `toml:"destination_ip" yaml:"destination_ip"`
	DestinationPort    int    `toml:"destination_port" yaml:"destination_port"`
	UseMulticast       bool   `toml:"use_multicast" yaml:"use_multicast"`
	Autostart          bool   `toml:"autostart" yaml:"autostart"`
}

// Bridge converts to the controller's session settings.
func (s SessionConfig) Bridge() bridge.SessionConfig {
	return bridge.SessionConfig{
		InboundPort:        s.InboundPort,
		AircraftIdentifier: s.AircraftIdentifier,
		DestinationIP:      s.DestinationIP,
		DestinationPort:    s.DestinationPort,
		UseMulticast:       s.UseMulticast,
	}
}

// LoggingConfig selects level and encoding.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// MetricsConfig controls the ops HTTP server.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Port    int    `toml:"port" yaml:"port"`
	Path    string `toml:"path" yaml:"path"`
}

// NATSConfig controls the control adapter and CoT mirror.
type NATSConfig struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	URL            string `toml:"url" yaml:"url"`
	ControlSubject string `toml:"control_subject" yaml:"control_subject"`
	CotSubject     string `toml:"cot_subject" yaml:"cot_subject"`
}

// RedisConfig controls the status mirror.
type RedisConfig struct {
	Enabled bool     `toml:"enabled" yaml:"enabled"`
	Addr    string   `toml:"addr" yaml:"addr"`
	Key     string   `toml:"key" yaml:"key"`
	TTL     Duration `toml:"ttl" yaml:"ttl"`
}

// Duration reads "60s" style strings from TOML and YAML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	s := bridge.DefaultSessionConfig()
	return &Config{
		Session: SessionConfig{
			InboundPort:        s.InboundPort,
			AircraftIdentifier: s.AircraftIdentifier,
			DestinationIP:      s.DestinationIP,
			DestinationPort:    s.DestinationPort,
			UseMulticast:       s.UseMulticast,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			ControlSubject: "mavcot.control",
			CotSubject:     "mavcot.cot",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			Key:  "mavcot:status",
			TTL:  Duration{60 * time.Second},
		},
	}
}

// Load reads one file over the defaults. The format follows the extension.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "read "+path)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "decode TOML")
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "decode YAML")
		}
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unsupported extension %q", errors.ErrInvalidConfig, filepath.Ext(path)),
			"config", "Load", "detect format")
	}
	return cfg, nil
}

// SearchPaths are tried after an explicit path.
var SearchPaths = []string{"configs/mavcot.toml", "mavcot.toml"}

// LoadWithFallback loads preferredPath if given, otherwise the first file in
// SearchPaths that exists. When none exists the defaults are returned.
// It returns the path actually used, or "".
func LoadWithFallback(preferredPath string) (*Config, string, error) {
	if preferredPath != "" {
		cfg, err := Load(preferredPath)
		return cfg, preferredPath, err
	}

	for _, path := range SearchPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := Load(path)
		if err != nil {
			return nil, path, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
		return cfg, path, nil
	}
	return Default(), "", nil
}
