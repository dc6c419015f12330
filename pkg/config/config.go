// Package config loads and validates the rtilog.yaml daemon configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "rtilog.yaml"

// Config represents a rtilog.yaml configuration file.
type Config struct {
	Version       int      `yaml:"version"        json:"version"`
	Socket        string   `yaml:"socket"         json:"socket"`
	LogFile       string   `yaml:"log_file"       json:"log_file,omitempty"`
	QueueCapacity int      `yaml:"queue_capacity" json:"queue_capacity"`
	PushInterval  Duration `yaml:"push_interval"  json:"push_interval"`
	DrainTimeout  Duration `yaml:"drain_timeout"  json:"drain_timeout"`
	LogLevel      string   `yaml:"log_level"      json:"log_level"`
}

// Duration is a time.Duration written as a Go duration string ("1s", "250ms").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Version:       1,
		Socket:        "/tmp/rtilog.sock",
		QueueCapacity: 256,
		PushInterval:  Duration{time.Second},
		DrainTimeout:  Duration{5 * time.Second},
		LogLevel:      "info",
	}
}

// Load reads and parses the config file at path.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and expands environment
// variables in path fields.
func Parse(b []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.Socket = os.ExpandEnv(cfg.Socket)
	cfg.LogFile = os.ExpandEnv(cfg.LogFile)
	return cfg, nil
}

// Marshal encodes cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// SlogLevel maps LogLevel to a slog level. Unknown values map to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
