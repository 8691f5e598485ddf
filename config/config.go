// Package config loads and validates the robotlink application configuration
// from layered JSON or YAML files with environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/robotlink/backend"
	"github.com/c360/robotlink/connection"
	"github.com/c360/robotlink/errors"
	"github.com/c360/robotlink/preflight"
	"github.com/c360/robotlink/stream"
	"github.com/c360/robotlink/tracker"
)

// MetricsConfig controls the Prometheus scrape endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // json or text
}

// Config is the complete robotlink configuration
type Config struct {
	Version   string            `json:"version" yaml:"version"`
	Backend   string            `json:"backend" yaml:"backend"` // auto, direct_socket, message_bus
	Robot     connection.Config `json:"robot" yaml:"robot"`
	Stream    stream.Config     `json:"stream" yaml:"stream"`
	Tracker   tracker.Config    `json:"tracker" yaml:"tracker"`
	Preflight preflight.Config  `json:"preflight" yaml:"preflight"`
	Metrics   MetricsConfig     `json:"metrics" yaml:"metrics"`
	Logging   LoggingConfig     `json:"logging" yaml:"logging"`
}

// Default returns the standard configuration
func Default() *Config {
	return &Config{
		Version:   "1.0.0",
		Backend:   "auto",
		Robot:     connection.DefaultConfig(),
		Stream:    stream.Config{ReconnectInterval: stream.DefaultReconnectInterval},
		Tracker:   tracker.DefaultConfig(),
		Preflight: preflight.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration and resolves the backend preference into
// the connection config
func (c *Config) Validate() error {
	kind, err := backend.ParseKind(c.Backend)
	if err != nil {
		return err
	}
	c.Robot.Preferred = kind

	if err := c.Robot.Validate(); err != nil {
		return err
	}
	if err := c.Tracker.Validate(); err != nil {
		return err
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("unknown log level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			fmt.Sprintf("unknown log format %q", c.Logging.Format))
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
				fmt.Sprintf("metrics port %d out of range", c.Metrics.Port))
		}
	}
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	clone.Robot.Preferred = c.Robot.Preferred
	return &clone
}

// String returns an indented JSON representation
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// SaveToFile writes the configuration as JSON
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}

// SafeConfig provides thread-safe access to a live configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps cfg for concurrent access
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Update", "replace config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Loader loads configuration layers in order, later layers overriding
// earlier ones, then applies environment overrides
type Loader struct {
	layers    []string
	envPrefix string
	validate  bool
}

// NewLoader creates a configuration loader
func NewLoader() *Loader {
	return &Loader{envPrefix: "ROBOTLINK", validate: true}
}

// AddLayer appends a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, file layers, and environment overrides
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	for _, path := range l.layers {
		raw, err := l.loadRaw(path)
		if err != nil {
			return nil, errors.Wrap(err, "config", "Load", "load layer "+path)
		}
		merged, err := mergeFromMap(cfg, raw)
		if err != nil {
			return nil, errors.Wrap(err, "config", "Load", "merge layer "+path)
		}
		cfg = merged
	}

	l.applyEnvOverrides(cfg)

	if l.validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadRaw reads one layer into a generic map, accepting JSON or YAML based
// on the file extension
func (l *Loader) loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	} else {
		if err := validateJSONDepth(data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	}

	normalizeDurations(raw)
	return raw, nil
}

// mergeFromMap overlays raw onto base, only touching keys present in raw
func mergeFromMap(base *Config, raw map[string]any) (*Config, error) {
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return nil, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return nil, err
	}

	mergedJSON, err := json.Marshal(deepMerge(baseMap, raw))
	if err != nil {
		return nil, err
	}
	var merged Config
	if err := json.Unmarshal(mergedJSON, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// deepMerge recursively merges two maps with override taking precedence
func deepMerge(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMerge(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// normalizeDurations walks the raw map and converts duration strings like
// "5s" on duration-named keys into nanoseconds so they unmarshal into
// time.Duration fields.
func normalizeDurations(m map[string]any) {
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			normalizeDurations(val)
		case string:
			if isDurationKey(k) {
				if d, err := time.ParseDuration(val); err == nil {
					m[k] = d.Nanoseconds()
				}
			}
		}
	}
}

func isDurationKey(key string) bool {
	return strings.HasSuffix(key, "_delay") ||
		strings.HasSuffix(key, "_timeout") ||
		strings.HasSuffix(key, "_interval")
}

// applyEnvOverrides applies environment variable overrides on top of the
// file layers
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := l.env("BACKEND"); val != "" {
		cfg.Backend = val
	}
	if val := l.env("ROBOT_ADDRESS"); val != "" {
		cfg.Robot.Address = val
	}
	if val := l.env("BUS_URL"); val != "" {
		cfg.Robot.BusURL = val
	}
	if val := l.env("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := l.env("LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := l.env("TRACKER_ADDRESS"); val != "" {
		cfg.Tracker.TCPAddress = val
	}
}

func (l *Loader) env(suffix string) string {
	val := os.Getenv(l.envPrefix + "_" + suffix)
	if err := validateEnvVar(l.envPrefix+"_"+suffix, val); err != nil {
		return ""
	}
	return val
}
