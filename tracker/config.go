package tracker

import (
	"fmt"
	"time"

	"github.com/c360/robotlink/errors"
)

// Default listener settings
const (
	DefaultTCPAddress  = "0.0.0.0:8889"
	DefaultWSPath      = "/stream"
	DefaultReadTimeout = 30 * time.Second
)

// Config holds tracker listener settings. The TCP listener is always on;
// the WebSocket listener is enabled by setting WSAddress.
type Config struct {
	// TCPAddress is the host:port the newline-framed TCP listener binds
	TCPAddress string `json:"tcp_address" yaml:"tcp_address"`

	// WSAddress enables the WebSocket listener when non-empty
	WSAddress string `json:"ws_address" yaml:"ws_address"`

	// WSPath is the WebSocket endpoint path
	WSPath string `json:"ws_path" yaml:"ws_path"`

	// ReadTimeout drops vision clients that go silent for this long
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`
}

// DefaultConfig returns the standard tracker listener settings
func DefaultConfig() Config {
	return Config{
		TCPAddress:  DefaultTCPAddress,
		WSPath:      DefaultWSPath,
		ReadTimeout: DefaultReadTimeout,
	}
}

// Validate checks the listener configuration
func (c Config) Validate() error {
	if c.TCPAddress == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "tracker", "Validate",
			"tcp_address is required")
	}
	if c.ReadTimeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "tracker", "Validate",
			fmt.Sprintf("read_timeout must be positive, got %v", c.ReadTimeout))
	}
	if c.WSAddress != "" && c.WSPath == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "tracker", "Validate",
			"ws_path required when ws_address is set")
	}
	return nil
}
