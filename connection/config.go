package connection

import (
	"fmt"
	"time"

	"github.com/c360/robotlink/backend"
	"github.com/c360/robotlink/errors"
)

// Default connection parameters. The retry delays follow a pure exponential
// curve, so a 1s base yields 2s and 4s waits after the first two failures.
const (
	DefaultCommandPort      = 29999
	DefaultMovePort         = 30003
	DefaultFeedbackPort     = 30004
	DefaultMaxRetryAttempts = 3
	DefaultBaseRetryDelay   = time.Second
	DefaultAttemptTimeout   = 5 * time.Second
	DefaultProbeTimeout     = 2 * time.Second
	DefaultServiceFragment  = "robot"
)

// Config holds everything the Manager needs to resolve and establish a
// backend. Address/ports drive the direct socket variant, BusURL the message
// bus variant; Auto probes both in bus-first order.
type Config struct {
	// Address is the robot controller host for the direct socket backend
	Address string `json:"address" yaml:"address"`

	// CommandPort is the synchronous command port on the controller
	CommandPort int `json:"command_port" yaml:"command_port"`

	// FeedbackPort is the streaming feedback port on the controller
	FeedbackPort int `json:"feedback_port" yaml:"feedback_port"`

	// BusURL is the message bus server URL for the bus backend
	BusURL string `json:"bus_url" yaml:"bus_url"`

	// ServiceFragment is matched against advertised bus service names when
	// Auto resolution checks whether a robot service is actually present
	ServiceFragment string `json:"service_fragment" yaml:"service_fragment"`

	// Preferred selects a backend explicitly; Auto probes at Connect time
	Preferred backend.Kind `json:"-" yaml:"-"`

	// MaxRetryAttempts is the total number of connect attempts, including
	// the first. Must be at least 1.
	MaxRetryAttempts int `json:"max_retry_attempts" yaml:"max_retry_attempts"`

	// BaseRetryDelay seeds the exponential backoff between attempts
	BaseRetryDelay time.Duration `json:"base_retry_delay" yaml:"base_retry_delay"`

	// AttemptTimeout bounds each individual connect attempt
	AttemptTimeout time.Duration `json:"attempt_timeout" yaml:"attempt_timeout"`

	// ProbeTimeout bounds each reachability probe during Auto resolution
	ProbeTimeout time.Duration `json:"probe_timeout" yaml:"probe_timeout"`
}

// DefaultConfig returns a Config with the standard ports and retry policy.
// Address and BusURL are left empty; at least one must be set before use.
func DefaultConfig() Config {
	return Config{
		CommandPort:      DefaultCommandPort,
		FeedbackPort:     DefaultFeedbackPort,
		ServiceFragment:  DefaultServiceFragment,
		Preferred:        backend.Auto,
		MaxRetryAttempts: DefaultMaxRetryAttempts,
		BaseRetryDelay:   DefaultBaseRetryDelay,
		AttemptTimeout:   DefaultAttemptTimeout,
		ProbeTimeout:     DefaultProbeTimeout,
	}
}

// Validate checks the configuration for the selected backend
func (c Config) Validate() error {
	if c.MaxRetryAttempts < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "connection", "Validate",
			fmt.Sprintf("max_retry_attempts must be at least 1, got %d", c.MaxRetryAttempts))
	}
	if c.BaseRetryDelay <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "connection", "Validate",
			"base_retry_delay must be positive")
	}
	if c.AttemptTimeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "connection", "Validate",
			"attempt_timeout must be positive")
	}

	switch c.Preferred {
	case backend.DirectSocket:
		if c.Address == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "connection", "Validate",
				"address required for direct socket backend")
		}
		if c.CommandPort <= 0 || c.CommandPort > 65535 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "connection", "Validate",
				fmt.Sprintf("command_port %d out of range", c.CommandPort))
		}
	case backend.MessageBus:
		if c.BusURL == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "connection", "Validate",
				"bus_url required for message bus backend")
		}
	case backend.Auto:
		if c.Address == "" && c.BusURL == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "connection", "Validate",
				"auto resolution needs an address or a bus_url to probe")
		}
	}
	return nil
}
