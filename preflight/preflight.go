// Package preflight runs the startup check sequence against a freshly
// configured robot link: establish the connection, clear latched alarms,
// enable the arm, wait for it to report ready, and read back a pose. Each
// step is recorded so operators can see exactly where bring-up stalled.
package preflight

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/robotlink/backend"
	"github.com/c360/robotlink/command"
	"github.com/c360/robotlink/errors"
)

// Controller modes that count as operational: 3 is enabled and idle,
// 5 is running a program.
var readyModes = map[string]bool{"3": true, "5": true}

// Connector is the connection surface preflight drives
type Connector interface {
	Connect(ctx context.Context) error
	IsConnected() bool
}

// Commander executes classified robot commands
type Commander interface {
	Execute(ctx context.Context, name string, args ...any) command.Result
	Poll(ctx context.Context, interval, timeout time.Duration, cond func(command.Result) bool, name string, args ...any) (command.Result, error)
}

// Config holds preflight timing
type Config struct {
	// ModePollInterval is how often RobotMode is sampled while waiting
	ModePollInterval time.Duration `json:"mode_poll_interval" yaml:"mode_poll_interval"`

	// ModePollTimeout bounds the wait for the arm to report ready
	ModePollTimeout time.Duration `json:"mode_poll_timeout" yaml:"mode_poll_timeout"`
}

// DefaultConfig returns the standard preflight timing
func DefaultConfig() Config {
	return Config{
		ModePollInterval: 500 * time.Millisecond,
		ModePollTimeout:  15 * time.Second,
	}
}

// StepResult records the outcome of one preflight step
type StepResult struct {
	Name     string
	Success  bool
	Detail   string
	Duration time.Duration
}

// Report is the outcome of a full preflight run. Steps after the first
// failure are not attempted.
type Report struct {
	Steps  []StepResult
	Passed bool
}

// Runner executes the preflight sequence
type Runner struct {
	cfg       Config
	connector Connector
	commander Commander
	logger    *slog.Logger
}

// NewRunner builds a preflight runner
func NewRunner(cfg Config, connector Connector, commander Commander, logger *slog.Logger) (*Runner, error) {
	if connector == nil || commander == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "preflight", "NewRunner",
			"require connector and commander")
	}
	if cfg.ModePollInterval <= 0 {
		cfg.ModePollInterval = DefaultConfig().ModePollInterval
	}
	if cfg.ModePollTimeout <= 0 {
		cfg.ModePollTimeout = DefaultConfig().ModePollTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:       cfg,
		connector: connector,
		commander: commander,
		logger:    logger.With("component", "preflight"),
	}, nil
}

// Run executes the check sequence, stopping at the first failed step
func (r *Runner) Run(ctx context.Context) Report {
	report := Report{}

	steps := []struct {
		name string
		fn   func(ctx context.Context) (bool, string)
	}{
		{"connect", r.stepConnect},
		{"clear_error", r.stepCommand(backend.CmdClearError)},
		{"enable_robot", r.stepCommand(backend.CmdEnableRobot)},
		{"robot_ready", r.stepWaitReady},
		{"read_pose", r.stepCommand(backend.CmdGetPose)},
	}

	for _, step := range steps {
		start := time.Now()
		ok, detail := step.fn(ctx)
		result := StepResult{
			Name:     step.name,
			Success:  ok,
			Detail:   detail,
			Duration: time.Since(start),
		}
		report.Steps = append(report.Steps, result)

		if !ok {
			r.logger.Error("Preflight step failed", "step", step.name, "detail", detail)
			return report
		}
		r.logger.Info("Preflight step passed", "step", step.name, "duration", result.Duration)
	}

	report.Passed = true
	r.logger.Info("Preflight passed", "steps", len(report.Steps))
	return report
}

func (r *Runner) stepConnect(ctx context.Context) (bool, string) {
	if r.connector.IsConnected() {
		return true, "already connected"
	}
	if err := r.connector.Connect(ctx); err != nil {
		return false, err.Error()
	}
	return true, "connected"
}

func (r *Runner) stepCommand(name string) func(ctx context.Context) (bool, string) {
	return func(ctx context.Context) (bool, string) {
		result := r.commander.Execute(ctx, name)
		return result.Success, result.Message
	}
}

func (r *Runner) stepWaitReady(ctx context.Context) (bool, string) {
	result, err := r.commander.Poll(ctx, r.cfg.ModePollInterval, r.cfg.ModePollTimeout,
		func(res command.Result) bool { return res.Success && readyModes[res.Payload] },
		backend.CmdRobotMode)
	if err != nil {
		return false, "robot never reported ready: " + err.Error() + " (last mode " + result.Payload + ")"
	}
	return true, "robot ready"
}
