package command

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/robotlink/backend"
	"github.com/c360/robotlink/errors"
	"github.com/c360/robotlink/metric"
	"github.com/c360/robotlink/pkg/retry"
)

// AdapterSource yields the currently active backend adapter, or nil when the
// link is down
type AdapterSource interface {
	Adapter() backend.Adapter
}

// Deps holds the dependencies an Executor needs
type Deps struct {
	Logger   *slog.Logger
	Registry *metric.Registry
}

// Executor runs named commands against whatever adapter is currently live.
// Every failure mode comes back as a failed Result; Execute never panics and
// never returns an error to unwrap.
type Executor struct {
	source AdapterSource
	logger *slog.Logger

	executed  prometheus.Counter
	failed    prometheus.Counter
	malformed prometheus.Counter
}

// NewExecutor builds an executor over the given adapter source
func NewExecutor(source AdapterSource, deps Deps) (*Executor, error) {
	if source == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "command", "NewExecutor", "require adapter source")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := deps.Registry
	if registry == nil {
		registry = metric.NewRegistry()
	}

	e := &Executor{
		source: source,
		logger: logger.With("component", "command"),
		executed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "command",
			Name:      "executed_total",
			Help:      "Commands dispatched to the backend",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "command",
			Name:      "failed_total",
			Help:      "Commands that ended in a failed result",
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metric.Namespace,
			Subsystem: "command",
			Name:      "malformed_responses_total",
			Help:      "Responses that carried no recognizable content",
		}),
	}
	if err := registry.RegisterCounter("command", "executed", e.executed); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("command", "failed", e.failed); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("command", "malformed", e.malformed); err != nil {
		return nil, err
	}
	return e, nil
}

// Execute runs one command and classifies its reply
func (e *Executor) Execute(ctx context.Context, name string, args ...any) Result {
	adapter := e.source.Adapter()
	if adapter == nil {
		e.failed.Inc()
		return Result{Message: "not connected"}
	}
	if !adapter.Supports(name) {
		e.failed.Inc()
		e.logger.Warn("Unknown command refused", "command", name)
		return Result{Message: "unknown command: " + name}
	}

	e.executed.Inc()
	raw, err := adapter.SendCommand(ctx, name, args...)
	if err != nil {
		e.failed.Inc()
		e.logger.Warn("Command transport failure", "command", name, "error", err)
		return Result{Message: err.Error()}
	}

	result := classify(raw)
	if !result.Success {
		e.failed.Inc()
	}
	if result.Malformed {
		e.malformed.Inc()
		e.logger.Warn("Malformed response", "command", name)
	} else {
		e.logger.Debug("Command completed",
			"command", name,
			"success", result.Success,
			"raw", raw)
	}
	return result
}

// ExecuteWithRetry runs the command with backoff on transient failures. A
// severed transport is not retried here; the connection manager owns
// re-establishment and commands would only pile onto a dead socket.
func (e *Executor) ExecuteWithRetry(ctx context.Context, rcfg retry.Config, name string, args ...any) Result {
	result, err := retry.DoWithResult(ctx, rcfg, func() (Result, error) {
		adapter := e.source.Adapter()
		if adapter == nil {
			return Result{Message: "not connected"}, retry.NonRetryable(errors.ErrNotConnected)
		}

		// Counted per attempt, before dispatch, same as Execute.
		e.executed.Inc()
		raw, err := adapter.SendCommand(ctx, name, args...)
		if err != nil {
			if stderrors.Is(err, errors.ErrTransport) {
				return Result{Message: err.Error()}, retry.NonRetryable(err)
			}
			if errors.IsRetryable(err) {
				return Result{Message: err.Error()}, err
			}
			return Result{Message: err.Error()}, retry.NonRetryable(err)
		}
		return classify(raw), nil
	})
	if err != nil {
		e.failed.Inc()
		e.logger.Warn("Command failed after retries", "command", name, "error", err)
		if result.Message == "" {
			result.Message = err.Error()
		}
		result.Success = false
	}
	return result
}

// Poll runs the command at the given interval until cond accepts a result or
// the timeout expires
func (e *Executor) Poll(ctx context.Context, interval, timeout time.Duration, cond func(Result) bool, name string, args ...any) (Result, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last Result
	for {
		last = e.Execute(ctx, name, args...)
		if cond(last) {
			return last, nil
		}
		if time.Now().After(deadline) {
			return last, errors.WrapTransient(errors.ErrCommandTimeout,
				"command", "Poll", "wait for "+name+" condition")
		}
		select {
		case <-ctx.Done():
			return last, errors.Wrap(ctx.Err(), "command", "Poll", "wait for "+name+" condition")
		case <-ticker.C:
		}
	}
}
