// Package connection owns the lifecycle of the robot control link: backend
// resolution, connect with exponential backoff, disconnect, and the observable
// state machine upper layers key off.
package connection

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/robotlink/backend"
	"github.com/c360/robotlink/errors"
	"github.com/c360/robotlink/metric"
	"github.com/c360/robotlink/pkg/retry"
	"github.com/c360/robotlink/probe"
)

// Deps holds the dependencies a Manager needs
type Deps struct {
	Logger   *slog.Logger
	Registry *metric.Registry
}

// Manager resolves a backend, establishes it with retry, and exposes the
// resulting adapter. mu serializes the mutating operations; reads go through
// the snapshot fields so observers never wait out a backoff sleep.
type Manager struct {
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics

	// mu serializes Connect, Disconnect, and MarkConnectionLost so
	// concurrent callers cannot race on the socket. Held across the whole
	// connect-or-retry sequence; never taken by the read accessors.
	mu sync.Mutex

	// snapMu guards the published snapshot below. Only ever held
	// momentarily, so Info and Adapter stay responsive while a connect
	// attempt sleeps through its backoff.
	snapMu      sync.Mutex
	adapter     backend.Adapter
	backendKind backend.Kind
	connectedAt time.Time
	lastErr     error

	state      atomic.Int32
	retryCount atomic.Int32

	// Replaceable in tests.
	newAdapter       func(kind backend.Kind) (backend.Adapter, error)
	probeSocket      func(address string, port int, timeout time.Duration) bool
	probeBus         func(url string, timeout time.Duration) bool
	probeBusServices func(url, fragment string, timeout time.Duration) []string
}

// Info is a point-in-time snapshot of the manager
type Info struct {
	State       State
	Backend     backend.Kind
	ConnectedAt time.Time
	LastError   error
	RetryCount  int
}

// NewManager validates cfg and returns a Manager in the disconnected state
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := deps.Registry
	if registry == nil {
		registry = metric.NewRegistry()
	}
	metrics, err := newMetrics(registry)
	if err != nil {
		return nil, errors.Wrap(err, "connection", "NewManager", "register metrics")
	}

	m := &Manager{
		cfg:     cfg,
		logger:  logger.With("component", "connection"),
		metrics: metrics,
	}
	m.newAdapter = m.buildAdapter
	m.probeSocket = probe.DirectSocket
	m.probeBus = probe.MessageBus
	m.probeBusServices = probe.BusServices
	return m, nil
}

// Connect resolves the backend and establishes it, retrying with exponential
// backoff up to the configured attempt limit. Calling Connect while already
// connected is a no-op. A fresh call resets the retry counter.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == StateConnected {
		if a := m.currentAdapter(); a != nil && a.IsAlive() {
			m.logger.Debug("Connect called while connected, ignoring")
			return nil
		}
	}

	// A dead adapter from a previous connection still owns sockets.
	if old := m.swapAdapter(nil); old != nil {
		if cerr := old.Disconnect(); cerr != nil {
			m.logger.Debug("Error closing stale backend", "error", cerr)
		}
	}

	m.retryCount.Store(0)
	m.setLastErr(nil)
	m.setState(StateConnecting)

	kind, err := m.resolveKind()
	if err != nil {
		m.setLastErr(err)
		m.setState(StateError)
		return err
	}

	rcfg := retry.Config{
		MaxAttempts: m.cfg.MaxRetryAttempts,
		BaseDelay:   m.cfg.BaseRetryDelay,
		Multiplier:  2.0,
		Logger:      m.logger,
	}

	var established backend.Adapter
	err = retry.Do(ctx, rcfg, func() error {
		m.metrics.connectAttempts.Inc()

		adapter, aerr := m.newAdapter(kind)
		if aerr != nil {
			return retry.NonRetryable(aerr)
		}

		actx, cancel := context.WithTimeout(ctx, m.cfg.AttemptTimeout)
		aerr = adapter.Connect(actx)
		cancel()
		if aerr != nil {
			m.metrics.connectFailures.Inc()
			failed := int(m.retryCount.Add(1))
			if !retry.IsNonRetryable(aerr) && !errors.IsFatal(aerr) && failed < m.cfg.MaxRetryAttempts {
				m.metrics.retries.Inc()
				m.setState(StateRetrying)
			}
			if errors.IsFatal(aerr) {
				return retry.NonRetryable(aerr)
			}
			return aerr
		}

		established = adapter
		return nil
	})
	if err != nil {
		m.setLastErr(err)
		m.setState(StateError)
		m.logger.Error("Connection failed",
			"backend", kind,
			"attempts", m.retryCount.Load(),
			"error", err)
		return errors.Wrap(err, "connection", "Connect", "establish "+kind.String()+" backend")
	}

	m.snapMu.Lock()
	m.adapter = established
	m.backendKind = kind
	m.connectedAt = time.Now()
	m.snapMu.Unlock()
	m.setState(StateConnected)
	m.logger.Info("Connected",
		"backend", kind,
		"retry_count", m.retryCount.Load())
	return nil
}

// Disconnect tears down the backend if one is up and always lands in the
// disconnected state. Close errors are logged, not returned; calling
// Disconnect while already disconnected is a no-op.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	kind := m.kindSnapshot()
	if old := m.swapAdapter(nil); old != nil {
		if err := old.Disconnect(); err != nil {
			m.logger.Warn("Error closing backend", "backend", kind, "error", err)
		}
		m.logger.Info("Disconnected", "backend", kind)
	}
	m.setState(StateDisconnected)
}

// MarkConnectionLost records that an established connection died underneath
// an upper layer. The adapter is closed and the state drops to disconnected
// so callers can trigger a fresh Connect.
func (m *Manager) MarkConnectionLost(cause error) {
	// Fast path so the streaming send path never queues behind a connect
	// attempt that is sleeping through its backoff.
	if m.State() != StateConnected {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() != StateConnected {
		return
	}
	m.metrics.connectionsLost.Inc()
	m.setLastErr(cause)
	kind := m.kindSnapshot()
	if old := m.swapAdapter(nil); old != nil {
		if err := old.Disconnect(); err != nil {
			m.logger.Debug("Error closing lost backend", "error", err)
		}
	}
	m.setState(StateDisconnected)
	m.logger.Warn("Connection lost", "backend", kind, "cause", cause)
}

// State returns the current connection state
func (m *Manager) State() State {
	return State(m.state.Load())
}

// IsConnected reports whether the link is established
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// RetryCount returns the number of failed attempts in the most recent
// Connect call
func (m *Manager) RetryCount() int {
	return int(m.retryCount.Load())
}

// Adapter returns the live backend adapter, or nil when not connected. Never
// waits on a connect in progress.
func (m *Manager) Adapter() backend.Adapter {
	if m.State() != StateConnected {
		return nil
	}
	return m.currentAdapter()
}

// Info returns a snapshot of the manager's observable state. Never blocks on
// network I/O or on a connect in progress.
func (m *Manager) Info() Info {
	m.snapMu.Lock()
	defer m.snapMu.Unlock()
	return Info{
		State:       m.State(),
		Backend:     m.backendKind,
		ConnectedAt: m.connectedAt,
		LastError:   m.lastErr,
		RetryCount:  int(m.retryCount.Load()),
	}
}

func (m *Manager) currentAdapter() backend.Adapter {
	m.snapMu.Lock()
	defer m.snapMu.Unlock()
	return m.adapter
}

// swapAdapter publishes a new adapter and returns the one it displaced
func (m *Manager) swapAdapter(a backend.Adapter) backend.Adapter {
	m.snapMu.Lock()
	defer m.snapMu.Unlock()
	old := m.adapter
	m.adapter = a
	return old
}

func (m *Manager) setLastErr(err error) {
	m.snapMu.Lock()
	m.lastErr = err
	m.snapMu.Unlock()
}

func (m *Manager) kindSnapshot() backend.Kind {
	m.snapMu.Lock()
	defer m.snapMu.Unlock()
	return m.backendKind
}

// resolveKind maps the configured preference to a concrete backend. Auto
// probes the bus first and requires an advertised service matching the
// configured fragment; an unreachable explicit preference is left to the
// connect attempt so it participates in retry.
func (m *Manager) resolveKind() (backend.Kind, error) {
	if m.cfg.Preferred != backend.Auto {
		return m.cfg.Preferred, nil
	}

	if m.cfg.BusURL != "" && m.probeBus(m.cfg.BusURL, m.cfg.ProbeTimeout) {
		services := m.probeBusServices(m.cfg.BusURL, m.cfg.ServiceFragment, m.cfg.ProbeTimeout)
		if len(services) > 0 {
			m.logger.Info("Resolved message bus backend", "services", services)
			return backend.MessageBus, nil
		}
		m.logger.Debug("Bus reachable but no matching service advertised",
			"fragment", m.cfg.ServiceFragment)
	}

	if m.cfg.Address != "" && m.probeSocket(m.cfg.Address, m.cfg.CommandPort, m.cfg.ProbeTimeout) {
		m.logger.Info("Resolved direct socket backend",
			"address", m.cfg.Address, "port", m.cfg.CommandPort)
		return backend.DirectSocket, nil
	}

	return backend.Auto, errors.WrapFatal(errors.ErrBackendUnavailable,
		"connection", "resolveKind", "probe candidate backends")
}

func (m *Manager) buildAdapter(kind backend.Kind) (backend.Adapter, error) {
	switch kind {
	case backend.DirectSocket:
		return backend.NewDirectSocket(backend.DirectSocketConfig{
			Address:      m.cfg.Address,
			CommandPort:  m.cfg.CommandPort,
			FeedbackPort: m.cfg.FeedbackPort,
			Timeout:      m.cfg.AttemptTimeout,
			Logger:       m.logger,
		})
	case backend.MessageBus:
		return backend.NewMessageBus(backend.MessageBusConfig{
			URL:        m.cfg.BusURL,
			Timeout:    m.cfg.AttemptTimeout,
			Logger:     m.logger,
			ClientName: "robotlink",
		})
	default:
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"connection", "buildAdapter", "build adapter for kind "+kind.String())
	}
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
	m.metrics.stateGauge.Set(float64(s))
}
