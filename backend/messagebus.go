package backend

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/c360/robotlink/errors"
)

// messageBusCommands maps logical names to bus service suffixes. Calls go to
// SubjectPrefix + "." + suffix as request/reply.
var messageBusCommands = registry{
	CmdEnableRobot:   "enable",
	CmdDisableRobot:  "disable",
	CmdClearError:    "clear_error",
	CmdResetRobot:    "reset",
	CmdRobotMode:     "robot_mode",
	CmdGetErrorID:    "get_error",
	CmdGetPose:       "get_pose",
	CmdMovJ:          "move_j",
	CmdMovL:          "move_l",
	CmdEmergencyStop: "emergency_stop",
	CmdStop:          "stop",
	CmdPause:         "pause",
	CmdContinue:      "continue",
	CmdSpeedFactor:   "speed_factor",
}

// MessageBusConfig configures the bus variant
type MessageBusConfig struct {
	URL           string
	SubjectPrefix string        // command subjects, default "robot.cmd"
	StreamSubject string        // coordinate frames, default "robot.stream.coordinates"
	Timeout       time.Duration
	Logger        *slog.Logger
	ClientName    string
}

// commandEnvelope is the JSON request body for a bus command call
type commandEnvelope struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Args []any  `json:"args,omitempty"`
}

// MessageBusAdapter issues commands as request/reply calls on the bus. The
// underlying substrate differs structurally from a socket, but the adapter
// honors the same synchronous call/response contract so the command executor
// stays transport-agnostic.
type MessageBusAdapter struct {
	cfg      MessageBusConfig
	logger   *slog.Logger
	commands registry

	mu    sync.Mutex
	nc    *nats.Conn
	alive atomic.Bool
}

// NewMessageBus creates the bus adapter. Construction validates the command
// registry and configuration; the bus node itself initializes lazily on
// Connect.
func NewMessageBus(cfg MessageBusConfig) (*MessageBusAdapter, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"MessageBusAdapter", "NewMessageBus", "bus url is required")
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "robot.cmd"
	}
	if cfg.StreamSubject == "" {
		cfg.StreamSubject = "robot.stream.coordinates"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "robotlink"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "messagebus-adapter")
	}
	return &MessageBusAdapter{
		cfg:      cfg,
		logger:   logger,
		commands: messageBusCommands,
	}, nil
}

// Kind identifies the variant
func (a *MessageBusAdapter) Kind() Kind { return MessageBus }

// Supports reports whether name is registered with this variant
func (a *MessageBusAdapter) Supports(name string) bool { return a.commands.supports(name) }

// IsAlive reports whether the bus node is connected
func (a *MessageBusAdapter) IsAlive() bool {
	return a.alive.Load()
}

// Connect lazily initializes the bus node. Initializing twice is a no-op,
// not an error; a failed first attempt leaves the adapter reconnectable.
func (a *MessageBusAdapter) Connect(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.nc != nil && a.nc.IsConnected() {
		return nil
	}

	nc, err := nats.Connect(a.cfg.URL,
		nats.Name(a.cfg.ClientName),
		nats.Timeout(a.cfg.Timeout),
		nats.RetryOnFailedConnect(false),
		nats.MaxReconnects(0),
	)
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrTransport, err),
			"MessageBusAdapter", "Connect", "connect to bus")
	}

	a.nc = nc
	a.alive.Store(true)
	a.logger.Info("Message bus backend connected", "url", a.cfg.URL)
	return nil
}

// Disconnect closes the bus node. Close errors are logged, never returned.
func (a *MessageBusAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.alive.Store(false)
	if a.nc != nil {
		a.nc.Close()
		a.nc = nil
	}
	return nil
}

// SendCommand issues a request/reply call on the command subject for name
func (a *MessageBusAdapter) SendCommand(ctx context.Context, name string, args ...any) (string, error) {
	suffix, ok := a.commands[name]
	if !ok {
		return "", errors.WrapInvalid(errors.ErrUnknownCommand, "MessageBusAdapter", "SendCommand", name)
	}

	nc := a.conn()
	if nc == nil || !nc.IsConnected() {
		return "", errors.ErrNotConnected
	}

	payload, err := json.Marshal(commandEnvelope{
		ID:   uuid.NewString(),
		Name: name,
		Args: args,
	})
	if err != nil {
		return "", errors.WrapInvalid(err, "MessageBusAdapter", "SendCommand", "encode envelope")
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	msg, err := nc.RequestWithContext(callCtx, a.cfg.SubjectPrefix+"."+suffix, payload)
	if err != nil {
		return "", a.classifyBusError(name, err)
	}
	return string(msg.Data), nil
}

// SendFrame publishes one coordinate frame to the stream subject
func (a *MessageBusAdapter) SendFrame(payload []byte) error {
	nc := a.conn()
	if nc == nil || !nc.IsConnected() {
		return errors.ErrNotConnected
	}
	if err := nc.Publish(a.cfg.StreamSubject, payload); err != nil {
		a.alive.Store(false)
		return errors.Wrap(
			fmt.Errorf("%w: %v", errors.ErrTransport, err),
			"MessageBusAdapter", "SendFrame", "publish frame")
	}
	return nil
}

func (a *MessageBusAdapter) conn() *nats.Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nc
}

// classifyBusError maps bus failures onto the taxonomy: a deadline is a
// retryable command timeout, a vanished responder means the service is gone,
// everything else is a severed transport.
func (a *MessageBusAdapter) classifyBusError(name string, err error) error {
	switch {
	case stderrors.Is(err, nats.ErrTimeout) || stderrors.Is(err, context.DeadlineExceeded):
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrCommandTimeout, err),
			"MessageBusAdapter", "SendCommand", name)
	case stderrors.Is(err, nats.ErrNoResponders):
		return errors.WrapFatal(
			fmt.Errorf("%w: no responder for %s", errors.ErrBackendUnavailable, name),
			"MessageBusAdapter", "SendCommand", name)
	default:
		a.alive.Store(false)
		return errors.Wrap(
			fmt.Errorf("%w: %v", errors.ErrTransport, err),
			"MessageBusAdapter", "SendCommand", name)
	}
}
