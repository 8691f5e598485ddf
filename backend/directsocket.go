package backend

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/robotlink/errors"
)

// directSocketCommands maps logical names to the dashboard verbs written on
// the wire. For this variant the mapping is the identity, but keeping the
// table explicit means an unregistered name fails at dispatch, not on the
// robot.
var directSocketCommands = registry{
	CmdEnableRobot:   CmdEnableRobot,
	CmdDisableRobot:  CmdDisableRobot,
	CmdClearError:    CmdClearError,
	CmdResetRobot:    CmdResetRobot,
	CmdRobotMode:     CmdRobotMode,
	CmdGetErrorID:    CmdGetErrorID,
	CmdGetPose:       CmdGetPose,
	CmdMovJ:          CmdMovJ,
	CmdMovL:          CmdMovL,
	CmdEmergencyStop: CmdEmergencyStop,
	CmdStop:          CmdStop,
	CmdPause:         CmdPause,
	CmdContinue:      CmdContinue,
	CmdSpeedFactor:   CmdSpeedFactor,
}

// DirectSocketConfig configures the raw TCP variant. The command port carries
// textual request/reply traffic; the feedback port carries the coordinate
// stream.
type DirectSocketConfig struct {
	Address      string
	CommandPort  int
	FeedbackPort int
	Timeout      time.Duration
	Logger       *slog.Logger
}

// DirectSocketAdapter owns two persistent TCP connections against fixed,
// configuration-supplied ports.
type DirectSocketAdapter struct {
	cfg      DirectSocketConfig
	logger   *slog.Logger
	commands registry

	mu      sync.Mutex // serializes connect/disconnect and command round-trips
	cmdConn net.Conn
	cmdRd   *bufio.Reader

	feedMu   sync.Mutex
	feedConn net.Conn

	alive atomic.Bool
}

// NewDirectSocket creates the raw TCP adapter. Construction validates the
// command registry and configuration but does not touch the network.
func NewDirectSocket(cfg DirectSocketConfig) (*DirectSocketAdapter, error) {
	if cfg.Address == "" || cfg.CommandPort <= 0 || cfg.FeedbackPort <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"DirectSocketAdapter", "NewDirectSocket", "address and ports are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "directsocket-adapter")
	}
	return &DirectSocketAdapter{
		cfg:      cfg,
		logger:   logger,
		commands: directSocketCommands,
	}, nil
}

// Kind identifies the variant
func (a *DirectSocketAdapter) Kind() Kind { return DirectSocket }

// Supports reports whether name is registered with this variant
func (a *DirectSocketAdapter) Supports(name string) bool { return a.commands.supports(name) }

// IsAlive reports whether both channels are currently usable
func (a *DirectSocketAdapter) IsAlive() bool { return a.alive.Load() }

// Connect dials the command and feedback channels. Idempotent while alive.
func (a *DirectSocketAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.alive.Load() {
		return nil
	}

	dialer := net.Dialer{Timeout: a.cfg.Timeout}

	cmdConn, err := dialer.DialContext(ctx, "tcp", a.addr(a.cfg.CommandPort))
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrTransport, err),
			"DirectSocketAdapter", "Connect", "dial command port")
	}

	feedConn, err := dialer.DialContext(ctx, "tcp", a.addr(a.cfg.FeedbackPort))
	if err != nil {
		_ = cmdConn.Close()
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrTransport, err),
			"DirectSocketAdapter", "Connect", "dial feedback port")
	}

	a.cmdConn = cmdConn
	a.cmdRd = bufio.NewReader(cmdConn)
	a.feedMu.Lock()
	a.feedConn = feedConn
	a.feedMu.Unlock()
	a.alive.Store(true)

	a.logger.Info("Direct socket backend connected",
		"address", a.cfg.Address,
		"command_port", a.cfg.CommandPort,
		"feedback_port", a.cfg.FeedbackPort)
	return nil
}

// Disconnect closes both channels. Close errors are logged, never returned.
func (a *DirectSocketAdapter) Disconnect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.alive.Store(false)

	if a.cmdConn != nil {
		if err := a.cmdConn.Close(); err != nil {
			a.logger.Debug("Command socket close", "error", err)
		}
		a.cmdConn = nil
		a.cmdRd = nil
	}

	a.feedMu.Lock()
	if a.feedConn != nil {
		if err := a.feedConn.Close(); err != nil {
			a.logger.Debug("Feedback socket close", "error", err)
		}
		a.feedConn = nil
	}
	a.feedMu.Unlock()

	return nil
}

// SendCommand writes a textual command and blocks, bounded by the timeout,
// for a line-terminated reply.
func (a *DirectSocketAdapter) SendCommand(ctx context.Context, name string, args ...any) (string, error) {
	verb, ok := a.commands[name]
	if !ok {
		return "", errors.WrapInvalid(errors.ErrUnknownCommand, "DirectSocketAdapter", "SendCommand", name)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cmdConn == nil {
		return "", errors.ErrNotConnected
	}

	deadline := time.Now().Add(a.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	line := formatCommand(verb, args)
	if err := a.cmdConn.SetDeadline(deadline); err != nil {
		return "", a.transportBroken("SendCommand", err)
	}
	if _, err := a.cmdConn.Write([]byte(line)); err != nil {
		return "", a.classifyIO("SendCommand", err)
	}

	reply, err := a.cmdRd.ReadString('\n')
	if err != nil {
		return "", a.classifyIO("SendCommand", err)
	}
	return strings.TrimRight(reply, "\r\n"), nil
}

// SendFrame writes one coordinate frame to the feedback channel
func (a *DirectSocketAdapter) SendFrame(payload []byte) error {
	a.feedMu.Lock()
	defer a.feedMu.Unlock()

	if a.feedConn == nil {
		return errors.ErrNotConnected
	}
	if err := a.feedConn.SetWriteDeadline(time.Now().Add(a.cfg.Timeout)); err != nil {
		return a.transportBroken("SendFrame", err)
	}
	if _, err := a.feedConn.Write(payload); err != nil {
		return a.classifyIO("SendFrame", err)
	}
	return nil
}

func (a *DirectSocketAdapter) addr(port int) string {
	return net.JoinHostPort(a.cfg.Address, strconv.Itoa(port))
}

// classifyIO converts raw socket failures into the taxonomy: deadline
// expiry is a retryable timeout, anything else severs the transport.
func (a *DirectSocketAdapter) classifyIO(op string, err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrCommandTimeout, err),
			"DirectSocketAdapter", op, "await reply")
	}
	return a.transportBroken(op, err)
}

func (a *DirectSocketAdapter) transportBroken(op string, err error) error {
	a.alive.Store(false)
	return errors.Wrap(
		fmt.Errorf("%w: %v", errors.ErrTransport, err),
		"DirectSocketAdapter", op, "socket i/o")
}

// formatCommand renders the dashboard wire form: Verb(arg1,arg2,...)\n
func formatCommand(verb string, args []any) string {
	var b strings.Builder
	b.WriteString(verb)
	b.WriteByte('(')
	for i, arg := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(formatArg(arg))
	}
	b.WriteString(")\n")
	return b.String()
}

func formatArg(arg any) string {
	switch v := arg.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
