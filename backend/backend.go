// Package backend provides a uniform command-dispatch surface over the two
// robot control transports: the raw TCP command API and the message-bus API.
// Upper layers see only the Adapter interface and stay transport-agnostic.
package backend

import (
	"context"
	"sort"
	"strings"

	"github.com/c360/robotlink/errors"
)

// Kind identifies a concrete backend variant
type Kind int

// Possible backend kinds. Auto resolves to DirectSocket or MessageBus before
// any connection attempt begins; it is never a live state.
const (
	Auto Kind = iota
	DirectSocket
	MessageBus
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case Auto:
		return "auto"
	case DirectSocket:
		return "direct_socket"
	case MessageBus:
		return "message_bus"
	default:
		return "unknown"
	}
}

// ParseKind converts a configuration string into a Kind
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "direct_socket", "directsocket", "tcp":
		return DirectSocket, nil
	case "message_bus", "messagebus", "bus":
		return MessageBus, nil
	default:
		return Auto, errors.WrapInvalid(errors.ErrInvalidConfig, "backend", "ParseKind", "backend kind "+s)
	}
}

// Adapter is the capability set every backend variant implements. Commands
// are synchronous call/response regardless of the underlying substrate;
// frames are fire-and-forget writes on the streaming channel.
type Adapter interface {
	// Connect establishes the backend's transport. Idempotent when already
	// connected.
	Connect(ctx context.Context) error

	// Disconnect tears the transport down. Safe to call repeatedly.
	Disconnect() error

	// SendCommand invokes a named command and blocks for its reply, bounded
	// by the adapter's configured timeout.
	SendCommand(ctx context.Context, name string, args ...any) (string, error)

	// SendFrame pushes one coordinate frame on the streaming channel.
	SendFrame(payload []byte) error

	// Supports reports whether name is registered with this variant.
	Supports(name string) bool

	// IsAlive reports whether the transport is currently usable.
	IsAlive() bool

	// Kind identifies the concrete variant.
	Kind() Kind
}

// Robot command names shared by both variants. The set is fixed at adapter
// construction; dispatching an unregistered name fails before touching the
// wire.
const (
	CmdEnableRobot   = "EnableRobot"
	CmdDisableRobot  = "DisableRobot"
	CmdClearError    = "ClearError"
	CmdResetRobot    = "ResetRobot"
	CmdRobotMode     = "RobotMode"
	CmdGetErrorID    = "GetErrorID"
	CmdGetPose       = "GetPose"
	CmdMovJ          = "MovJ"
	CmdMovL          = "MovL"
	CmdEmergencyStop = "EmergencyStop"
	CmdStop          = "Stop"
	CmdPause         = "Pause"
	CmdContinue      = "Continue"
	CmdSpeedFactor   = "SpeedFactor"
)

// registry is the explicit command table validated at adapter construction.
// The value is the variant-specific dispatch detail: the dashboard verb for
// the direct socket, the service suffix for the bus.
type registry map[string]string

// names returns the registered command names, sorted for stable logs
func (r registry) names() []string {
	out := make([]string, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r registry) supports(name string) bool {
	_, ok := r[name]
	return ok
}
