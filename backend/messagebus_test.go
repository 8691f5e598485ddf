package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/robotlink/errors"
)

func TestNewMessageBus_RequiresURL(t *testing.T) {
	_, err := NewMessageBus(MessageBusConfig{})
	assert.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestNewMessageBus_Defaults(t *testing.T) {
	a, err := NewMessageBus(MessageBusConfig{URL: "nats://127.0.0.1:4222"})
	require.NoError(t, err)

	assert.Equal(t, "robot.cmd", a.cfg.SubjectPrefix)
	assert.Equal(t, "robot.stream.coordinates", a.cfg.StreamSubject)
	assert.Equal(t, 5*time.Second, a.cfg.Timeout)
	assert.Equal(t, MessageBus, a.Kind())
	assert.False(t, a.IsAlive())
}

func TestMessageBus_ConnectUnreachable(t *testing.T) {
	a, err := NewMessageBus(MessageBusConfig{
		URL:     "nats://127.0.0.1:1",
		Timeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	err = a.Connect(context.Background())
	assert.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransport)
	assert.True(t, errors.IsRetryable(err), "a refused explicit bus connect backs off and retries")
	assert.False(t, a.IsAlive())

	// A failed lazy init leaves the adapter reconnectable, not poisoned.
	err = a.Connect(context.Background())
	assert.ErrorIs(t, err, errors.ErrTransport)
}

func TestMessageBus_CommandRegistry(t *testing.T) {
	a, err := NewMessageBus(MessageBusConfig{URL: "nats://127.0.0.1:4222"})
	require.NoError(t, err)

	assert.True(t, a.Supports(CmdMovL))
	assert.True(t, a.Supports(CmdEmergencyStop))
	assert.False(t, a.Supports("SelfDestruct"))

	// Dispatching an unregistered name fails before touching the wire.
	_, err = a.SendCommand(context.Background(), "SelfDestruct")
	assert.ErrorIs(t, err, errors.ErrUnknownCommand)
}

func TestMessageBus_CommandWhileDisconnected(t *testing.T) {
	a, err := NewMessageBus(MessageBusConfig{URL: "nats://127.0.0.1:4222"})
	require.NoError(t, err)

	_, err = a.SendCommand(context.Background(), CmdRobotMode)
	assert.ErrorIs(t, err, errors.ErrNotConnected)

	assert.ErrorIs(t, a.SendFrame([]byte("x\n")), errors.ErrNotConnected)
}

func TestKind_StringAndParse(t *testing.T) {
	assert.Equal(t, "auto", Auto.String())
	assert.Equal(t, "direct_socket", DirectSocket.String())
	assert.Equal(t, "message_bus", MessageBus.String())

	for in, want := range map[string]Kind{
		"auto":          Auto,
		"":              Auto,
		"tcp":           DirectSocket,
		"direct_socket": DirectSocket,
		"DirectSocket":  DirectSocket,
		"bus":           MessageBus,
		"message_bus":   MessageBus,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseKind("carrier_pigeon")
	assert.Error(t, err)
}

func TestRegistry_BothVariantsExposeSameCommandSet(t *testing.T) {
	assert.Equal(t, directSocketCommands.names(), messageBusCommands.names())
}
