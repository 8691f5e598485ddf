package connection

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/robotlink/backend"
	"github.com/c360/robotlink/errors"
)

// fakeAdapter lets tests script connect outcomes and observe attempt timing
type fakeAdapter struct {
	mu          sync.Mutex
	failFirst   int // number of Connect calls to fail before succeeding
	connects    int
	disconnects int
	attemptTime []time.Time
	alive       bool
}

func (f *fakeAdapter) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	f.attemptTime = append(f.attemptTime, time.Now())
	if f.connects <= f.failFirst {
		return errors.WrapTransient(errors.ErrTransport, "fake", "Connect", "dial")
	}
	f.alive = true
	return nil
}

func (f *fakeAdapter) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.alive = false
	return nil
}

func (f *fakeAdapter) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

func (f *fakeAdapter) SendCommand(_ context.Context, _ string, _ ...any) (string, error) {
	return "0,OK", nil
}

func (f *fakeAdapter) SendFrame(_ []byte) error { return nil }
func (f *fakeAdapter) Supports(_ string) bool   { return true }
func (f *fakeAdapter) Kind() backend.Kind       { return backend.DirectSocket }

func (f *fakeAdapter) IsAlive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeAdapter) setAlive(alive bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = alive
}

func newTestManager(t *testing.T, cfg Config, fake *fakeAdapter) *Manager {
	t.Helper()
	m, err := NewManager(cfg, Deps{})
	require.NoError(t, err)
	m.newAdapter = func(_ backend.Kind) (backend.Adapter, error) {
		return fake, nil
	}
	return m
}

func directSocketConfig() Config {
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1"
	cfg.Preferred = backend.DirectSocket
	cfg.BaseRetryDelay = 20 * time.Millisecond
	return cfg
}

func TestManager_DisconnectBeforeConnectIsNoOp(t *testing.T) {
	m := newTestManager(t, directSocketConfig(), &fakeAdapter{})

	m.Disconnect()

	assert.Equal(t, StateDisconnected, m.State())
	assert.False(t, m.IsConnected())
}

func TestManager_ConnectIsIdempotent(t *testing.T) {
	fake := &fakeAdapter{}
	m := newTestManager(t, directSocketConfig(), fake)

	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Connect(context.Background()))

	assert.Equal(t, 1, fake.connects, "second Connect must not touch the transport")
	assert.Equal(t, StateConnected, m.State())
}

func TestManager_BackoffFollowsExponentialCurve(t *testing.T) {
	fake := &fakeAdapter{failFirst: 100}
	cfg := directSocketConfig()
	cfg.MaxRetryAttempts = 3
	m := newTestManager(t, cfg, fake)

	err := m.Connect(context.Background())

	require.Error(t, err)
	assert.Equal(t, StateError, m.State())
	assert.Equal(t, 3, m.RetryCount())
	require.Len(t, fake.attemptTime, 3)

	// Base 20ms gives waits of 40ms then 80ms between attempts.
	gap1 := fake.attemptTime[1].Sub(fake.attemptTime[0])
	gap2 := fake.attemptTime[2].Sub(fake.attemptTime[1])
	assert.GreaterOrEqual(t, gap1, 40*time.Millisecond)
	assert.Less(t, gap1, 80*time.Millisecond)
	assert.GreaterOrEqual(t, gap2, 80*time.Millisecond)
	assert.Less(t, gap2, 160*time.Millisecond)
}

func TestManager_SingleAttemptRefusalEndsInError(t *testing.T) {
	fake := &fakeAdapter{failFirst: 1}
	cfg := directSocketConfig()
	cfg.MaxRetryAttempts = 1
	m := newTestManager(t, cfg, fake)

	err := m.Connect(context.Background())

	require.Error(t, err)
	assert.Equal(t, StateError, m.State())
	assert.Equal(t, 1, m.RetryCount())
	assert.ErrorIs(t, err, errors.ErrTransport)
}

func TestManager_RecoversAfterRetries(t *testing.T) {
	fake := &fakeAdapter{failFirst: 2}
	cfg := directSocketConfig()
	cfg.MaxRetryAttempts = 3
	m := newTestManager(t, cfg, fake)

	require.NoError(t, m.Connect(context.Background()))

	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, 2, m.RetryCount())
	assert.NotNil(t, m.Adapter())
}

func TestManager_FreshConnectResetsRetryCount(t *testing.T) {
	fake := &fakeAdapter{failFirst: 1}
	cfg := directSocketConfig()
	cfg.MaxRetryAttempts = 2
	m := newTestManager(t, cfg, fake)

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, 1, m.RetryCount())

	m.Disconnect()
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, 0, m.RetryCount())
}

func TestManager_AdapterNilWhenDisconnected(t *testing.T) {
	fake := &fakeAdapter{}
	m := newTestManager(t, directSocketConfig(), fake)

	assert.Nil(t, m.Adapter())

	require.NoError(t, m.Connect(context.Background()))
	require.NotNil(t, m.Adapter())

	m.Disconnect()
	assert.Nil(t, m.Adapter())
	assert.Equal(t, StateDisconnected, m.State())
}

func TestManager_MarkConnectionLostDropsToDisconnected(t *testing.T) {
	fake := &fakeAdapter{}
	m := newTestManager(t, directSocketConfig(), fake)
	require.NoError(t, m.Connect(context.Background()))

	m.MarkConnectionLost(errors.ErrTransport)

	assert.Equal(t, StateDisconnected, m.State())
	assert.False(t, fake.IsAlive())
	assert.ErrorIs(t, m.Info().LastError, errors.ErrTransport)

	// A second report is ignored once disconnected.
	m.MarkConnectionLost(errors.ErrTransport)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestManager_AutoPrefersBusWhenServiceAdvertised(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1"
	cfg.BusURL = "nats://127.0.0.1:4222"
	fake := &fakeAdapter{}
	m := newTestManager(t, cfg, fake)
	m.probeBus = func(string, time.Duration) bool { return true }
	m.probeBusServices = func(string, string, time.Duration) []string {
		return []string{"robot-control"}
	}
	m.probeSocket = func(string, int, time.Duration) bool {
		t.Fatal("socket probe must not run when the bus answers")
		return false
	}

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, backend.MessageBus, m.Info().Backend)
}

func TestManager_AutoFallsBackToSocket(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1"
	cfg.BusURL = "nats://127.0.0.1:4222"
	fake := &fakeAdapter{}
	m := newTestManager(t, cfg, fake)
	m.probeBus = func(string, time.Duration) bool { return true }
	m.probeBusServices = func(string, string, time.Duration) []string { return nil }
	m.probeSocket = func(string, int, time.Duration) bool { return true }

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, backend.DirectSocket, m.Info().Backend)
}

func TestManager_AutoFailsFatalWhenNothingReachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1"
	fake := &fakeAdapter{}
	m := newTestManager(t, cfg, fake)
	m.probeBus = func(string, time.Duration) bool { return false }
	m.probeSocket = func(string, int, time.Duration) bool { return false }

	err := m.Connect(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrBackendUnavailable)
	assert.Equal(t, StateError, m.State())
	assert.Equal(t, 0, fake.connects, "no dial without a resolved backend")
}

func TestManager_InfoStaysResponsiveDuringBackoff(t *testing.T) {
	fake := &fakeAdapter{failFirst: 100}
	cfg := directSocketConfig()
	cfg.MaxRetryAttempts = 3
	cfg.BaseRetryDelay = 100 * time.Millisecond
	m := newTestManager(t, cfg, fake)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Connect(context.Background())
	}()

	// Land inside the first backoff sleep, then read the snapshot. Neither
	// read may wait out the remaining retry budget.
	time.Sleep(30 * time.Millisecond)

	start := time.Now()
	info := m.Info()
	adapter := m.Adapter()
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 50*time.Millisecond, "snapshot reads must not wait for the connect to finish")
	assert.Contains(t, []State{StateConnecting, StateRetrying}, info.State)
	assert.Nil(t, adapter)

	<-done
	assert.Equal(t, StateError, m.State())
}

func TestManager_ConnectClosesDeadAdapterBeforeReplacing(t *testing.T) {
	first := &fakeAdapter{}
	second := &fakeAdapter{}
	adapters := []*fakeAdapter{first, second}
	m, err := NewManager(directSocketConfig(), Deps{})
	require.NoError(t, err)
	m.newAdapter = func(_ backend.Kind) (backend.Adapter, error) {
		next := adapters[0]
		adapters = adapters[1:]
		return next, nil
	}

	require.NoError(t, m.Connect(context.Background()))

	// The connection dies without anyone calling Disconnect.
	first.setAlive(false)

	require.NoError(t, m.Connect(context.Background()))

	assert.Equal(t, 1, first.disconnectCount(), "stale adapter sockets must be released")
	assert.Same(t, second, m.Adapter())
}

func TestManager_ConnectHonorsContextCancel(t *testing.T) {
	fake := &fakeAdapter{failFirst: 100}
	cfg := directSocketConfig()
	cfg.MaxRetryAttempts = 5
	cfg.BaseRetryDelay = 50 * time.Millisecond
	m := newTestManager(t, cfg, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := m.Connect(ctx)

	require.Error(t, err)
	assert.Less(t, fake.connects, 3, "cancel must stop the retry loop early")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults with address", func(c *Config) { c.Address = "127.0.0.1" }, false},
		{"defaults with bus url", func(c *Config) { c.BusURL = "nats://127.0.0.1:4222" }, false},
		{"nothing to probe", func(c *Config) {}, true},
		{"zero retry attempts", func(c *Config) {
			c.Address = "127.0.0.1"
			c.MaxRetryAttempts = 0
		}, true},
		{"negative base delay", func(c *Config) {
			c.Address = "127.0.0.1"
			c.BaseRetryDelay = -time.Second
		}, true},
		{"socket backend without address", func(c *Config) {
			c.Preferred = backend.DirectSocket
		}, true},
		{"bus backend without url", func(c *Config) {
			c.Preferred = backend.MessageBus
		}, true},
		{"command port out of range", func(c *Config) {
			c.Preferred = backend.DirectSocket
			c.Address = "127.0.0.1"
			c.CommandPort = 70000
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
