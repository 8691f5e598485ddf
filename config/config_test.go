package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/robotlink/backend"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	cfg.Robot.Address = "192.168.1.6"

	require.NoError(t, cfg.Validate())
	assert.Equal(t, backend.Auto, cfg.Robot.Preferred)
}

func TestLoader_JSONLayer(t *testing.T) {
	path := writeFile(t, "robot.json", `{
		"backend": "direct_socket",
		"robot": {
			"address": "192.168.1.6",
			"max_retry_attempts": 5,
			"base_retry_delay": "2s"
		}
	}`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, backend.DirectSocket, cfg.Robot.Preferred)
	assert.Equal(t, "192.168.1.6", cfg.Robot.Address)
	assert.Equal(t, 5, cfg.Robot.MaxRetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.Robot.BaseRetryDelay)
	// Untouched fields keep their defaults.
	assert.Equal(t, 29999, cfg.Robot.CommandPort)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoader_YAMLLayer(t *testing.T) {
	path := writeFile(t, "robot.yaml", `
backend: message_bus
robot:
  bus_url: nats://127.0.0.1:4222
  attempt_timeout: 10s
logging:
  level: debug
  format: text
`)

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, backend.MessageBus, cfg.Robot.Preferred)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Robot.BusURL)
	assert.Equal(t, 10*time.Second, cfg.Robot.AttemptTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoader_LayersOverrideInOrder(t *testing.T) {
	base := writeFile(t, "base.json", `{"robot": {"address": "10.0.0.1"}, "logging": {"level": "warn"}}`)
	site := writeFile(t, "site.json", `{"robot": {"address": "10.0.0.2"}}`)

	l := NewLoader()
	l.AddLayer(base)
	l.AddLayer(site)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.2", cfg.Robot.Address)
	assert.Equal(t, "warn", cfg.Logging.Level, "later layer must not clobber unrelated keys")
}

func TestLoader_EnvOverrides(t *testing.T) {
	path := writeFile(t, "robot.json", `{"robot": {"address": "10.0.0.1"}}`)
	t.Setenv("ROBOTLINK_ROBOT_ADDRESS", "10.9.9.9")
	t.Setenv("ROBOTLINK_LOG_LEVEL", "error")

	cfg, err := NewLoader().LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "10.9.9.9", cfg.Robot.Address)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoader_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad backend", `{"backend": "carrier_pigeon", "robot": {"address": "10.0.0.1"}}`},
		{"zero retries", `{"robot": {"address": "10.0.0.1", "max_retry_attempts": 0}}`},
		{"nothing to probe", `{"robot": {"address": ""}}`},
		{"bad log level", `{"robot": {"address": "10.0.0.1"}, "logging": {"level": "loud"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "bad.json", tt.content)
			_, err := NewLoader().LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestLoader_RejectsUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "config.toml", `backend = "auto"`)
	_, err := NewLoader().LoadFile(path)
	assert.Error(t, err)
}

func TestSafeConfig_UpdateValidates(t *testing.T) {
	sc := NewSafeConfig(nil)

	bad := Default()
	bad.Robot.MaxRetryAttempts = 0
	bad.Robot.Address = "10.0.0.1"
	assert.Error(t, sc.Update(bad))

	good := Default()
	good.Robot.Address = "10.0.0.1"
	require.NoError(t, sc.Update(good))
	assert.Equal(t, "10.0.0.1", sc.Get().Robot.Address)
}

func TestConfig_CloneIsDeep(t *testing.T) {
	cfg := Default()
	cfg.Robot.Address = "10.0.0.1"

	clone := cfg.Clone()
	clone.Robot.Address = "10.0.0.2"

	assert.Equal(t, "10.0.0.1", cfg.Robot.Address)
}
