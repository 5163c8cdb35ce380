package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billm/baaaht/messenger/pkg/types"
)

func useMissingConfigFile(t *testing.T) {
	t.Helper()
	SetTestConfigPath(filepath.Join(t.TempDir(), "none.yaml"))
	t.Cleanup(func() { SetTestConfigPath("") })
}

func TestDefaultMessengerConfig(t *testing.T) {
	cfg := DefaultMessengerConfig()

	assert.Equal(t, TransportMemory, cfg.Transport)
	assert.Equal(t, time.Second, cfg.Timeout)
	assert.Equal(t, 100, cfg.MaxMessageSize)
	assert.False(t, cfg.ReleaseOnKill)
	require.NoError(t, cfg.Validate())
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	useMissingConfigFile(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultLoggingConfig(), cfg.Logging)
	assert.Equal(t, DefaultMessengerConfig(), cfg.Messenger)
}

func TestLoadWithEnvVarOverride(t *testing.T) {
	useMissingConfigFile(t)
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvMessengerTransport, "sysv")
	t.Setenv(EnvMessengerTimeout, "50ms")
	t.Setenv(EnvMessengerPollInterval, "0s")
	t.Setenv(EnvMessengerMaxMessageSize, "64")
	t.Setenv(EnvMessengerReleaseOnKill, "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, TransportSysV, cfg.Messenger.Transport)
	assert.Equal(t, 50*time.Millisecond, cfg.Messenger.Timeout)
	assert.Equal(t, time.Duration(0), cfg.Messenger.PollInterval)
	assert.Equal(t, 64, cfg.Messenger.MaxMessageSize)
	assert.True(t, cfg.Messenger.ReleaseOnKill)
}

func TestLoadWithBadEnvValue(t *testing.T) {
	useMissingConfigFile(t)
	t.Setenv(EnvMessengerTimeout, "soon")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))
}

func TestMessengerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *MessengerConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *MessengerConfig) {}},
		{name: "zero timeout allowed", mutate: func(c *MessengerConfig) { c.Timeout = 0 }},
		{name: "negative timeout", mutate: func(c *MessengerConfig) { c.Timeout = -time.Second }, wantErr: true},
		{name: "negative poll", mutate: func(c *MessengerConfig) { c.PollInterval = -1 }, wantErr: true},
		{name: "zero capacity memory", mutate: func(c *MessengerConfig) { c.QueueCapacity = 0 }, wantErr: true},
		{name: "zero capacity sysv", mutate: func(c *MessengerConfig) { c.Transport = TransportSysV; c.QueueCapacity = 0 }},
		{name: "unknown transport", mutate: func(c *MessengerConfig) { c.Transport = "pipe" }, wantErr: true},
		{name: "zero max size", mutate: func(c *MessengerConfig) { c.MaxMessageSize = 0 }, wantErr: true},
		{name: "max size over limit", mutate: func(c *MessengerConfig) { c.MaxMessageSize = MaxMessageSizeLimit + 1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultMessengerConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, types.IsErrCode(err, types.ErrCodeInvalidArgument))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyOverrides(OverrideOptions{
		LogLevel:      "error",
		LogOutput:     "stdout",
		Transport:     TransportSysV,
		Timeout:       3 * time.Second,
		QueueCapacity: 16,
	})

	assert.Equal(t, "error", cfg.Logging.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, TransportSysV, cfg.Messenger.Transport)
	assert.Equal(t, 3*time.Second, cfg.Messenger.Timeout)
	assert.Equal(t, 16, cfg.Messenger.QueueCapacity)
	assert.Contains(t, cfg.String(), "Transport: sysv")
}
