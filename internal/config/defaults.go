package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/billm/baaaht/messenger/pkg/envelope"
)

// testConfigPath is an override for the default config path used in testing
// If set, GetDefaultConfigPath will return this value instead of the standard path
var testConfigPath string

// SetTestConfigPath sets a custom config path for testing purposes
// This should only be called from tests
func SetTestConfigPath(path string) {
	testConfigPath = path
}

// GetConfigDir returns the baaaht configuration directory
// Uses ~/.config/baaaht/ on Unix systems
func GetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "baaaht"), nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() (string, error) {
	if testConfigPath != "" {
		return testConfigPath, nil
	}

	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "messenger.yaml"), nil
}

const (
	// Environment variable names
	EnvLogLevel                = "LOG_LEVEL"
	EnvLogFormat               = "LOG_FORMAT"
	EnvLogOutput               = "LOG_OUTPUT"
	EnvMessengerTransport      = "MESSENGER_TRANSPORT"
	EnvMessengerQueueCapacity  = "MESSENGER_QUEUE_CAPACITY"
	EnvMessengerTimeout        = "MESSENGER_TIMEOUT"
	EnvMessengerPollInterval   = "MESSENGER_POLL_INTERVAL"
	EnvMessengerMaxMessageSize = "MESSENGER_MAX_MESSAGE_SIZE"
	EnvMessengerReleaseOnKill  = "MESSENGER_RELEASE_ON_KILL"
)

const (
	// Transport kinds
	TransportMemory = "memory"
	TransportSysV   = "sysv"

	// MaxMessageSizeLimit is the compiled envelope capacity in bytes
	MaxMessageSizeLimit = envelope.MaxMessageSize

	// Default logging settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultLogOutput = "stderr"

	// Default messenger settings
	DefaultMessengerTransport     = TransportMemory
	DefaultMessengerQueueCapacity = 256
	DefaultMessengerTimeout       = 1000 * time.Millisecond
	DefaultMessengerPollInterval  = time.Millisecond
)

// DefaultLoggingConfig returns the default logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  DefaultLogLevel,
		Format: DefaultLogFormat,
		Output: DefaultLogOutput,
	}
}

// DefaultMessengerConfig returns the default messenger configuration
func DefaultMessengerConfig() MessengerConfig {
	return MessengerConfig{
		Transport:      DefaultMessengerTransport,
		QueueCapacity:  DefaultMessengerQueueCapacity,
		Timeout:        DefaultMessengerTimeout,
		PollInterval:   DefaultMessengerPollInterval,
		MaxMessageSize: MaxMessageSizeLimit,
		ReleaseOnKill:  false,
	}
}
